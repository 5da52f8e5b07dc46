package memhost

import (
	"sync"
	"time"

	"github.com/aminokad/kaddht/host"
)

// LatencyMetrics is an in-memory host.PeerLatencyMetrics. Tests set
// per-peer latencies directly; memhost never measures real round trips.
type LatencyMetrics struct {
	mu      sync.RWMutex
	latency map[host.PeerID]time.Duration
}

// NewLatencyMetrics creates a tracker that reports zero latency for any
// peer it hasn't been told about.
func NewLatencyMetrics() *LatencyMetrics {
	return &LatencyMetrics{latency: make(map[host.PeerID]time.Duration)}
}

// SetLatency records d as peer's current EWMA latency.
func (l *LatencyMetrics) SetLatency(peer host.PeerID, d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.latency[peer] = d
}

func (l *LatencyMetrics) LatencyEWMA(peer host.PeerID) time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.latency[peer]
}
