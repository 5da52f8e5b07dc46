package provider

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aminokad/kaddht/host"
)

func TestAddAndGetProviders(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := New(func() time.Time { return now })
	s.AddProvider("cid-1", host.PeerID("p1"), nil, now.Add(time.Hour))

	got := s.GetProviders("cid-1")
	require.Len(t, got, 1)
	assert.Equal(t, host.PeerID("p1"), got[0].ID)
}

func TestExpiredProvidersExcludedAndEvicted(t *testing.T) {
	current := time.Unix(1_700_000_000, 0)
	s := New(func() time.Time { return current })
	s.AddProvider("cid-1", host.PeerID("p1"), nil, current.Add(-time.Minute))

	got := s.GetProviders("cid-1")
	assert.Empty(t, got)

	// internal map should have been cleaned up
	s.mu.Lock()
	_, ok := s.byKey["cid-1"]
	s.mu.Unlock()
	assert.False(t, ok)
}

func TestRemoveProvider(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := New(func() time.Time { return now })
	s.AddProvider("cid-1", host.PeerID("p1"), nil, now.Add(time.Hour))
	s.RemoveProvider("cid-1", host.PeerID("p1"))
	assert.Empty(t, s.GetProviders("cid-1"))
}

func TestClear(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := New(func() time.Time { return now })
	s.AddProvider("cid-1", host.PeerID("p1"), nil, now.Add(time.Hour))
	s.AddProvider("cid-2", host.PeerID("p2"), nil, now.Add(time.Hour))
	s.Clear()
	assert.Empty(t, s.GetProviders("cid-1"))
	assert.Empty(t, s.GetProviders("cid-2"))
}
