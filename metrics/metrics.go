// Package metrics is a small counter/gauge registry in the shape of
// ethereum-go-ethereum/metrics (Counter/Gauge/Registry with Snapshot()),
// trimmed to the handful of primitives spec.md §9's error-and-metrics
// surface needs, plus a websocket debug server for live inspection.
package metrics

import "sync"

// Counter tracks a cumulative signed count, mirroring go-ethereum's
// metrics.Counter (Inc/Dec/Clear/Snapshot).
type Counter interface {
	Clear()
	Dec(int64)
	Inc(int64)
	Snapshot() CounterSnapshot
}

// CounterSnapshot is a read-only, point-in-time view of a Counter.
type CounterSnapshot interface {
	Count() int64
}

type counter struct {
	mu    sync.Mutex
	count int64
}

// NewCounter creates a zero-valued Counter.
func NewCounter() Counter { return &counter{} }

func (c *counter) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count = 0
}

func (c *counter) Dec(n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count -= n
}

func (c *counter) Inc(n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count += n
}

func (c *counter) Snapshot() CounterSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return counterSnapshot(c.count)
}

type counterSnapshot int64

func (s counterSnapshot) Count() int64 { return int64(s) }

// Gauge tracks the most recently reported value of some instantaneous
// quantity (routing-table size, active lookups), mirroring go-ethereum's
// metrics.Gauge.
type Gauge interface {
	Update(int64)
	Snapshot() GaugeSnapshot
}

// GaugeSnapshot is a read-only, point-in-time view of a Gauge.
type GaugeSnapshot interface {
	Value() int64
}

type gauge struct {
	mu    sync.Mutex
	value int64
}

// NewGauge creates a zero-valued Gauge.
func NewGauge() Gauge { return &gauge{} }

func (g *gauge) Update(v int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.value = v
}

func (g *gauge) Snapshot() GaugeSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return gaugeSnapshot(g.value)
}

type gaugeSnapshot int64

func (s gaugeSnapshot) Value() int64 { return int64(s) }

// Registry is a named collection of metrics, mirroring go-ethereum's
// metrics.Registry (Register/GetOrRegister/Each/Unregister).
type Registry interface {
	Each(func(name string, metric interface{}))
	Get(name string) interface{}
	GetOrRegister(name string, create func() interface{}) interface{}
	Register(name string, metric interface{}) error
	Unregister(name string)
}

type registry struct {
	mu      sync.Mutex
	metrics map[string]interface{}
}

// NewRegistry creates an empty Registry.
func NewRegistry() Registry {
	return &registry{metrics: make(map[string]interface{})}
}

func (r *registry) Each(fn func(name string, metric interface{})) {
	r.mu.Lock()
	snapshot := make(map[string]interface{}, len(r.metrics))
	for k, v := range r.metrics {
		snapshot[k] = v
	}
	r.mu.Unlock()
	for name, metric := range snapshot {
		fn(name, metric)
	}
}

func (r *registry) Get(name string) interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.metrics[name]
}

func (r *registry) GetOrRegister(name string, create func() interface{}) interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.metrics[name]; ok {
		return m
	}
	m := create()
	r.metrics[name] = m
	return m
}

func (r *registry) Register(name string, metric interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.metrics[name]; exists {
		return duplicateMetricError(name)
	}
	r.metrics[name] = metric
	return nil
}

func (r *registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.metrics, name)
}

type duplicateMetricError string

func (e duplicateMetricError) Error() string {
	return "metrics: " + string(e) + " is already registered"
}

// GetOrRegisterCounter returns the named Counter in r, creating it if
// absent.
func GetOrRegisterCounter(r Registry, name string) Counter {
	return r.GetOrRegister(name, func() interface{} { return NewCounter() }).(Counter)
}

// GetOrRegisterGauge returns the named Gauge in r, creating it if absent.
func GetOrRegisterGauge(r Registry, name string) Gauge {
	return r.GetOrRegister(name, func() interface{} { return NewGauge() }).(Gauge)
}

// Snapshot renders every metric in r into a plain name->value map suitable
// for JSON encoding (the debug server's wire format).
func Snapshot(r Registry) map[string]int64 {
	out := make(map[string]int64)
	r.Each(func(name string, metric interface{}) {
		switch m := metric.(type) {
		case Counter:
			out[name] = m.Snapshot().Count()
		case Gauge:
			out[name] = m.Snapshot().Value()
		}
	})
	return out
}
