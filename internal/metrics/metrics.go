// Package metrics is a small Prometheus-exposition-format collector. It
// keeps the service dependency-free on the observability side: counters,
// gauges, and summaries rendered as text/plain on demand.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Registry holds all metric instances for one process.
type Registry struct {
	mu        sync.Mutex
	counters  map[string]*Counter
	vecs      map[string]*CounterVec
	gauges    map[string]*Gauge
	summaries map[string]*Summary
	startTime time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		counters:  make(map[string]*Counter),
		vecs:      make(map[string]*CounterVec),
		gauges:    make(map[string]*Gauge),
		summaries: make(map[string]*Summary),
		startTime: time.Now(),
	}
}

// Counter is a monotonically increasing counter.
type Counter struct {
	name  string
	help  string
	value atomic.Int64
}

func (c *Counter) Inc()         { c.value.Add(1) }
func (c *Counter) Add(n int64)  { c.value.Add(n) }
func (c *Counter) Value() int64 { return c.value.Load() }

// CounterVec is a counter partitioned by one label.
type CounterVec struct {
	name   string
	help   string
	label  string
	mu     sync.Mutex
	values map[string]*atomic.Int64
}

func (v *CounterVec) Inc(labelValue string) {
	v.mu.Lock()
	ctr, ok := v.values[labelValue]
	if !ok {
		ctr = &atomic.Int64{}
		v.values[labelValue] = ctr
	}
	v.mu.Unlock()
	ctr.Add(1)
}

// Value returns the count for one label value.
func (v *CounterVec) Value(labelValue string) int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	if ctr, ok := v.values[labelValue]; ok {
		return ctr.Load()
	}
	return 0
}

// Gauge is a value that can go up and down.
type Gauge struct {
	name  string
	help  string
	value atomic.Int64
}

func (g *Gauge) Set(v int64)  { g.value.Store(v) }
func (g *Gauge) Inc()         { g.value.Add(1) }
func (g *Gauge) Dec()         { g.value.Add(-1) }
func (g *Gauge) Value() int64 { return g.value.Load() }

// Summary tracks count and sum of observed values.
type Summary struct {
	name  string
	help  string
	mu    sync.Mutex
	count int64
	sum   float64
}

func (s *Summary) Observe(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count++
	s.sum += v
}

// Count returns the number of observations.
func (s *Summary) Count() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// --- Registration ---

func (r *Registry) Counter(name, help string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.counters[name]; ok {
		return c
	}
	c := &Counter{name: name, help: help}
	r.counters[name] = c
	return c
}

func (r *Registry) CounterVec(name, help, label string) *CounterVec {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.vecs[name]; ok {
		return v
	}
	v := &CounterVec{name: name, help: help, label: label, values: make(map[string]*atomic.Int64)}
	r.vecs[name] = v
	return v
}

func (r *Registry) Gauge(name, help string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.gauges[name]; ok {
		return g
	}
	g := &Gauge{name: name, help: help}
	r.gauges[name] = g
	return g
}

func (r *Registry) Summary(name, help string) *Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.summaries[name]; ok {
		return s
	}
	s := &Summary{name: name, help: help}
	r.summaries[name] = s
	return s
}

// Render produces the exposition text for all registered metrics.
func (r *Registry) Render() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var b strings.Builder

	fmt.Fprintf(&b, "# HELP carescribe_uptime_seconds Seconds since process start.\n")
	fmt.Fprintf(&b, "# TYPE carescribe_uptime_seconds gauge\n")
	fmt.Fprintf(&b, "carescribe_uptime_seconds %.0f\n", time.Since(r.startTime).Seconds())

	for _, name := range sortedKeys(r.counters) {
		c := r.counters[name]
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", c.name, c.help, c.name, c.name, c.Value())
	}
	for _, name := range sortedKeys(r.vecs) {
		v := r.vecs[name]
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s counter\n", v.name, v.help, v.name)
		v.mu.Lock()
		for _, lv := range sortedKeys(v.values) {
			fmt.Fprintf(&b, "%s{%s=%q} %d\n", v.name, v.label, lv, v.values[lv].Load())
		}
		v.mu.Unlock()
	}
	for _, name := range sortedKeys(r.gauges) {
		g := r.gauges[name]
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s gauge\n%s %d\n", g.name, g.help, g.name, g.name, g.Value())
	}
	for _, name := range sortedKeys(r.summaries) {
		s := r.summaries[name]
		s.mu.Lock()
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s summary\n%s_count %d\n%s_sum %g\n",
			s.name, s.help, s.name, s.name, s.count, s.name, s.sum)
		s.mu.Unlock()
	}

	return b.String()
}

// Handler serves the exposition text.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		fmt.Fprint(w, r.Render())
	})
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
