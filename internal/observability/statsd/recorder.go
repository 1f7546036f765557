package statsd

import (
	"maps"
	"sync"
	"time"
)

// Metric is one emission captured by a Recorder.
type Metric struct {
	Kind  string // "count", "gauge" or "timing"
	Name  string
	Value float64
	Tags  map[string]string
}

// Recorder is an in-memory Sink. It is used by tests and when metrics are disabled
// but callers still want to inspect emissions.
type Recorder struct {
	mu      sync.Mutex
	metrics []Metric
}

var _ Sink = (*Recorder)(nil)

func (r *Recorder) Count(name string, value int64, tags map[string]string) {
	r.add(Metric{Kind: "count", Name: name, Value: float64(value), Tags: maps.Clone(tags)})
}

func (r *Recorder) Gauge(name string, value float64, tags map[string]string) {
	r.add(Metric{Kind: "gauge", Name: name, Value: value, Tags: maps.Clone(tags)})
}

func (r *Recorder) Timing(name string, value time.Duration, tags map[string]string) {
	r.add(Metric{Kind: "timing", Name: name, Value: float64(value) / float64(time.Millisecond), Tags: maps.Clone(tags)})
}

// Metrics returns a copy of everything recorded so far.
func (r *Recorder) Metrics() []Metric {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Metric, len(r.metrics))
	copy(out, r.metrics)
	return out
}

// Named returns the recorded metrics with the given name.
func (r *Recorder) Named(name string) []Metric {
	var out []Metric
	for _, m := range r.Metrics() {
		if m.Name == name {
			out = append(out, m)
		}
	}
	return out
}

func (r *Recorder) add(m Metric) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = append(r.metrics, m)
}
