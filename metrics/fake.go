package metrics

import "sync"

type Metric struct {
	Name  string
	Tags  map[string]string
	Rate  float64
	Value float64
}

// FakeMetricsReporter records everything reported to it. Tests install it with
// Install and read back what was counted.
type FakeMetricsReporter struct {
	mu      sync.Mutex
	Counts  []Metric
	Gauges  []Metric
	Timings []Metric
}

// Install replaces Reporter with a fake until the returned function is called.
func Install() (*FakeMetricsReporter, func()) {
	r := &FakeMetricsReporter{}
	prev := Reporter
	Reporter = r
	return r, func() { Reporter = prev }
}

// Total sums the counts reported for name whose tags include every tag given.
func (r *FakeMetricsReporter) Total(name string, tags map[string]string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var total int64
outer:
	for _, m := range r.Counts {
		if m.Name != name {
			continue
		}
		for k, v := range tags {
			if m.Tags[k] != v {
				continue outer
			}
		}
		total += int64(m.Value)
	}
	return total
}

func (r *FakeMetricsReporter) Count(name string, value int64, tags map[string]string, rate float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Counts = append(r.Counts, Metric{name, tags, rate, float64(value)})
	return nil
}

func (r *FakeMetricsReporter) Gauge(name string, value float64, tags map[string]string, rate float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Gauges = append(r.Gauges, Metric{name, tags, rate, value})
	return nil
}

func (r *FakeMetricsReporter) Histogram(name string, value float64, tags map[string]string, rate float64) error {
	return nil
}

func (r *FakeMetricsReporter) TimeInMilliseconds(name string, value float64, tags map[string]string, rate float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Timings = append(r.Timings, Metric{name, tags, rate, value})
	return nil
}

func (r *FakeMetricsReporter) Close() error {
	return nil
}
