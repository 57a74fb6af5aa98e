package metrics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/pkg/errors"
)

// DataDogMetricsReporter sends metrics to a DogStatsD agent.
type DataDogMetricsReporter struct {
	client statsd.ClientInterface
}

// NewDataDogMetricsReporter connects to the agent at addr. Client telemetry is
// off unless opts turn it back on.
func NewDataDogMetricsReporter(addr string, opts ...statsd.Option) (*DataDogMetricsReporter, error) {
	c, err := statsd.New(addr, append([]statsd.Option{statsd.WithoutTelemetry()}, opts...)...)
	if err != nil {
		return nil, errors.Wrapf(err, "metrics: statsd client for %s", addr)
	}
	return &DataDogMetricsReporter{client: c}, nil
}

func (c *DataDogMetricsReporter) Count(name string, value int64, tags map[string]string, rate float64) error {
	return c.client.Count(name, value, convertTags(tags), rate)
}

func (c *DataDogMetricsReporter) Gauge(name string, value float64, tags map[string]string, rate float64) error {
	return c.client.Gauge(name, value, convertTags(tags), rate)
}

func (c *DataDogMetricsReporter) Histogram(name string, value float64, tags map[string]string, rate float64) error {
	return c.client.Histogram(name, value, convertTags(tags), rate)
}

func (c *DataDogMetricsReporter) TimeInMilliseconds(name string, value float64, tags map[string]string, rate float64) error {
	return c.client.TimeInMilliseconds(name, value, convertTags(tags), rate)
}

func (c *DataDogMetricsReporter) Close() error {
	return c.client.Close()
}

// convertTags turns {"Route":"GET /pages/{page}"} into ["route:get /pages/{page}"],
// sorted by key. Empty keys are dropped.
func convertTags(tags map[string]string) []string {
	result := make([]string, 0, len(tags))
	for k, v := range tags {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		v = strings.ToLower(strings.TrimSpace(v))
		result = append(result, fmt.Sprintf("%s:%s", k, v))
	}
	sort.Strings(result)
	return result
}
