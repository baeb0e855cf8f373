package metrics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/DataDog/datadog-go/statsd"
)

// DataDogReporter sends counters to a DogStatsD agent.
type DataDogReporter struct {
	client *statsd.Client
}

// NewDataDogReporter connects to the agent at addr (host:port). Every metric
// is prefixed with namespace, e.g. "draftkeeper.".
func NewDataDogReporter(addr, namespace string) (*DataDogReporter, error) {
	c, err := statsd.New(addr, statsd.WithNamespace(namespace))
	if err != nil {
		return nil, fmt.Errorf("could not create statsd client: %w", err)
	}
	return &DataDogReporter{client: c}, nil
}

func (d *DataDogReporter) Count(name string, value int64, tags map[string]string) error {
	return d.client.Count(name, value, convertTags(tags), 1)
}

func (d *DataDogReporter) Close() error {
	return d.client.Close()
}

// converts from {"Cause":"Tampered"} to ["cause:tampered"], sorted
func convertTags(tags map[string]string) []string {
	result := make([]string, 0, len(tags))
	for k, v := range tags {
		k := strings.ToLower(strings.TrimSpace(k))
		v := strings.ToLower(strings.TrimSpace(v))
		result = append(result, k+":"+v)
	}
	sort.Strings(result)
	return result
}

func joinTags(tags []string) string {
	return strings.Join(tags, ",")
}
