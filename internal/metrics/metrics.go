// Package metrics reports operational counters of the backup subsystem.
//
// Counters never carry draft identities or content; tags are limited to
// low-cardinality reasons such as "cause:key_mismatch".
package metrics

import "sync"

// Reporter is the sink for counters.
type Reporter interface {
	Count(name string, value int64, tags map[string]string) error
	Close() error
}

// NoopReporter drops every metric.
type NoopReporter struct{}

func (NoopReporter) Count(string, int64, map[string]string) error { return nil }
func (NoopReporter) Close() error                                 { return nil }

// FakeReporter keeps counters in memory, keyed by name and then by the
// sorted "k:v" tag string. Used in tests.
type FakeReporter struct {
	mu     sync.Mutex
	counts map[string]map[string]int64
}

func NewFakeReporter() *FakeReporter {
	return &FakeReporter{counts: make(map[string]map[string]int64)}
}

func (f *FakeReporter) Count(name string, value int64, tags map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	byTags, ok := f.counts[name]
	if !ok {
		byTags = make(map[string]int64)
		f.counts[name] = byTags
	}
	byTags[joinTags(convertTags(tags))] += value
	return nil
}

func (f *FakeReporter) Close() error { return nil }

// Total returns the sum of name across all tag sets.
func (f *FakeReporter) Total(name string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	var n int64
	for _, v := range f.counts[name] {
		n += v
	}
	return n
}

// Tagged returns the count of name for exactly the given tags.
func (f *FakeReporter) Tagged(name string, tags map[string]string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.counts[name][joinTags(convertTags(tags))]
}
