package main

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cschleiden/go-taskflow/metrics"
)

type memStore struct {
	counters *sync.Map

	mu            sync.Mutex
	distributions map[string][]float64
}

type memMetrics struct {
	tags metrics.Tags
	s    *memStore
}

func newMemMetrics() *memMetrics {
	return &memMetrics{
		tags: make(metrics.Tags),
		s: &memStore{
			counters:      &sync.Map{},
			distributions: make(map[string][]float64),
		},
	}
}

func (m *memMetrics) Print() {
	keys := []string{}
	m.s.counters.Range(func(k, v any) bool {
		keys = append(keys, k.(string))

		return true
	})

	sort.Strings(keys)

	for _, k := range keys {
		v, _ := m.s.counters.Load(k)
		fmt.Printf("%s: %d\n", k, v)
	}

	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	for k, values := range m.s.distributions {
		var sum float64
		for _, v := range values {
			sum += v
		}

		fmt.Printf("%s: n=%d avg=%.2f\n", k, len(values), sum/float64(len(values)))
	}
}

// Counter implements metrics.Client
func (m *memMetrics) Counter(name string, tags metrics.Tags, value int64) {
	k := key(name, mergeTags(m.tags, tags))

	for {
		v, loaded := m.s.counters.LoadOrStore(k, value)
		if !loaded || m.s.counters.CompareAndSwap(k, v, v.(int64)+value) {
			return
		}
	}
}

// Distribution implements metrics.Client
func (m *memMetrics) Distribution(name string, tags metrics.Tags, value float64) {
	k := key(name, mergeTags(m.tags, tags))

	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	m.s.distributions[k] = append(m.s.distributions[k], value)
}

// Gauge implements metrics.Client
func (m *memMetrics) Gauge(name string, tags metrics.Tags, value int64) {
}

// Timing implements metrics.Client
func (m *memMetrics) Timing(name string, tags metrics.Tags, duration time.Duration) {
	m.Distribution(name, tags, float64(duration/time.Millisecond))
}

// WithTags implements metrics.Client
func (m *memMetrics) WithTags(tags metrics.Tags) metrics.Client {
	return &memMetrics{
		s:    m.s,
		tags: mergeTags(m.tags, tags),
	}
}

func mergeTags(a, b metrics.Tags) metrics.Tags {
	tags := make(metrics.Tags)
	for k, v := range a {
		tags[k] = v
	}

	for k, v := range b {
		tags[k] = v
	}

	return tags
}

func key(name string, tags metrics.Tags) string {
	t := make([]struct{ Key, Value string }, 0, len(tags))
	for k, v := range tags {
		t = append(t, struct{ Key, Value string }{k, v})
	}

	sort.Slice(t, func(i, j int) bool {
		return t[i].Key < t[j].Key
	})

	var buf bytes.Buffer

	buf.WriteString(name)
	buf.WriteString("[")

	for i, tag := range t {
		if i > 0 {
			buf.WriteString(",")
		}

		buf.WriteString(tag.Key)
		buf.WriteString(":")
		buf.WriteString(tag.Value)
	}

	buf.WriteString("]")

	return buf.String()
}

var _ metrics.Client = (*memMetrics)(nil)
