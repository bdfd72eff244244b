// Package prometheus adapts metrics.Client to Prometheus collectors.
package prometheus

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cschleiden/go-taskflow/metrics"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ClientOptions controls collector configuration.
type ClientOptions struct {
	// Namespace is prepended to every metric name.
	Namespace string

	DistributionBuckets []float64

	TimingBuckets []float64
}

type collectors struct {
	reg     prom.Registerer
	options ClientOptions

	mu         sync.Mutex
	counters   map[string]*prom.CounterVec
	gauges     map[string]*prom.GaugeVec
	histograms map[string]*prom.HistogramVec
}

// Client creates collectors on first use of a metric name. Values reported with a different
// set of tag names than the first report of the metric are dropped.
type Client struct {
	c    *collectors
	tags metrics.Tags
}

var _ metrics.Client = (*Client)(nil)

// NewClient returns a client registering its collectors with reg, prom.DefaultRegisterer if nil.
func NewClient(reg prom.Registerer, opts ClientOptions) *Client {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}

	if len(opts.DistributionBuckets) == 0 {
		opts.DistributionBuckets = prom.ExponentialBuckets(1, 4, 10)
	}

	if len(opts.TimingBuckets) == 0 {
		opts.TimingBuckets = prom.DefBuckets
	}

	return &Client{
		c: &collectors{
			reg:        reg,
			options:    opts,
			counters:   map[string]*prom.CounterVec{},
			gauges:     map[string]*prom.GaugeVec{},
			histograms: map[string]*prom.HistogramVec{},
		},
		tags: metrics.Tags{},
	}
}

func (c *Client) Counter(name string, tags metrics.Tags, value int64) {
	labels := c.labels(tags)

	cv, err := c.c.counter(name, labels)
	if err != nil {
		return
	}

	if m, err := cv.GetMetricWith(labels); err == nil {
		m.Add(float64(value))
	}
}

func (c *Client) Distribution(name string, tags metrics.Tags, value float64) {
	labels := c.labels(tags)

	hv, err := c.c.histogram(name, labels, c.c.options.DistributionBuckets)
	if err != nil {
		return
	}

	if m, err := hv.GetMetricWith(labels); err == nil {
		m.Observe(value)
	}
}

func (c *Client) Gauge(name string, tags metrics.Tags, value int64) {
	labels := c.labels(tags)

	gv, err := c.c.gauge(name, labels)
	if err != nil {
		return
	}

	if m, err := gv.GetMetricWith(labels); err == nil {
		m.Set(float64(value))
	}
}

// Timing records duration in seconds, the metric name gets a _seconds suffix.
func (c *Client) Timing(name string, tags metrics.Tags, duration time.Duration) {
	labels := c.labels(tags)

	hv, err := c.c.histogram(name+"_seconds", labels, c.c.options.TimingBuckets)
	if err != nil {
		return
	}

	if m, err := hv.GetMetricWith(labels); err == nil {
		m.Observe(duration.Seconds())
	}
}

func (c *Client) WithTags(tags metrics.Tags) metrics.Client {
	return &Client{
		c:    c.c,
		tags: c.merge(tags),
	}
}

func (c *Client) merge(tags metrics.Tags) metrics.Tags {
	r := make(metrics.Tags, len(c.tags)+len(tags))
	for k, v := range c.tags {
		r[k] = v
	}

	for k, v := range tags {
		r[k] = v
	}

	return r
}

func (c *Client) labels(tags metrics.Tags) prom.Labels {
	labels := prom.Labels{}
	for k, v := range c.merge(tags) {
		labels[sanitize(k)] = v
	}

	return labels
}

func (cs *collectors) counter(name string, labels prom.Labels) (*prom.CounterVec, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	key := cs.metricName(name)
	if cv, ok := cs.counters[key]; ok {
		return cv, nil
	}

	cv, err := register(cs.reg, prom.NewCounterVec(prom.CounterOpts{
		Name: key,
		Help: fmt.Sprintf("Counter %v", name),
	}, labelNames(labels)))
	if err != nil {
		return nil, err
	}

	cs.counters[key] = cv

	return cv, nil
}

func (cs *collectors) gauge(name string, labels prom.Labels) (*prom.GaugeVec, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	key := cs.metricName(name)
	if gv, ok := cs.gauges[key]; ok {
		return gv, nil
	}

	gv, err := register(cs.reg, prom.NewGaugeVec(prom.GaugeOpts{
		Name: key,
		Help: fmt.Sprintf("Gauge %v", name),
	}, labelNames(labels)))
	if err != nil {
		return nil, err
	}

	cs.gauges[key] = gv

	return gv, nil
}

func (cs *collectors) histogram(name string, labels prom.Labels, buckets []float64) (*prom.HistogramVec, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	key := cs.metricName(name)
	if hv, ok := cs.histograms[key]; ok {
		return hv, nil
	}

	hv, err := register(cs.reg, prom.NewHistogramVec(prom.HistogramOpts{
		Name:    key,
		Help:    fmt.Sprintf("Distribution of %v", name),
		Buckets: buckets,
	}, labelNames(labels)))
	if err != nil {
		return nil, err
	}

	cs.histograms[key] = hv

	return hv, nil
}

func (cs *collectors) metricName(name string) string {
	name = sanitize(name)
	if cs.options.Namespace != "" && !strings.HasPrefix(name, cs.options.Namespace+"_") {
		name = cs.options.Namespace + "_" + name
	}

	return name
}

func labelNames(labels prom.Labels) []string {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}

	sort.Strings(names)

	return names
}

// sanitize maps metric keys like "taskflow.engine.progress" to valid Prometheus names.
func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}

func register[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}

		return existing, nil
	}

	return collector, err
}
