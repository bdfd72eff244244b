package prometheus

import (
	"strings"
	"testing"
	"time"

	"github.com/cschleiden/go-taskflow/internal/metrickeys"
	"github.com/cschleiden/go-taskflow/metrics"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func Test_Client_Counter(t *testing.T) {
	reg := prom.NewRegistry()
	c := NewClient(reg, ClientOptions{})

	tags := metrics.Tags{metrickeys.Kind: "application", metrickeys.Outcome: "ok"}
	c.Counter(metrickeys.TaskTerminated, tags, 1)
	c.Counter(metrickeys.TaskTerminated, tags, 2)

	cv := c.c.counters["taskflow_task_terminated"]
	require.NotNil(t, cv)
	require.Equal(t, float64(3), testutil.ToFloat64(cv.With(prom.Labels{"kind": "application", "outcome": "ok"})))
}

func Test_Client_Gauge(t *testing.T) {
	reg := prom.NewRegistry()
	c := NewClient(reg, ClientOptions{Namespace: "app"})

	c.Gauge(metrickeys.EngineInFlight, metrics.Tags{}, 4)
	c.Gauge(metrickeys.EngineInFlight, metrics.Tags{}, 2)

	expected := `
# HELP app_taskflow_engine_applications_in_flight Gauge taskflow.engine.applications.in_flight
# TYPE app_taskflow_engine_applications_in_flight gauge
app_taskflow_engine_applications_in_flight 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "app_taskflow_engine_applications_in_flight"))
}

func Test_Client_WithTags(t *testing.T) {
	reg := prom.NewRegistry()
	c := NewClient(reg, ClientOptions{}).WithTags(metrics.Tags{metrickeys.Backend: "memory"})

	c.Counter(metrickeys.JobStarted, metrics.Tags{}, 1)
	c.Timing(metrickeys.JobDuration, metrics.Tags{}, 250*time.Millisecond)
	c.Distribution(metrickeys.EngineProgress, metrics.Tags{}, 12)

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, 1, testutil.CollectAndCount(c.(*Client).c.histograms["taskflow_job_duration_seconds"]))
}

func Test_Client_MismatchedTagsAreDropped(t *testing.T) {
	reg := prom.NewRegistry()
	c := NewClient(reg, ClientOptions{})

	c.Counter("jobs", metrics.Tags{"a": "1"}, 1)
	require.NotPanics(t, func() {
		c.Counter("jobs", metrics.Tags{"b": "1"}, 1)
	})

	require.Equal(t, float64(1), testutil.ToFloat64(c.c.counters["jobs"].With(prom.Labels{"a": "1"})))
}

func Test_Client_SharedRegistry(t *testing.T) {
	reg := prom.NewRegistry()
	first := NewClient(reg, ClientOptions{})
	second := NewClient(reg, ClientOptions{})

	first.Counter("jobs", metrics.Tags{}, 1)
	second.Counter("jobs", metrics.Tags{}, 1)

	require.Same(t, first.c.counters["jobs"], second.c.counters["jobs"])
	require.Equal(t, float64(2), testutil.ToFloat64(first.c.counters["jobs"]))
}

func Test_Sanitize(t *testing.T) {
	require.Equal(t, "taskflow_engine_progress", sanitize("taskflow.engine.progress"))
	require.Equal(t, "a_b_c", sanitize("a-b c"))
}
