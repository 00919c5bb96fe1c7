package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels pipeline runs that produced output.
	OutcomeSuccess = "success"
	// OutcomeError labels failed runs (provider, configuration or data quality).
	OutcomeError = "error"

	// KindVector labels single feature-vector runs.
	KindVector = "vector"
	// KindMatrix labels training-matrix runs.
	KindMatrix = "matrix"
)

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "glumagic",
			Name:      "pipeline_runs_total",
			Help:      "Total number of feature pipeline runs, partitioned by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	runDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "glumagic",
			Name:      "pipeline_run_seconds",
			Help:      "Feature pipeline latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"kind"},
	)

	implausibleTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "glumagic",
			Name:      "implausible_samples_total",
			Help:      "Samples outside their physiological range, partitioned by signal.",
		},
		[]string{"signal"},
	)

	fetchDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "glumagic",
			Name:      "provider_fetch_seconds",
			Help:      "Provider fetch latency in seconds, partitioned by stream.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stream"},
	)
)

// Register attaches glumagic collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		runsTotal,
		runDurationSeconds,
		implausibleTotal,
		fetchDurationSeconds,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveRun records a pipeline run duration with its kind and outcome label.
func ObserveRun(kind string, duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	runsTotal.WithLabelValues(kind, label).Inc()
	if duration < 0 {
		duration = 0
	}
	runDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
}

// AddImplausible counts n implausible samples of signal.
func AddImplausible(signal string, n int) {
	if n <= 0 {
		return
	}
	implausibleTotal.WithLabelValues(signal).Add(float64(n))
}

// ObserveFetch records how long fetching one provider stream took.
func ObserveFetch(stream string, duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	fetchDurationSeconds.WithLabelValues(stream).Observe(duration.Seconds())
}
