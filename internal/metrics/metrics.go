// Package metrics holds the Prometheus collectors recorded by the stats task
// and served by the read API.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Region outcomes.
const (
	OutcomeOK     = "ok"
	OutcomeNoData = "no_data"
	OutcomeFailed = "failed"
)

var (
	regionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hii_stats_regions_total",
			Help: "Regions reduced, by scope and outcome",
		},
		[]string{"scope", "outcome"},
	)

	reduceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hii_stats_reduce_duration_seconds",
			Help:    "Duration of a single region reduction",
			Buckets: []float64{.001, .01, .05, .1, .5, 1, 5, 15, 60, 300},
		},
		[]string{"backend"},
	)

	remoteRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hii_stats_remote_retries_total",
			Help: "Retried calls to the remote reduction backend",
		},
	)

	batchesWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hii_stats_batches_written_total",
			Help: "Output batches handed to a sink",
		},
		[]string{"scope", "sink"},
	)

	lastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hii_stats_last_success_timestamp_seconds",
			Help: "Unix time of the last successful task run",
		},
	)
)

// RecordRegion counts one reduced region.
func RecordRegion(scope, outcome string) {
	regionsTotal.WithLabelValues(scope, outcome).Inc()
}

// RecordReduce observes the latency of one reduction.
func RecordReduce(backend string, d time.Duration) {
	reduceDuration.WithLabelValues(backend).Observe(d.Seconds())
}

// RecordRetry counts one retried remote call.
func RecordRetry() {
	remoteRetries.Inc()
}

// RecordBatch counts one written batch.
func RecordBatch(scope, sink string) {
	batchesWritten.WithLabelValues(scope, sink).Inc()
}

// RecordSuccess stamps the time of a successful run.
func RecordSuccess(t time.Time) {
	lastRunTimestamp.Set(float64(t.Unix()))
}

// Push sends the default registry to a Pushgateway. Batch jobs do not live
// long enough to be scraped.
func Push(ctx context.Context, url, job string) error {
	return push.New(url, job).Gatherer(prometheus.DefaultGatherer).PushContext(ctx)
}
