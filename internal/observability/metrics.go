package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	forecastsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alphapoints",
		Subsystem: "estimator",
		Name:      "forecasts_total",
		Help:      "Point forecasts computed, by balance tier label.",
	}, []string{"tier"})
	malformedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "alphapoints",
		Subsystem: "aggregator",
		Name:      "malformed_records_total",
		Help:      "Transaction records skipped during aggregation.",
	})
	fetchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "alphapoints",
		Subsystem: "fetcher",
		Name:      "fetch_duration_seconds",
		Help:      "Latency of upstream fetches.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"source", "outcome"})
	windowPointsGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "alphapoints",
		Subsystem: "tracker",
		Name:      "window_points",
		Help:      "Points accumulated in the rolling window per tracked address.",
	}, []string{"address"})
	lastRunGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "alphapoints",
		Subsystem: "tracker",
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix timestamp of the most recent completed tracking run.",
	})
)

func init() {
	prometheus.MustRegister(forecastsCounter, malformedCounter, fetchDuration, windowPointsGauge, lastRunGauge)
}

// RecordForecast counts one estimate for the given balance tier.
func RecordForecast(tier string) {
	forecastsCounter.WithLabelValues(tier).Inc()
}

// RecordMalformed adds n skipped records.
func RecordMalformed(n int) {
	if n <= 0 {
		return
	}
	malformedCounter.Add(float64(n))
}

// ObserveFetch records how long an upstream call took.
func ObserveFetch(source string, started time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	fetchDuration.WithLabelValues(source, outcome).Observe(time.Since(started).Seconds())
}

// RecordWindowPoints publishes the rolling-window total for an address.
func RecordWindowPoints(address string, points int64) {
	windowPointsGauge.WithLabelValues(address).Set(float64(points))
}

// RecordRun updates the run watermark gauge.
func RecordRun(ts time.Time) {
	if ts.IsZero() {
		return
	}
	lastRunGauge.Set(float64(ts.Unix()))
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
