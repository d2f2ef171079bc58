package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "registry"

var (
	WebhooksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhooks_total",
			Help:      "Total number of CI webhooks received, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	ArtifactFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifact_fetches_total",
			Help:      "Total number of CI artifact requests, labeled by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	AssemblyLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "assembly_latency_seconds",
			Help:      "Time spent assembling a verification result from job artifacts (seconds).",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"outcome"},
	)

	PollRoundsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_rounds_total",
			Help:      "Total number of pending-request poll rounds, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	RequestsObservedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_observed_total",
			Help:      "Total number of newly observed verification requests emitted by the poller.",
		},
	)

	PollWatermark = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "poll_watermark",
			Help:      "Highest verification request id delivered by the poller.",
		},
	)

	TransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Total number of submitted contract transactions, labeled by method and outcome.",
		},
		[]string{"method", "outcome"},
	)

	TransactionStatusPollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transaction_status_polls_total",
			Help:      "Total number of transaction status queries, labeled by observed state.",
		},
		[]string{"state"},
	)

	DispatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Total number of CI pipeline dispatches for pending requests, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	RateLimitHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_hits_total",
			Help:      "Total number of requests rejected by rate limiting.",
		},
		[]string{"scope", "operation"},
	)
)

func init() {
	prometheus.MustRegister(
		WebhooksTotal,
		ArtifactFetchesTotal,
		AssemblyLatencySeconds,
		PollRoundsTotal,
		RequestsObservedTotal,
		PollWatermark,
		TransactionsTotal,
		TransactionStatusPollsTotal,
		DispatchesTotal,
		RateLimitHitsTotal,
	)
}
