package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groupchat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "groupchat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Chat metrics
	MessagesPosted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groupchat_messages_posted_total",
			Help: "Total messages written, by kind",
		},
		[]string{"type"},
	)

	ConversationsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "groupchat_conversations_created_total",
			Help: "Total conversations created",
		},
	)

	// Intervention metrics
	InterventionDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groupchat_intervention_decisions_total",
			Help: "Intervention decisions by role and reason",
		},
		[]string{"role", "reason"},
	)

	LifecycleOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groupchat_lifecycle_outcomes_total",
			Help: "AI response lifecycle outcomes by role",
		},
		[]string{"role", "status"},
	)

	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "groupchat_generation_duration_seconds",
			Help:    "Time spent waiting for generated replies",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 30},
		},
		[]string{"role"},
	)

	GenerationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groupchat_generation_failures_total",
			Help: "Generation failures by cause",
		},
		[]string{"role", "cause"},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groupchat_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"scope"},
	)

	// Worker metrics
	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groupchat_worker_jobs_total",
			Help: "Queued generation jobs processed, by result",
		},
		[]string{"status"},
	)

	// Infrastructure metrics
	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "groupchat_store_latency_seconds",
			Help:    "Message store operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
		[]string{"driver", "op"},
	)
)
