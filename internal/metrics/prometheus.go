package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus is a Recorder backed by prometheus collectors, exposed via the
// /metrics endpoint.
type Prometheus struct {
	authDecisions     *prometheus.CounterVec
	authorizeDuration prometheus.Histogram
	identityCache     *prometheus.CounterVec
	quotaFallbacks    prometheus.Counter

	credentialsCreated prometheus.Counter
	credentialsRevoked prometheus.Counter
	credentialsRotated prometheus.Counter

	usagePublished *prometheus.CounterVec
	usageProcessed *prometheus.CounterVec
	usageBatchSize prometheus.Histogram
	usageQueueLen  prometheus.Gauge
}

// NewPrometheus creates a Recorder registered on the given registerer.
// Pass prometheus.DefaultRegisterer for the process-wide registry.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	factory := promauto.With(reg)

	return &Prometheus{
		authDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "keygate_auth_decisions_total",
			Help: "Authorization decisions by outcome.",
		}, []string{"outcome"}),
		authorizeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "keygate_authorize_duration_seconds",
			Help:    "Time spent in the authorization pipeline.",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5},
		}),
		identityCache: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "keygate_identity_cache_total",
			Help: "Identity cache lookups by result.",
		}, []string{"result"}),
		quotaFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "keygate_quota_fallback_total",
			Help: "Quota decisions served by the in-process fallback limiter.",
		}),
		credentialsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "keygate_credentials_created_total",
			Help: "Credentials created.",
		}),
		credentialsRevoked: factory.NewCounter(prometheus.CounterOpts{
			Name: "keygate_credentials_revoked_total",
			Help: "Credentials revoked.",
		}),
		credentialsRotated: factory.NewCounter(prometheus.CounterOpts{
			Name: "keygate_credentials_rotated_total",
			Help: "Credentials rotated.",
		}),
		usagePublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "keygate_usage_events_published_total",
			Help: "Usage events published to the stream by status.",
		}, []string{"status"}),
		usageProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "keygate_usage_events_processed_total",
			Help: "Usage events processed by the worker by status.",
		}, []string{"status"}),
		usageBatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "keygate_usage_batch_size",
			Help:    "Usage records written per batch.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		usageQueueLen: factory.NewGauge(prometheus.GaugeOpts{
			Name: "keygate_usage_queue_depth",
			Help: "Pending entries in the usage event stream.",
		}),
	}
}

func (p *Prometheus) IncAuthDecision(outcome string) {
	p.authDecisions.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) ObserveAuthorizeDuration(d time.Duration) {
	p.authorizeDuration.Observe(d.Seconds())
}

func (p *Prometheus) IncIdentityCache(result string) {
	p.identityCache.WithLabelValues(result).Inc()
}

func (p *Prometheus) IncQuotaFallback() {
	p.quotaFallbacks.Inc()
}

func (p *Prometheus) IncCredentialCreated() {
	p.credentialsCreated.Inc()
}

func (p *Prometheus) IncCredentialRevoked() {
	p.credentialsRevoked.Inc()
}

func (p *Prometheus) IncCredentialRotated() {
	p.credentialsRotated.Inc()
}

func (p *Prometheus) IncUsageEventPublished(status string) {
	p.usagePublished.WithLabelValues(status).Inc()
}

func (p *Prometheus) IncUsageEventProcessed(status string) {
	p.usageProcessed.WithLabelValues(status).Inc()
}

func (p *Prometheus) ObserveUsageBatchSize(size int) {
	p.usageBatchSize.Observe(float64(size))
}

func (p *Prometheus) SetUsageQueueDepth(depth int64) {
	p.usageQueueLen.Set(float64(depth))
}

var _ Recorder = (*Prometheus)(nil)
