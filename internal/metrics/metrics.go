package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP Metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameHTTPRequestsTotal,
			Help: HelpTextHTTPRequestsTotal,
		},
		[]string{LabelMethod, LabelPath, LabelStatus},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    MetricNameHTTPRequestDuration,
			Help:    HelpTextHTTPRequestDuration,
			Buckets: HTTPLatencyBuckets,
		},
		[]string{LabelMethod, LabelPath},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: MetricNameHTTPRequestsInFlight,
			Help: HelpTextHTTPRequestsInFlight,
		},
	)
)

// Flow Metrics
var (
	AuthRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameAuthRequests,
			Help: HelpTextAuthRequests,
		},
		[]string{LabelOutcome},
	)

	FlowResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameFlowResults,
			Help: HelpTextFlowResults,
		},
		[]string{LabelOutcome, LabelCode},
	)

	FlowDuplicates = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: MetricNameFlowDuplicates,
			Help: HelpTextFlowDuplicates,
		},
	)

	NormalizedErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameNormalizedErrors,
			Help: HelpTextNormalizedErrors,
		},
		[]string{LabelSource, LabelCode},
	)

	HostConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: MetricNameHostConnections,
			Help: HelpTextHostConnections,
		},
	)
)

// Backend Metrics
var (
	BackendRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameBackendRequests,
			Help: HelpTextBackendRequests,
		},
		[]string{LabelOperation, LabelStatus},
	)

	BackendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    MetricNameBackendDuration,
			Help:    HelpTextBackendDuration,
			Buckets: BackendLatencyBuckets,
		},
		[]string{LabelOperation},
	)

	StatusCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameStatusCacheLookup,
			Help: HelpTextStatusCacheLookup,
		},
		[]string{LabelResult},
	)
)
