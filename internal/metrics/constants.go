package metrics

// Metric names
const (
	MetricNameHTTPRequestsTotal    = "kiosk_http_requests_total"
	MetricNameHTTPRequestDuration  = "kiosk_http_request_duration_seconds"
	MetricNameHTTPRequestsInFlight = "kiosk_http_requests_in_flight"

	MetricNameAuthRequests      = "kiosk_auth_requests_total"
	MetricNameFlowResults       = "kiosk_flow_results_total"
	MetricNameFlowDuplicates    = "kiosk_flow_duplicate_resolutions_total"
	MetricNameBackendRequests   = "kiosk_backend_requests_total"
	MetricNameBackendDuration   = "kiosk_backend_request_duration_seconds"
	MetricNameNormalizedErrors  = "kiosk_normalized_errors_total"
	MetricNameHostConnections   = "kiosk_host_connections"
	MetricNameStatusCacheLookup = "kiosk_status_cache_lookups_total"
)

// Help text
const (
	HelpTextHTTPRequestsTotal    = "Total number of HTTP requests"
	HelpTextHTTPRequestDuration  = "HTTP request latency in seconds"
	HelpTextHTTPRequestsInFlight = "Current number of HTTP requests being served"

	HelpTextAuthRequests      = "Player PIN authentication requests sent to the host"
	HelpTextFlowResults       = "Terminal results of promotion flows"
	HelpTextFlowDuplicates    = "Flow resolutions that lost the terminal claim"
	HelpTextBackendRequests   = "Promotion backend calls"
	HelpTextBackendDuration   = "Promotion backend call latency in seconds"
	HelpTextNormalizedErrors  = "Errors normalized for display"
	HelpTextHostConnections   = "Connected host channels"
	HelpTextStatusCacheLookup = "Player status cache lookups"
)

// Labels
const (
	LabelMethod    = "method"
	LabelPath      = "path"
	LabelStatus    = "status"
	LabelOperation = "operation"
	LabelOutcome   = "outcome"
	LabelCode      = "code"
	LabelSource    = "source"
	LabelResult    = "result"
)

// Label values
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeError   = "error"
	ResultHit      = "hit"
	ResultMiss     = "miss"
)

var (
	HTTPLatencyBuckets    = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5}
	BackendLatencyBuckets = []float64{.05, .1, .25, .5, 1, 2, 4, 8}
)
