package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scigateway_requests_total",
			Help: "Total number of chat-completion requests processed",
		},
		[]string{"model", "intent", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scigateway_request_duration_seconds",
			Help:    "End-to-end request duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"model", "intent"},
	)

	RouteDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scigateway_route_decisions_total",
			Help: "Total number of route classifications by intent",
		},
		[]string{"intent"},
	)

	RouteParseErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scigateway_route_parse_errors_total",
			Help: "Total number of unparseable classifier replies",
		},
	)

	ToolInvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scigateway_tool_invocations_total",
			Help: "Total number of backend tool invocations",
		},
		[]string{"tool", "status"},
	)

	TokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scigateway_tokens_total",
			Help: "Total number of tokens reported by the agent model",
		},
		[]string{"model", "type"},
	)

	AgentSteps = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scigateway_agent_steps",
			Help:    "Number of model turns per agent loop",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10},
		},
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scigateway_rate_limit_hits_total",
			Help: "Total number of rate limited requests",
		},
		[]string{"caller"},
	)
)

func RecordRequest(model, intent, status string, durationSec float64) {
	RequestsTotal.WithLabelValues(model, intent, status).Inc()
	RequestDuration.WithLabelValues(model, intent).Observe(durationSec)
}

func RecordRouteDecision(intent string) {
	RouteDecisionsTotal.WithLabelValues(intent).Inc()
}

func RecordRouteParseError() {
	RouteParseErrors.Inc()
}

func RecordToolInvocation(toolName, status string) {
	ToolInvocationsTotal.WithLabelValues(toolName, status).Inc()
}

func RecordTokens(model string, promptTokens, completionTokens int) {
	TokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	TokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
}

func ObserveAgentSteps(steps int) {
	AgentSteps.Observe(float64(steps))
}

func RecordRateLimitHit(caller string) {
	RateLimitHits.WithLabelValues(caller).Inc()
}
