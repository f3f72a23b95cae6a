package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scisolve/scigateway/internal/agent"
	"github.com/scisolve/scigateway/internal/auth"
	"github.com/scisolve/scigateway/internal/domain"
	"github.com/scisolve/scigateway/internal/llm"
	"github.com/scisolve/scigateway/internal/metrics"
	"github.com/scisolve/scigateway/internal/notifications"
	"github.com/scisolve/scigateway/internal/queue"
	"github.com/scisolve/scigateway/internal/ratelimit"
	"github.com/scisolve/scigateway/internal/route"
	"github.com/scisolve/scigateway/internal/telemetry"
	"github.com/scisolve/scigateway/internal/tool"
	"github.com/scisolve/scigateway/internal/usage"
)

type HandlerConfig struct {
	Models        []string
	Classifier    *route.Classifier
	AgentClient   llm.Client
	Registry      *tool.Registry
	MaxAgentSteps int

	// Optional collaborators; nil disables the feature.
	Keys           *auth.KeyStore
	RateLimiter    ratelimit.RateLimiter
	RateLimitRPM   int
	Usage          usage.Tracker
	Queue          queue.Queue
	Notifier       notifications.Notifier
	HealthCheckers []HealthChecker
}

type Handler struct {
	models        map[string]bool
	modelList     []string
	classifier    *route.Classifier
	agentClient   llm.Client
	registry      *tool.Registry
	maxAgentSteps int

	keys         *auth.KeyStore
	rateLimiter  ratelimit.RateLimiter
	rateLimitRPM int
	usage        usage.Tracker
	queue        queue.Queue
	notifier     notifications.Notifier
	checkers     []HealthChecker

	mux *http.ServeMux
}

func NewHandler(cfg HandlerConfig) *Handler {
	models := make(map[string]bool, len(cfg.Models))
	for _, m := range cfg.Models {
		models[m] = true
	}

	h := &Handler{
		models:        models,
		modelList:     cfg.Models,
		classifier:    cfg.Classifier,
		agentClient:   cfg.AgentClient,
		registry:      cfg.Registry,
		maxAgentSteps: cfg.MaxAgentSteps,
		keys:          cfg.Keys,
		rateLimiter:   cfg.RateLimiter,
		rateLimitRPM:  cfg.RateLimitRPM,
		usage:         cfg.Usage,
		queue:         cfg.Queue,
		notifier:      cfg.Notifier,
		checkers:      cfg.HealthCheckers,
		mux:           http.NewServeMux(),
	}

	h.mux.HandleFunc("POST /v1/chat/completions", h.handleChatCompletions)
	h.mux.HandleFunc("GET /v1/models", h.handleListModels)
	h.mux.HandleFunc("GET /admin/tools", h.handleListTools)
	h.mux.HandleFunc("GET /admin/usage", h.handleRecentUsage)
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /health/live", h.handleHealthLive)
	h.mux.HandleFunc("GET /health/ready", h.handleHealthReady)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.New().String()
	}

	ctx, span := telemetry.StartSpan(ctx, "chat_completion")
	defer span.End()

	if h.keys != nil && !h.keys.Verify(extractAPIKey(r)) {
		writeError(w, http.StatusUnauthorized, "invalid API key")
		return
	}

	var req domain.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Unknown models are rejected before any model or backend call.
	if !h.models[req.Model] {
		metrics.RecordRequest(req.Model, "", "model_not_found", time.Since(start).Seconds())
		writeError(w, http.StatusNotFound, "model "+req.Model+" not found")
		return
	}

	telemetry.AddRequestAttributes(span, req.Model, requestID)

	if h.rateLimiter != nil && h.rateLimitRPM > 0 {
		caller := callerKey(r, req)
		allowed, remaining, resetAt, err := h.rateLimiter.Allow(ctx, caller, h.rateLimitRPM)
		if err != nil {
			slog.Error("rate limiter error", "error", err, "request_id", requestID)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(h.rateLimitRPM))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", resetAt.Format(time.RFC3339))

		if !allowed {
			metrics.RecordRateLimitHit(caller)
			slog.Warn("rate limit exceeded", "caller", caller, "request_id", requestID)
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
	}

	sampling := samplingFrom(req)

	decision, err := h.classifier.Classify(ctx, req.Messages, sampling)
	if err != nil {
		telemetry.AddErrorAttribute(span, err)
		if errors.Is(err, domain.ErrRouteParse) {
			// Guessing a tool risks invoking the wrong scientific
			// backend, so an unparseable decision fails the request.
			metrics.RecordRouteParseError()
			metrics.RecordRequest(req.Model, "", "route_parse_error", time.Since(start).Seconds())
			slog.Error("route decision unparseable", "error", err, "request_id", requestID)
			writeError(w, http.StatusBadGateway, "failed to classify request")
			return
		}
		metrics.RecordRequest(req.Model, "", "classifier_error", time.Since(start).Seconds())
		slog.Error("classifier call failed", "error", err, "request_id", requestID)
		writeError(w, http.StatusBadGateway, "classifier unavailable")
		return
	}

	boundTool := h.registry.Lookup(decision.Intent)
	metrics.RecordRouteDecision(decision.Intent)
	telemetry.AddRouteAttributes(span, decision.Intent, boundTool != nil)

	loop := agent.New(agent.Config{
		Client:   h.agentClient,
		Tool:     boundTool,
		MaxSteps: h.maxAgentSteps,
	})

	result, err := loop.Run(ctx, req.Messages, sampling)
	if err != nil {
		telemetry.AddErrorAttribute(span, err)
		metrics.RecordRequest(req.Model, decision.Intent, "agent_error", time.Since(start).Seconds())
		slog.Error("agent loop failed", "error", err, "request_id", requestID, "intent", decision.Intent)
		writeError(w, http.StatusBadGateway, "agent unavailable")
		return
	}

	h.notifyFailures(r, requestID, result)

	resp := assembleResponse(req.Model, result, time.Now())
	telemetry.AddTokenAttributes(span, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	latency := time.Since(start)
	metrics.RecordRequest(req.Model, decision.Intent, "success", latency.Seconds())
	metrics.RecordTokens(req.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	h.recordUsage(r, requestID, req.Model, decision.Intent, result, resp.Usage, latency)

	slog.Info("request completed",
		"request_id", requestID,
		"model", req.Model,
		"intent", decision.Intent,
		"steps", len(result.Messages),
		"finish_reason", resp.Choices[0].FinishReason,
		"latency_ms", latency.Milliseconds(),
	)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	json.NewEncoder(w).Encode(resp)
}

// notifyFailures raises an operational alert for every failed backend
// invocation. The request itself still completes; the failure already went
// back to the agent model as an observation.
func (h *Handler) notifyFailures(r *http.Request, requestID string, result *agent.Result) {
	if h.notifier == nil {
		return
	}

	for _, inv := range result.Invocations {
		if inv.Err == "" {
			continue
		}
		notification := notifications.Notification{
			Type:      notifications.NotificationBackendFailure,
			RequestID: requestID,
			Backend:   inv.Tool,
			Message:   inv.Err,
		}
		if err := h.notifier.Send(r.Context(), notification); err != nil {
			slog.Warn("failed to send notification", "error", err, "request_id", requestID)
		}
	}
}

func (h *Handler) recordUsage(r *http.Request, requestID, model, intent string, result *agent.Result, total domain.Usage, latency time.Duration) {
	toolName := ""
	status := "success"
	for _, inv := range result.Invocations {
		toolName = inv.Tool
		if inv.Err != "" {
			status = "tool_error"
		}
	}
	if result.HitStepBound {
		status = "step_bound"
	}

	record := usage.Record{
		RequestID:        requestID,
		Model:            model,
		Intent:           intent,
		Tool:             toolName,
		PromptTokens:     total.PromptTokens,
		CompletionTokens: total.CompletionTokens,
		TotalTokens:      total.TotalTokens,
		LatencyMs:        latency.Milliseconds(),
		Status:           status,
		Timestamp:        time.Now(),
	}

	if h.usage != nil {
		if err := h.usage.Record(r.Context(), record); err != nil {
			slog.Warn("failed to record usage", "error", err, "request_id", requestID)
		}
	}
	if h.queue != nil {
		if err := h.queue.Publish(r.Context(), record); err != nil {
			slog.Warn("failed to publish usage event", "error", err, "request_id", requestID)
		}
	}
}

func (h *Handler) handleListModels(w http.ResponseWriter, r *http.Request) {
	models := make([]domain.Model, 0, len(h.modelList))
	for _, id := range h.modelList {
		models = append(models, domain.Model{
			ID:      id,
			Object:  "model",
			OwnedBy: "scigateway",
		})
	}

	resp := domain.ModelsResponse{
		Object: "list",
		Data:   models,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// Sampling defaults applied when the caller omits a parameter, so both
// model endpoints always receive explicit values. Generation is capped at
// 512 tokens unless the caller raises it.
const (
	defaultTemperature = 0.7
	defaultTopP        = 1.0
	defaultMaxTokens   = 512
)

func samplingFrom(req domain.ChatRequest) llm.Sampling {
	temperature := float64(defaultTemperature)
	topP := float64(defaultTopP)
	maxTokens := defaultMaxTokens

	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	if req.TopP != nil {
		topP = *req.TopP
	}
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	return llm.Sampling{
		Temperature: &temperature,
		TopP:        &topP,
		MaxTokens:   &maxTokens,
	}
}

// callerKey identifies the caller for rate limiting: the request's user
// field when present, else the bearer key, else the remote host.
func callerKey(r *http.Request, req domain.ChatRequest) string {
	if req.User != "" {
		return req.User
	}
	if key := extractAPIKey(r); key != "" {
		return key
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func extractAPIKey(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"message": message,
			"type":    "error",
			"code":    status,
		},
	})
}
