package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/scisolve/scigateway/internal/auth"
	"github.com/scisolve/scigateway/internal/domain"
	"github.com/scisolve/scigateway/internal/llm"
	"github.com/scisolve/scigateway/internal/notifications"
	"github.com/scisolve/scigateway/internal/queue"
	"github.com/scisolve/scigateway/internal/ratelimit"
	"github.com/scisolve/scigateway/internal/route"
	"github.com/scisolve/scigateway/internal/tool"
	"github.com/scisolve/scigateway/internal/usage"
)

type mockClient struct {
	CompleteFunc func(ctx context.Context, req llm.Request) (*llm.Completion, error)
	calls        int
}

func (m *mockClient) Complete(ctx context.Context, req llm.Request) (*llm.Completion, error) {
	m.calls++
	return m.CompleteFunc(ctx, req)
}

type mockTool struct {
	name       string
	InvokeFunc func(ctx context.Context, args json.RawMessage) (string, error)
	calls      int
}

func (m *mockTool) Name() string                { return m.name }
func (m *mockTool) Description() string         { return "mock backend" }
func (m *mockTool) Parameters() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (m *mockTool) Invoke(ctx context.Context, args json.RawMessage) (string, error) {
	m.calls++
	return m.InvokeFunc(ctx, args)
}

func routeClient(intent string) *mockClient {
	return &mockClient{
		CompleteFunc: func(ctx context.Context, req llm.Request) (*llm.Completion, error) {
			return &llm.Completion{
				Message: llm.Message{Role: "assistant", Content: `{"intent": "` + intent + `"}`},
			}, nil
		},
	}
}

// agentClient answers with one tool call when a tool is offered, then a
// final message.
func agentClient(toolName, final string) *mockClient {
	m := &mockClient{}
	m.CompleteFunc = func(ctx context.Context, req llm.Request) (*llm.Completion, error) {
		if len(req.Tools) > 0 && m.calls == 1 {
			return &llm.Completion{
				Message: llm.Message{
					Role: "assistant",
					ToolCalls: []llm.ToolCall{{
						ID:       "call-1",
						Type:     "function",
						Function: llm.FunctionCall{Name: toolName, Arguments: `{}`},
					}},
				},
				Usage: domain.Usage{PromptTokens: 10, CompletionTokens: 3, TotalTokens: 13},
			}, nil
		}
		return &llm.Completion{
			Message:      llm.Message{Role: "assistant", Content: final},
			FinishReason: "stop",
			Usage:        domain.Usage{PromptTokens: 20, CompletionTokens: 8, TotalTokens: 28},
		}, nil
	}
	return m
}

func chatBody(t *testing.T, model, content string) *bytes.Reader {
	t.Helper()
	body, err := json.Marshal(domain.ChatRequest{
		Model:    model,
		Messages: []domain.Message{{Role: domain.RoleUser, Content: content}},
	})
	if err != nil {
		t.Fatal(err)
	}
	return bytes.NewReader(body)
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) domain.ChatResponse {
	t.Helper()
	var resp domain.ChatResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func TestChatCompletionUnknownModel(t *testing.T) {
	rc := routeClient("DEFAULT")
	h := NewHandler(HandlerConfig{
		Models:      []string{"S1-Base"},
		Classifier:  route.NewClassifier(rc),
		AgentClient: agentClient("", "hi"),
		Registry:    tool.NewRegistry(nil),
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", chatBody(t, "gpt-4", "hello"))
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if rc.calls != 0 {
		t.Error("classifier must not run for an unknown model")
	}
}

func TestChatCompletionMalformedBody(t *testing.T) {
	h := NewHandler(HandlerConfig{
		Models:      []string{"S1-Base"},
		Classifier:  route.NewClassifier(routeClient("DEFAULT")),
		AgentClient: agentClient("", "hi"),
		Registry:    tool.NewRegistry(nil),
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader("{not json"))
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}

	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	if envelope.Error.Message == "" {
		t.Error("error envelope missing message")
	}
}

func TestChatCompletionToolDispatch(t *testing.T) {
	mt := &mockTool{
		name: "alphafold2_structure_prediction",
		InvokeFunc: func(ctx context.Context, args json.RawMessage) (string, error) {
			return `{"structure": "..."}`, nil
		},
	}

	q := queue.NewInMemoryQueue()
	tracker := usage.NewInMemoryTracker()
	h := NewHandler(HandlerConfig{
		Models:      []string{"S1-Base"},
		Classifier:  route.NewClassifier(routeClient("AlphaFold2")),
		AgentClient: agentClient(mt.name, "The structure has two chains."),
		Registry:    tool.NewRegistry(map[string]tool.Tool{"AlphaFold2": mt}),
		Usage:       tracker,
		Queue:       q,
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", chatBody(t, "S1-Base", "fold MKT..."))
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if mt.calls != 1 {
		t.Errorf("adapter called %d times, want 1", mt.calls)
	}

	resp := decodeResponse(t, rec)
	if resp.Choices[0].FinishReason != "stop" {
		t.Errorf("finish_reason = %q, want stop", resp.Choices[0].FinishReason)
	}
	if !strings.Contains(resp.Choices[0].Message.Content, "two chains") {
		t.Errorf("content = %q, want final answer text", resp.Choices[0].Message.Content)
	}
	// Two model turns: 13 + 28 tokens.
	if resp.Usage.TotalTokens != 41 {
		t.Errorf("total tokens = %d, want 41", resp.Usage.TotalTokens)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}

	records, _ := tracker.Recent(context.Background(), 10)
	if len(records) != 1 || records[0].Intent != "AlphaFold2" || records[0].Tool != mt.name {
		t.Errorf("usage records = %+v, want one AlphaFold2 entry", records)
	}
	if published := q.Records(); len(published) != 1 {
		t.Errorf("queue got %d events, want 1", len(published))
	}
}

func TestChatCompletionUnknownIntentRunsWithoutTools(t *testing.T) {
	ac := &mockClient{
		CompleteFunc: func(ctx context.Context, req llm.Request) (*llm.Completion, error) {
			if len(req.Tools) != 0 {
				t.Errorf("agent offered %d tools, want none", len(req.Tools))
			}
			return &llm.Completion{
				Message: llm.Message{Role: "assistant", Content: "I can answer that directly."},
			}, nil
		},
	}

	h := NewHandler(HandlerConfig{
		Models:      []string{"S1-Base"},
		Classifier:  route.NewClassifier(routeClient("QUANTUM_GRAVITY")),
		AgentClient: ac,
		Registry:    tool.NewRegistry(nil),
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", chatBody(t, "S1-Base", "explain"))
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp.Choices[0].Message.Content == "" {
		t.Error("empty content for unknown intent")
	}
}

func TestChatCompletionRouteParseError(t *testing.T) {
	rc := &mockClient{
		CompleteFunc: func(ctx context.Context, req llm.Request) (*llm.Completion, error) {
			return &llm.Completion{
				Message: llm.Message{Role: "assistant", Content: "definitely proteins"},
			}, nil
		},
	}
	ac := &mockClient{
		CompleteFunc: func(ctx context.Context, req llm.Request) (*llm.Completion, error) {
			return nil, errors.New("must not be called")
		},
	}

	h := NewHandler(HandlerConfig{
		Models:      []string{"S1-Base"},
		Classifier:  route.NewClassifier(rc),
		AgentClient: ac,
		Registry:    tool.NewRegistry(nil),
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", chatBody(t, "S1-Base", "fold"))
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
	if ac.calls != 0 {
		t.Error("agent must not run after a route parse error")
	}
}

func TestChatCompletionClassifierUnavailable(t *testing.T) {
	rc := &mockClient{
		CompleteFunc: func(ctx context.Context, req llm.Request) (*llm.Completion, error) {
			return nil, errors.New("connection refused")
		},
	}

	h := NewHandler(HandlerConfig{
		Models:      []string{"S1-Base"},
		Classifier:  route.NewClassifier(rc),
		AgentClient: agentClient("", "hi"),
		Registry:    tool.NewRegistry(nil),
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", chatBody(t, "S1-Base", "hello"))
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestChatCompletionBackendFailureStillCompletes(t *testing.T) {
	mt := &mockTool{
		name: "dna_predict",
		InvokeFunc: func(ctx context.Context, args json.RawMessage) (string, error) {
			return "", errors.New("backend error: status=500")
		},
	}

	notifier := notifications.NewInMemoryNotifier()
	h := NewHandler(HandlerConfig{
		Models:      []string{"S1-Base"},
		Classifier:  route.NewClassifier(routeClient("EVO2")),
		AgentClient: agentClient(mt.name, "The DNA service is unavailable right now."),
		Registry:    tool.NewRegistry(map[string]tool.Tool{"EVO2": mt}),
		Notifier:    notifier,
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", chatBody(t, "S1-Base", "extend ATCG"))
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 despite backend failure", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp.Choices[0].Message.Content == "" {
		t.Error("response content empty after backend failure")
	}

	sent := notifier.Notifications()
	if len(sent) != 1 || sent[0].Type != notifications.NotificationBackendFailure || sent[0].Backend != mt.name {
		t.Errorf("notifications = %+v, want one backend_failure for %s", sent, mt.name)
	}
}

func TestChatCompletionAuth(t *testing.T) {
	keys, err := auth.NewKeyStore([]string{"sk-test-123"})
	if err != nil {
		t.Fatal(err)
	}

	h := NewHandler(HandlerConfig{
		Models:      []string{"S1-Base"},
		Classifier:  route.NewClassifier(routeClient("DEFAULT")),
		AgentClient: agentClient("", "hi"),
		Registry:    tool.NewRegistry(nil),
		Keys:        keys,
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", chatBody(t, "S1-Base", "hello"))
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status without key = %d, want 401", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/chat/completions", chatBody(t, "S1-Base", "hello"))
	req.Header.Set("Authorization", "Bearer sk-test-123")
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status with key = %d, want 200", rec.Code)
	}
}

func TestChatCompletionRateLimit(t *testing.T) {
	h := NewHandler(HandlerConfig{
		Models:       []string{"S1-Base"},
		Classifier:   route.NewClassifier(routeClient("DEFAULT")),
		AgentClient:  agentClient("", "hi"),
		Registry:     tool.NewRegistry(nil),
		RateLimiter:  ratelimit.NewInMemoryRateLimiter(),
		RateLimitRPM: 2,
	})

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", chatBody(t, "S1-Base", "hello"))
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", chatBody(t, "S1-Base", "hello"))
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("X-RateLimit-Limit") != "2" {
		t.Errorf("X-RateLimit-Limit = %q, want 2", rec.Header().Get("X-RateLimit-Limit"))
	}
}

func TestChatCompletionStopAsString(t *testing.T) {
	h := NewHandler(HandlerConfig{
		Models:      []string{"S1-Base"},
		Classifier:  route.NewClassifier(routeClient("DEFAULT")),
		AgentClient: agentClient("", "done"),
		Registry:    tool.NewRegistry(nil),
	})

	// The wire format allows stop as a bare string, not only an array.
	body := `{"model": "S1-Base", "messages": [{"role": "user", "content": "hi"}], "stop": "###"}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s, want 200", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	if resp.Choices[0].Message.Content == "" {
		t.Error("empty content for string-form stop request")
	}
}

func TestChatCompletionSamplingDefaults(t *testing.T) {
	var got llm.Sampling
	ac := &mockClient{
		CompleteFunc: func(ctx context.Context, req llm.Request) (*llm.Completion, error) {
			got = req.Sampling
			return &llm.Completion{
				Message: llm.Message{Role: "assistant", Content: "ok"},
			}, nil
		},
	}

	h := NewHandler(HandlerConfig{
		Models:      []string{"S1-Base"},
		Classifier:  route.NewClassifier(routeClient("DEFAULT")),
		AgentClient: ac,
		Registry:    tool.NewRegistry(nil),
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", chatBody(t, "S1-Base", "hello"))
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	if got.Temperature == nil || *got.Temperature != 0.7 {
		t.Errorf("temperature = %v, want default 0.7", got.Temperature)
	}
	if got.TopP == nil || *got.TopP != 1.0 {
		t.Errorf("top_p = %v, want default 1.0", got.TopP)
	}
	if got.MaxTokens == nil || *got.MaxTokens != 512 {
		t.Errorf("max_tokens = %v, want default 512", got.MaxTokens)
	}
}

func TestChatCompletionSamplingOverrides(t *testing.T) {
	var got llm.Sampling
	ac := &mockClient{
		CompleteFunc: func(ctx context.Context, req llm.Request) (*llm.Completion, error) {
			got = req.Sampling
			return &llm.Completion{
				Message: llm.Message{Role: "assistant", Content: "ok"},
			}, nil
		},
	}

	h := NewHandler(HandlerConfig{
		Models:      []string{"S1-Base"},
		Classifier:  route.NewClassifier(routeClient("DEFAULT")),
		AgentClient: ac,
		Registry:    tool.NewRegistry(nil),
	})

	body := `{"model": "S1-Base", "messages": [{"role": "user", "content": "hi"}], "temperature": 0.1, "max_tokens": 64}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	if got.Temperature == nil || *got.Temperature != 0.1 {
		t.Errorf("temperature = %v, want caller's 0.1", got.Temperature)
	}
	if got.MaxTokens == nil || *got.MaxTokens != 64 {
		t.Errorf("max_tokens = %v, want caller's 64", got.MaxTokens)
	}
}

// Two identical requests run two full pipelines: no memoization anywhere.
func TestChatCompletionNoCaching(t *testing.T) {
	mt := &mockTool{
		name: "matterGen_tool",
		InvokeFunc: func(ctx context.Context, args json.RawMessage) (string, error) {
			return `{"data": {}}`, nil
		},
	}
	rc := routeClient("MatterGen")

	for i := 0; i < 2; i++ {
		h := NewHandler(HandlerConfig{
			Models:      []string{"S1-Base"},
			Classifier:  route.NewClassifier(rc),
			AgentClient: agentClient(mt.name, "Generated 16 structures."),
			Registry:    tool.NewRegistry(map[string]tool.Tool{"MatterGen": mt}),
		})
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", chatBody(t, "S1-Base", "generate materials"))
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, rec.Code)
		}
	}

	if rc.calls != 2 {
		t.Errorf("classifier ran %d times, want 2", rc.calls)
	}
	if mt.calls != 2 {
		t.Errorf("adapter ran %d times, want 2", mt.calls)
	}
}

func TestListModels(t *testing.T) {
	h := NewHandler(HandlerConfig{
		Models:      []string{"S1-Base", "S1-Pro"},
		Classifier:  route.NewClassifier(routeClient("DEFAULT")),
		AgentClient: agentClient("", "hi"),
		Registry:    tool.NewRegistry(nil),
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp domain.ModelsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Object != "list" || len(resp.Data) != 2 {
		t.Errorf("models response = %+v, want list of 2", resp)
	}
}

func TestAdminTools(t *testing.T) {
	mt := &mockTool{name: "spectrum_predict"}
	h := NewHandler(HandlerConfig{
		Models:      []string{"S1-Base"},
		Classifier:  route.NewClassifier(routeClient("DEFAULT")),
		AgentClient: agentClient("", "hi"),
		Registry:    tool.NewRegistry(map[string]tool.Tool{"SPECTRUM": mt}),
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/tools", nil)
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "spectrum_predict") {
		t.Errorf("body = %s, want spectrum_predict listed", rec.Body.String())
	}
}

func TestAdminUsageDisabled(t *testing.T) {
	h := NewHandler(HandlerConfig{
		Models:      []string{"S1-Base"},
		Classifier:  route.NewClassifier(routeClient("DEFAULT")),
		AgentClient: agentClient("", "hi"),
		Registry:    tool.NewRegistry(nil),
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/usage", nil)
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 when tracking disabled", rec.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	failing := CheckerFunc{
		CheckerName: "evo2",
		Fn: func(ctx context.Context) error {
			return errors.New("unhealthy: status=503")
		},
	}
	healthy := CheckerFunc{
		CheckerName: "esm3",
		Fn:          func(ctx context.Context) error { return nil },
	}

	h := NewHandler(HandlerConfig{
		Models:         []string{"S1-Base"},
		Classifier:     route.NewClassifier(routeClient("DEFAULT")),
		AgentClient:    agentClient("", "hi"),
		Registry:       tool.NewRegistry(nil),
		HealthCheckers: []HealthChecker{healthy, failing},
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("liveness status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "degraded") {
		t.Errorf("health body = %s, want degraded", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readiness status = %d, want 503", rec.Code)
	}
}
