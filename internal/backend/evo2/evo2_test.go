package evo2

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/scisolve/scigateway/internal/tool"
)

func TestInvokePayloadAndEcho(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/biology/arc/evo2/generate" {
			t.Errorf("path = %q, want /biology/arc/evo2/generate", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatal(err)
		}
		w.Write([]byte(`{"generated_sequence": "GGCC"}`))
	}))
	defer srv.Close()

	a := New(srv.URL, srv.Client())
	out, err := a.Invoke(context.Background(), json.RawMessage(`{"sequence": "TTAA", "num_tokens": 4}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got["enable_logits"] != false {
		t.Errorf("enable_logits = %v, want false", got["enable_logits"])
	}
	if got["enable_sampled_probs"] != true {
		t.Errorf("enable_sampled_probs = %v, want true", got["enable_sampled_probs"])
	}
	if got["num_tokens"] != float64(4) {
		t.Errorf("num_tokens = %v, want 4", got["num_tokens"])
	}
	if got["temperature"] != 0.7 || got["top_k"] != float64(3) || got["top_p"] != float64(1) {
		t.Errorf("sampling defaults wrong: %v", got)
	}

	var result map[string]interface{}
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatal(err)
	}
	if result["input_sequence"] != "TTAA" {
		t.Errorf("input_sequence = %v, want TTAA echoed", result["input_sequence"])
	}
	if result["generated_sequence"] != "GGCC" {
		t.Errorf("generated_sequence = %v, want GGCC", result["generated_sequence"])
	}
}

func TestInvokeValidation(t *testing.T) {
	a := New("http://unused", http.DefaultClient)

	cases := []struct {
		name string
		args string
	}{
		{"missing sequence", `{}`},
		{"sequence too long", `{"sequence": "` + strings.Repeat("A", 501) + `"}`},
		{"num_tokens too large", `{"sequence": "TTAA", "num_tokens": 301}`},
		{"temperature too high", `{"sequence": "TTAA", "temperature": 1.31}`},
		{"top_k too large", `{"sequence": "TTAA", "top_k": 7}`},
		{"top_p above one", `{"sequence": "TTAA", "top_p": 1.1}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := a.Invoke(context.Background(), json.RawMessage(tc.args))
			var vErr *tool.ValidationError
			if !errors.As(err, &vErr) {
				t.Errorf("error = %v, want ValidationError", err)
			}
		})
	}
}
