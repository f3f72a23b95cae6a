package mattergen

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

func TestInvokeDefaults(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/generate" {
			t.Errorf("path = %q, want /generate", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatal(err)
		}
		w.Write([]byte(`{"data": {"structures": ["..."], "generation_time": 42.5}}`))
	}))
	defer srv.Close()

	a := New(srv.URL, srv.Client())
	out, err := a.Invoke(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got["model_name"] != "mattergen_base" {
		t.Errorf("model_name = %v, want mattergen_base", got["model_name"])
	}
	if got["batch_size"] != float64(16) || got["num_batches"] != float64(1) {
		t.Errorf("batch defaults wrong: %v", got)
	}
	if _, set := got["properties_to_condition_on"]; set {
		t.Error("properties_to_condition_on must be omitted when unset")
	}
	if strings.Contains(out, "generation_time") {
		t.Errorf("result %q still carries generation_time", out)
	}
	if !strings.Contains(out, "structures") {
		t.Errorf("result %q lost the structures", out)
	}
}

func TestInvokeConditioning(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"data": {}}`))
	}))
	defer srv.Close()

	a := New(srv.URL, srv.Client())
	args := `{"batch_size": 4, "num_batches": 2, "properties_to_condition_on": {"dft_mag_density": 0.15}}`
	if _, err := a.Invoke(context.Background(), json.RawMessage(args)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got["batch_size"] != float64(4) || got["num_batches"] != float64(2) {
		t.Errorf("batch overrides lost: %v", got)
	}
	cond, ok := got["properties_to_condition_on"].(map[string]interface{})
	if !ok || cond["dft_mag_density"] != 0.15 {
		t.Errorf("conditioning = %v, want dft_mag_density 0.15", got["properties_to_condition_on"])
	}
}

func TestInvokeValidation(t *testing.T) {
	a := New("http://unused", http.DefaultClient)
	_, err := a.Invoke(context.Background(), json.RawMessage(`{"batch_size": 0}`))
	var vErr *tool.ValidationError
	if !errors.As(err, &vErr) {
		t.Errorf("error = %v, want ValidationError", err)
	}
}
