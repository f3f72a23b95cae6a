package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestPostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q, want application/json", ct)
		}
		w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	body, err := PostJSON(context.Background(), srv.Client(), srv.URL, map[string]string{"k": "v"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(body) != `{"ok": true}` {
		t.Errorf("body = %s", body)
	}
}

func TestPostJSONNon2xxCarriesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "sequence rejected", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	_, err := PostJSON(context.Background(), srv.Client(), srv.URL, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "status=422") || !strings.Contains(err.Error(), "sequence rejected") {
		t.Errorf("error = %v, want status and body", err)
	}
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := Ping(context.Background(), srv.Client(), srv.URL); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := Ping(context.Background(), srv.Client(), srv.URL+"/missing"); err == nil {
		t.Error("expected error for missing health endpoint")
	}
}
