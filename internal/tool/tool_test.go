package tool

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

type stubTool struct {
	name string
}

func (s *stubTool) Name() string                { return s.name }
func (s *stubTool) Description() string         { return "stub" }
func (s *stubTool) Parameters() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (s *stubTool) Invoke(ctx context.Context, args json.RawMessage) (string, error) {
	return "ok", nil
}

func TestRegistryLookup(t *testing.T) {
	tool := &stubTool{name: "structure_prediction"}
	r := NewRegistry(map[string]Tool{"AlphaFold2": tool})

	if got := r.Lookup("AlphaFold2"); got != tool {
		t.Error("registered intent did not resolve to its tool")
	}
	if got := r.Lookup(IntentDefault); got != nil {
		t.Error("DEFAULT must resolve to no tool")
	}
	if got := r.Lookup("SOMETHING_ELSE"); got != nil {
		t.Error("unknown intent must resolve to no tool")
	}
}

func TestRegistryCopiesMapping(t *testing.T) {
	src := map[string]Tool{"ESM3": &stubTool{name: "esm3"}}
	r := NewRegistry(src)

	delete(src, "ESM3")
	if r.Lookup("ESM3") == nil {
		t.Error("registry must not share the caller's map")
	}
}

func TestRegistryIntentsSorted(t *testing.T) {
	r := NewRegistry(map[string]Tool{
		"FIELD":      &stubTool{name: "field"},
		"AlphaFold2": &stubTool{name: "af2"},
		"ESM3":       &stubTool{name: "esm3"},
	})

	want := []string{"AlphaFold2", "ESM3", "FIELD"}
	if got := r.Intents(); !reflect.DeepEqual(got, want) {
		t.Errorf("Intents() = %v, want %v", got, want)
	}
}

func TestDef(t *testing.T) {
	def := Def(&stubTool{name: "dna_predict"})
	if def.Type != "function" {
		t.Errorf("type = %q, want function", def.Type)
	}
	if def.Function.Name != "dna_predict" {
		t.Errorf("name = %q, want dna_predict", def.Function.Name)
	}
	if len(def.Function.Parameters) == 0 {
		t.Error("parameters schema missing")
	}
}

func TestValidationErrorUnwrap(t *testing.T) {
	inner := errors.New("sequence too long")
	err := &ValidationError{Tool: "esm3", Err: inner}
	if !errors.Is(err, inner) {
		t.Error("ValidationError must unwrap to its cause")
	}
}
