// Package tool defines the capability interface every backend adapter
// implements and the immutable intent registry the dispatcher resolves
// against.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/scisolve/scigateway/internal/llm"
)

// IntentDefault is the no-tool sentinel: requests classified as DEFAULT run
// the agent with zero tools bound.
const IntentDefault = "DEFAULT"

// Tool is the uniform contract over heterogeneous backend adapters: validate
// raw JSON arguments against the adapter's schema, call the backend, return
// a textual result or an error. The dispatcher never sees concrete payload
// shapes.
type Tool interface {
	Name() string
	Description() string
	// Parameters returns the JSON schema advertised to the agent model.
	Parameters() json.RawMessage
	Invoke(ctx context.Context, args json.RawMessage) (string, error)
}

// ValidationError marks argument rejection before any network call; the
// agent loop surfaces it as an observation so the model can correct itself.
type ValidationError struct {
	Tool string
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %v", e.Tool, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Registry maps intent labels to tools. It is built once at startup and
// read-only afterwards, so concurrent lookups need no synchronization.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry copies the given mapping. Nil values are allowed and behave
// like the DEFAULT sentinel: the intent resolves to no tool.
func NewRegistry(tools map[string]Tool) *Registry {
	m := make(map[string]Tool, len(tools))
	for intent, t := range tools {
		m[intent] = t
	}
	return &Registry{tools: m}
}

// Lookup resolves an intent label. It returns nil for the DEFAULT sentinel,
// for intents registered without a backend, and for unknown labels; callers
// treat nil as "run with zero tools".
func (r *Registry) Lookup(intent string) Tool {
	if intent == IntentDefault {
		return nil
	}
	return r.tools[intent]
}

// Intents returns the registered labels in sorted order.
func (r *Registry) Intents() []string {
	out := make([]string, 0, len(r.tools))
	for intent := range r.tools {
		out = append(out, intent)
	}
	sort.Strings(out)
	return out
}

// Def builds the wire-format tool definition advertised to the agent model.
func Def(t Tool) llm.ToolDef {
	return llm.ToolDef{
		Type: "function",
		Function: llm.FunctionDef{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		},
	}
}
