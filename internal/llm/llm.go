// Package llm defines the chat-model client contract shared by the route
// classifier and the agent loop, plus the OpenAI-style wire types for tool
// calling. Concrete clients live in the openai and bedrock subpackages.
package llm

import (
	"context"
	"encoding/json"

	"github.com/scisolve/scigateway/internal/domain"
)

// Message is one turn of a model conversation. It extends the inbound
// domain.Message with the tool-calling fields of the OpenAI wire format:
// an assistant turn may carry ToolCalls, and a "tool" turn answers one of
// them via ToolCallID.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDef describes one callable tool to the model.
type ToolDef struct {
	Type     string      `json:"type"`
	Function FunctionDef `json:"function"`
}

type FunctionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Sampling carries the caller-supplied sampling parameters, forwarded
// unchanged to both model endpoints.
type Sampling struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

type Request struct {
	Messages []Message
	Tools    []ToolDef
	Sampling Sampling
}

// Completion is one model turn: either a final assistant message or a
// tool-call request, annotated with the usage the endpoint reported for
// this turn.
type Completion struct {
	Message      Message
	FinishReason string
	Usage        domain.Usage
}

type Client interface {
	Complete(ctx context.Context, req Request) (*Completion, error)
}

// FromDomain converts inbound conversation messages to model messages.
func FromDomain(msgs []domain.Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, Message{Role: m.Role, Content: m.Content})
	}
	return out
}
