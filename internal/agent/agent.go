// Package agent drives the bounded reasoning-and-acting loop: the agent
// model alternates between requesting the single bound tool and emitting a
// final message. Tool failures come back into the loop as observations, so
// the model can acknowledge them in its answer instead of the request
// crashing.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/scisolve/scigateway/internal/domain"
	"github.com/scisolve/scigateway/internal/llm"
	"github.com/scisolve/scigateway/internal/metrics"
	"github.com/scisolve/scigateway/internal/tool"
)

const DefaultMaxSteps = 8

type Config struct {
	Client llm.Client
	// Tool is the single bound tool; nil runs the loop with zero tools.
	Tool     tool.Tool
	MaxSteps int
}

type Agent struct {
	client   llm.Client
	tool     tool.Tool
	maxSteps int
}

// StepMessage is one assistant turn with the usage the endpoint reported
// for it.
type StepMessage struct {
	Content string
	Usage   domain.Usage
}

// Invocation records one tool call made during the loop.
type Invocation struct {
	Tool string
	Err  string
}

type Result struct {
	Messages     []StepMessage
	Invocations  []Invocation
	HitStepBound bool
}

func New(cfg Config) *Agent {
	maxSteps := cfg.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	return &Agent{
		client:   cfg.Client,
		tool:     cfg.Tool,
		maxSteps: maxSteps,
	}
}

// Run executes the loop over the inbound conversation. Execution is strictly
// sequential: model call, optional tool call, model call, until a turn with
// no tool request or the step bound. The error cases are a failing model
// endpoint and a step bound hit before any assistant message exists.
func (a *Agent) Run(ctx context.Context, conv []domain.Message, sampling llm.Sampling) (*Result, error) {
	msgs := llm.FromDomain(conv)

	var tools []llm.ToolDef
	if a.tool != nil {
		tools = []llm.ToolDef{tool.Def(a.tool)}
	}

	res := &Result{}

	for step := 0; step < a.maxSteps; step++ {
		comp, err := a.client.Complete(ctx, llm.Request{
			Messages: msgs,
			Tools:    tools,
			Sampling: sampling,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrAgentFailure, err)
		}

		res.Messages = append(res.Messages, StepMessage{
			Content: comp.Message.Content,
			Usage:   comp.Usage,
		})
		msgs = append(msgs, comp.Message)

		if len(comp.Message.ToolCalls) == 0 {
			metrics.ObserveAgentSteps(step + 1)
			return res, nil
		}

		// Only one tool is ever bound, so only the first call matters;
		// any extra calls in the same turn are answered with the same
		// observation protocol.
		for _, tc := range comp.Message.ToolCalls {
			observation, invErr := a.invoke(ctx, tc)
			inv := Invocation{Tool: tc.Function.Name}
			if invErr != nil {
				inv.Err = invErr.Error()
				observation = failureObservation(invErr)
			}
			res.Invocations = append(res.Invocations, inv)

			msgs = append(msgs, llm.Message{
				Role:       "tool",
				Content:    observation,
				ToolCallID: tc.ID,
				Name:       tc.Function.Name,
			})
		}
	}

	if len(res.Messages) == 0 {
		return nil, domain.ErrNoFinalMessage
	}

	metrics.ObserveAgentSteps(a.maxSteps)
	res.HitStepBound = true
	return res, nil
}

func (a *Agent) invoke(ctx context.Context, tc llm.ToolCall) (string, error) {
	if a.tool == nil || tc.Function.Name != a.tool.Name() {
		metrics.RecordToolInvocation(tc.Function.Name, "unknown")
		return "", fmt.Errorf("tool %q is not available", tc.Function.Name)
	}

	result, err := a.tool.Invoke(ctx, json.RawMessage(tc.Function.Arguments))
	if err != nil {
		status := "error"
		var vErr *tool.ValidationError
		if errors.As(err, &vErr) {
			status = "invalid_args"
		}
		metrics.RecordToolInvocation(tc.Function.Name, status)
		slog.Warn("tool invocation failed", "tool", tc.Function.Name, "error", err)
		return "", err
	}

	metrics.RecordToolInvocation(tc.Function.Name, "ok")
	return result, nil
}

// failureObservation renders an error as the JSON observation fed back to
// the model.
func failureObservation(err error) string {
	obs, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(obs)
}
