package api

import (
	"strings"
	"testing"
	"time"

	"github.com/scisolve/scigateway/internal/agent"
	"github.com/scisolve/scigateway/internal/domain"
)

func TestAssembleResponseConcatenatesTurns(t *testing.T) {
	res := &agent.Result{
		Messages: []agent.StepMessage{
			{Content: "Calling the structure service.", Usage: domain.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}},
			{Content: "The predicted structure has two chains.", Usage: domain.Usage{PromptTokens: 30, CompletionTokens: 12, TotalTokens: 42}},
		},
	}

	now := time.Unix(1700000000, 123*int64(time.Millisecond))
	resp := assembleResponse("S1-Base", res, now)

	want := "Calling the structure service.The predicted structure has two chains."
	if resp.Choices[0].Message.Content != want {
		t.Errorf("content = %q, want %q", resp.Choices[0].Message.Content, want)
	}
	if resp.Usage.PromptTokens != 40 || resp.Usage.CompletionTokens != 17 || resp.Usage.TotalTokens != 57 {
		t.Errorf("usage = %+v, want summed counters", resp.Usage)
	}
	if resp.Choices[0].FinishReason != "stop" {
		t.Errorf("finish_reason = %q, want stop", resp.Choices[0].FinishReason)
	}
	if resp.Choices[0].Message.Role != domain.RoleAssistant {
		t.Errorf("role = %q, want assistant", resp.Choices[0].Message.Role)
	}
	if resp.Model != "S1-Base" {
		t.Errorf("model = %q, want S1-Base", resp.Model)
	}
	if resp.Created != now.Unix() {
		t.Errorf("created = %d, want %d", resp.Created, now.Unix())
	}
}

func TestAssembleResponseStepBound(t *testing.T) {
	res := &agent.Result{
		Messages:     []agent.StepMessage{{Content: "still working"}},
		HitStepBound: true,
	}

	resp := assembleResponse("S1-Base", res, time.Now())
	if resp.Choices[0].FinishReason != "length" {
		t.Errorf("finish_reason = %q, want length", resp.Choices[0].FinishReason)
	}
}

func TestAssembleResponseSingleChoice(t *testing.T) {
	res := &agent.Result{Messages: []agent.StepMessage{{Content: "hi"}}}
	resp := assembleResponse("S1-Base", res, time.Now())
	if len(resp.Choices) != 1 || resp.Choices[0].Index != 0 {
		t.Errorf("choices = %+v, want exactly one at index 0", resp.Choices)
	}
}

func TestNewCompletionID(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	id := newCompletionID(now)
	if !strings.HasPrefix(id, "chatcmpl-") {
		t.Errorf("id = %q, want chatcmpl- prefix", id)
	}
	if id != "chatcmpl-1700000000123" {
		t.Errorf("id = %q, want chatcmpl-1700000000123", id)
	}
}
