package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/scisolve/scigateway/internal/agent"
	"github.com/scisolve/scigateway/internal/domain"
	"github.com/scisolve/scigateway/internal/usage"
)

// newCompletionID derives the response id from the receipt time. Millisecond
// resolution is the only uniqueness this id carries; it is not a durable
// identifier.
func newCompletionID(now time.Time) string {
	return fmt.Sprintf("chatcmpl-%d", now.UnixMilli())
}

// assembleResponse folds the agent loop's assistant turns into the single
// choice of the OpenAI response envelope: contents concatenated in loop
// order with no separator, usage summed across turns.
func assembleResponse(model string, res *agent.Result, now time.Time) domain.ChatResponse {
	var content strings.Builder
	var total domain.Usage

	for _, m := range res.Messages {
		content.WriteString(m.Content)
		total = usage.Add(total, m.Usage)
	}

	finishReason := "stop"
	if res.HitStepBound {
		finishReason = "length"
	}

	return domain.ChatResponse{
		ID:      newCompletionID(now),
		Object:  "chat.completion",
		Created: now.Unix(),
		Model:   model,
		Choices: []domain.Choice{
			{
				Index: 0,
				Message: domain.Message{
					Role:    domain.RoleAssistant,
					Content: content.String(),
				},
				FinishReason: finishReason,
			},
		},
		Usage: total,
	}
}
