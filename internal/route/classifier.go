// Package route implements the first pipeline stage: one classification call
// that maps the inbound conversation to a RouteDecision.
package route

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/scisolve/scigateway/internal/domain"
	"github.com/scisolve/scigateway/internal/llm"
)

// emptyReasoning is the delimiter pair some reasoning models prepend when
// they produce no visible reasoning. Only this exact empty pair is stripped;
// a reply with actual reasoning text fails JSON parsing and is treated as a
// routing parse error.
const emptyReasoning = "<think>\n\n</think>\n\n"

type Classifier struct {
	client llm.Client
}

func NewClassifier(client llm.Client) *Classifier {
	return &Classifier{client: client}
}

// Classify rewrites user turns through the instruction template, makes one
// synchronous model call with the caller's sampling parameters, and parses
// the reply into a RouteDecision. It keeps no state between calls.
func (c *Classifier) Classify(ctx context.Context, conv []domain.Message, sampling llm.Sampling) (*domain.RouteDecision, error) {
	input := make([]llm.Message, 0, len(conv))
	for _, m := range conv {
		content := m.Content
		if m.Role == domain.RoleUser {
			content = fmt.Sprintf(instructionTemplate, m.Content)
		}
		input = append(input, llm.Message{Role: m.Role, Content: content})
	}

	comp, err := c.client.Complete(ctx, llm.Request{Messages: input, Sampling: sampling})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrClassifierFailure, err)
	}

	content := strings.TrimSpace(strings.ReplaceAll(comp.Message.Content, emptyReasoning, ""))

	var decision domain.RouteDecision
	if err := json.Unmarshal([]byte(content), &decision); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRouteParse, err)
	}

	return &decision, nil
}
