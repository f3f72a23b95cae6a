// Package usage tracks per-request token accounting. Records are audit
// entries about completed requests; nothing here is read back into the
// request path, so two identical requests always run two full pipelines.
package usage

import (
	"context"
	"sync"
	"time"

	"github.com/scisolve/scigateway/internal/domain"
)

// Add folds one turn's usage into the running counters. Counters only grow,
// matching the per-request monotonicity of the aggregation.
func Add(total, turn domain.Usage) domain.Usage {
	return domain.Usage{
		PromptTokens:     total.PromptTokens + turn.PromptTokens,
		CompletionTokens: total.CompletionTokens + turn.CompletionTokens,
		TotalTokens:      total.TotalTokens + turn.TotalTokens,
	}
}

// Record is the audit entry written after each completed request.
type Record struct {
	RequestID        string    `json:"request_id"`
	Model            string    `json:"model"`
	Intent           string    `json:"intent"`
	Tool             string    `json:"tool,omitempty"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	LatencyMs        int64     `json:"latency_ms"`
	Status           string    `json:"status"`
	Timestamp        time.Time `json:"timestamp"`
}

type Tracker interface {
	Record(ctx context.Context, record Record) error
	Recent(ctx context.Context, limit int) ([]Record, error)
}

type InMemoryTracker struct {
	mu      sync.RWMutex
	records []Record
}

func NewInMemoryTracker() *InMemoryTracker {
	return &InMemoryTracker{
		records: make([]Record, 0),
	}
}

func (t *InMemoryTracker) Record(ctx context.Context, record Record) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.records = append(t.records, record)
	return nil
}

// Recent returns up to limit records, newest first.
func (t *InMemoryTracker) Recent(ctx context.Context, limit int) ([]Record, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := len(t.records)
	if limit > n {
		limit = n
	}

	out := make([]Record, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, t.records[i])
	}
	return out, nil
}
