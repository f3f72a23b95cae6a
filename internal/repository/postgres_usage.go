// Package repository persists usage audit records to PostgreSQL. The sink
// is optional; without DATABASE_URL the gateway keeps records in memory
// only.
package repository

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/scisolve/scigateway/internal/usage"
)

const schema = `
CREATE TABLE IF NOT EXISTS usage_records (
	id BIGSERIAL PRIMARY KEY,
	request_id TEXT NOT NULL,
	model TEXT NOT NULL,
	intent TEXT NOT NULL,
	tool TEXT NOT NULL DEFAULT '',
	prompt_tokens INT NOT NULL,
	completion_tokens INT NOT NULL,
	total_tokens INT NOT NULL,
	latency_ms BIGINT NOT NULL,
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
)`

type PostgresUsageTracker struct {
	db *sql.DB
}

func NewPostgresUsageTracker(databaseURL string) (*PostgresUsageTracker, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return &PostgresUsageTracker{db: db}, nil
}

func NewPostgresUsageTrackerWithDB(db *sql.DB) *PostgresUsageTracker {
	return &PostgresUsageTracker{db: db}
}

func (t *PostgresUsageTracker) Record(ctx context.Context, record usage.Record) error {
	query := `
		INSERT INTO usage_records (request_id, model, intent, tool, prompt_tokens, completion_tokens, total_tokens, latency_ms, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := t.db.ExecContext(ctx, query,
		record.RequestID,
		record.Model,
		record.Intent,
		record.Tool,
		record.PromptTokens,
		record.CompletionTokens,
		record.TotalTokens,
		record.LatencyMs,
		record.Status,
		record.Timestamp,
	)

	if err != nil {
		return fmt.Errorf("insert usage record: %w", err)
	}

	return nil
}

func (t *PostgresUsageTracker) Recent(ctx context.Context, limit int) ([]usage.Record, error) {
	query := `
		SELECT request_id, model, intent, tool, prompt_tokens, completion_tokens, total_tokens, latency_ms, status, created_at
		FROM usage_records
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := t.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query usage records: %w", err)
	}
	defer rows.Close()

	var records []usage.Record
	for rows.Next() {
		var r usage.Record
		err := rows.Scan(
			&r.RequestID,
			&r.Model,
			&r.Intent,
			&r.Tool,
			&r.PromptTokens,
			&r.CompletionTokens,
			&r.TotalTokens,
			&r.LatencyMs,
			&r.Status,
			&r.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan usage record: %w", err)
		}
		records = append(records, r)
	}

	return records, rows.Err()
}

func (t *PostgresUsageTracker) DB() *sql.DB {
	return t.db
}

func (t *PostgresUsageTracker) Close() error {
	return t.db.Close()
}
