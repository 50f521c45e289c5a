// ABOUTME: SQLite implementation for per-run model usage tracking
// ABOUTME: Stores token and call counts for each assistant run and aggregates them

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SaveRunUsage stores a usage record. ID and CreatedAt are filled in when empty.
func (s *SQLiteStore) SaveRunUsage(ctx context.Context, usage *RunUsage) error {
	if usage.SenderPhone == "" {
		return fmt.Errorf("run usage requires a sender phone")
	}
	if usage.ID == "" {
		usage.ID = uuid.New().String()
	}
	if usage.CreatedAt.IsZero() {
		usage.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO run_usage (
			id, sender_phone, receiver_phone, final_state,
			model_calls, tool_dispatches, input_tokens, output_tokens,
			created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		usage.ID,
		usage.SenderPhone,
		nullString(usage.ReceiverPhone),
		usage.FinalState,
		usage.ModelCalls,
		usage.ToolDispatches,
		usage.InputTokens,
		usage.OutputTokens,
		formatTime(usage.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting run usage: %w", err)
	}

	s.logger.Debug("saved run usage",
		"id", usage.ID,
		"sender_phone", usage.SenderPhone,
		"final_state", usage.FinalState,
		"input_tokens", usage.InputTokens,
		"output_tokens", usage.OutputTokens,
	)
	return nil
}

// GetUsageStats returns aggregated usage statistics with optional filters.
func (s *SQLiteStore) GetUsageStats(ctx context.Context, filter UsageFilter) (*UsageStats, error) {
	query := `
		SELECT
			COUNT(*) as run_count,
			COALESCE(SUM(model_calls), 0) as total_model_calls,
			COALESCE(SUM(tool_dispatches), 0) as total_tool_dispatches,
			COALESCE(SUM(input_tokens), 0) as total_input,
			COALESCE(SUM(output_tokens), 0) as total_output
		FROM run_usage
		WHERE 1=1
	`
	args := []any{}

	if filter.SenderPhone != nil {
		query += " AND sender_phone = ?"
		args = append(args, *filter.SenderPhone)
	}
	if filter.Since != nil {
		query += " AND created_at >= ?"
		args = append(args, formatTime(*filter.Since))
	}
	if filter.Until != nil {
		query += " AND created_at < ?"
		args = append(args, formatTime(*filter.Until))
	}

	var stats UsageStats
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&stats.RunCount,
		&stats.ModelCalls,
		&stats.ToolDispatches,
		&stats.InputTokens,
		&stats.OutputTokens,
	)
	if err != nil {
		return nil, fmt.Errorf("querying usage stats: %w", err)
	}

	stats.TotalTokens = stats.InputTokens + stats.OutputTokens
	return &stats, nil
}
