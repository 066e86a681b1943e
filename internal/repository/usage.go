package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/keygate/keygate/internal/model"
)

// BulkInsertUsage inserts a batch of usage records in one round trip.
// The event_id conflict clause makes redelivery from the stream idempotent.
func (r *Repository) BulkInsertUsage(ctx context.Context, records []*model.UsageRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO usage_records (id, event_id, credential_id, tenant_id, endpoint, method,
			outcome, caller_address, user_agent, response_time_ms, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (event_id) DO NOTHING
	`

	for _, rec := range records {
		batch.Queue(query,
			rec.ID,
			rec.EventID,
			rec.CredentialID,
			rec.TenantID,
			rec.Endpoint,
			rec.Method,
			rec.Outcome,
			rec.CallerAddress,
			rec.UserAgent,
			rec.ResponseTimeMs,
			rec.OccurredAt,
		)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	for i := range records {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch insert usage record %d: %w", i, err)
		}
	}

	return nil
}

// DailyUsageStats aggregates a credential's usage per day over the last
// `days` days, split by outcome.
func (r *Repository) DailyUsageStats(ctx context.Context, credentialID string, days int) ([]*model.DailyUsageStat, error) {
	query := `
		SELECT
			DATE(occurred_at) AS day,
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE outcome = 'allowed') AS allowed,
			COUNT(*) FILTER (WHERE outcome = 'rate_limited') AS rate_limited
		FROM usage_records
		WHERE credential_id = $1
		  AND occurred_at >= NOW() - ($2 || ' days')::interval
		GROUP BY DATE(occurred_at)
		ORDER BY day DESC
	`

	rows, err := r.db.Query(ctx, query, credentialID, days)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage stats: %w", err)
	}
	defer rows.Close()

	var stats []*model.DailyUsageStat
	for rows.Next() {
		var stat model.DailyUsageStat
		if err := rows.Scan(&stat.Date, &stat.Total, &stat.Allowed, &stat.RateLimited); err != nil {
			return nil, fmt.Errorf("failed to scan usage stat: %w", err)
		}
		stats = append(stats, &stat)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating usage stats: %w", err)
	}

	return stats, nil
}
