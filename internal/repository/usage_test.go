package repository

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keygate/keygate/internal/model"
)

func TestBulkInsertUsage(t *testing.T) {
	repo, mock := setupRepo(t)

	now := time.Now()
	records := []*model.UsageRecord{
		{ID: "rec-1", EventID: "evt-1", CredentialID: "cred-1", TenantID: "tnt-1",
			Endpoint: "/v1/auth/me", Method: "GET", Outcome: "allowed", ResponseTimeMs: 12, OccurredAt: now},
		{ID: "rec-2", EventID: "evt-2", CredentialID: "cred-1", TenantID: "tnt-1",
			Endpoint: "/v1/auth/me", Method: "GET", Outcome: "rate_limited", ResponseTimeMs: 3, OccurredAt: now},
	}

	batch := mock.ExpectBatch()
	for _, rec := range records {
		batch.ExpectExec(`INSERT INTO usage_records`).
			WithArgs(rec.ID, rec.EventID, rec.CredentialID, rec.TenantID, rec.Endpoint, rec.Method,
				rec.Outcome, rec.CallerAddress, rec.UserAgent, rec.ResponseTimeMs, rec.OccurredAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}

	err := repo.BulkInsertUsage(context.Background(), records)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkInsertUsage_Empty(t *testing.T) {
	repo, mock := setupRepo(t)

	err := repo.BulkInsertUsage(context.Background(), nil)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDailyUsageStats(t *testing.T) {
	repo, mock := setupRepo(t)

	today := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{"day", "total", "allowed", "rate_limited"}).
		AddRow(today, int64(120), int64(100), int64(20)).
		AddRow(today.AddDate(0, 0, -1), int64(40), int64(40), int64(0))

	mock.ExpectQuery(`SELECT\s+DATE\(occurred_at\)`).
		WithArgs("cred-1", 30).
		WillReturnRows(rows)

	stats, err := repo.DailyUsageStats(context.Background(), "cred-1", 30)

	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, int64(120), stats[0].Total)
	assert.Equal(t, int64(20), stats[0].RateLimited)
	assert.Equal(t, int64(40), stats[1].Allowed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDailyUsageStats_NoRecords(t *testing.T) {
	repo, mock := setupRepo(t)

	mock.ExpectQuery(`SELECT\s+DATE\(occurred_at\)`).
		WithArgs("cred-1", 30).
		WillReturnRows(pgxmock.NewRows([]string{"day", "total", "allowed", "rate_limited"}))

	stats, err := repo.DailyUsageStats(context.Background(), "cred-1", 30)

	require.NoError(t, err)
	assert.Empty(t, stats)
	assert.NoError(t, mock.ExpectationsWereMet())
}
