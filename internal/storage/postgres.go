package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arbflow/adrecon/internal/models"
)

// PostgresRunRepo implements RunRepo using PostgreSQL.
//
// Expected schema:
//
//	CREATE TABLE sync_runs (
//	    id                    UUID PRIMARY KEY,
//	    date_from             TEXT NOT NULL,
//	    date_to               TEXT NOT NULL,
//	    status                TEXT NOT NULL,
//	    started_at            TIMESTAMPTZ NOT NULL,
//	    completed_at          TIMESTAMPTZ,
//	    cost_records          BIGINT NOT NULL DEFAULT 0,
//	    revenue_records       BIGINT NOT NULL DEFAULT 0,
//	    merged_records        BIGINT NOT NULL DEFAULT 0,
//	    tracking_orphans      BIGINT NOT NULL DEFAULT 0,
//	    legitimate_orphans    BIGINT NOT NULL DEFAULT 0,
//	    redistributed_revenue DOUBLE PRECISION NOT NULL DEFAULT 0,
//	    dropped_revenue       DOUBLE PRECISION NOT NULL DEFAULT 0,
//	    error                 TEXT NOT NULL DEFAULT ''
//	);
type PostgresRunRepo struct {
	pool *pgxpool.Pool
}

// NewPostgresRunRepo creates a PostgreSQL-backed run repo.
func NewPostgresRunRepo(pool *pgxpool.Pool) *PostgresRunRepo {
	return &PostgresRunRepo{pool: pool}
}

// CreateRun inserts a new run in running state.
func (r *PostgresRunRepo) CreateRun(ctx context.Context, run *models.SyncRun) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sync_runs (id, date_from, date_to, status, started_at)
		VALUES ($1, $2, $3, $4, $5)
	`, run.ID, run.DateFrom, run.DateTo, run.Status, run.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to create sync run: %w", err)
	}
	return nil
}

// CompleteRun stores the final state and counters of a run.
func (r *PostgresRunRepo) CompleteRun(ctx context.Context, run *models.SyncRun) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE sync_runs SET
			status = $2,
			completed_at = $3,
			cost_records = $4,
			revenue_records = $5,
			merged_records = $6,
			tracking_orphans = $7,
			legitimate_orphans = $8,
			redistributed_revenue = $9,
			dropped_revenue = $10,
			error = $11
		WHERE id = $1
	`, run.ID, run.Status, run.CompletedAt,
		run.CostRecords, run.RevenueRecords, run.MergedRecords,
		run.TrackingOrphans, run.LegitimateOrphans,
		run.RedistributedRevenue, run.DroppedRevenue, run.Error)
	if err != nil {
		return fmt.Errorf("failed to complete sync run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (r *PostgresRunRepo) ListRuns(ctx context.Context, limit int) ([]*models.SyncRun, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, date_from, date_to, status, started_at, completed_at,
		       cost_records, revenue_records, merged_records,
		       tracking_orphans, legitimate_orphans,
		       redistributed_revenue, dropped_revenue, error
		FROM sync_runs
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.SyncRun
	for rows.Next() {
		var run models.SyncRun
		err := rows.Scan(
			&run.ID, &run.DateFrom, &run.DateTo, &run.Status,
			&run.StartedAt, &run.CompletedAt,
			&run.CostRecords, &run.RevenueRecords, &run.MergedRecords,
			&run.TrackingOrphans, &run.LegitimateOrphans,
			&run.RedistributedRevenue, &run.DroppedRevenue, &run.Error,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}
