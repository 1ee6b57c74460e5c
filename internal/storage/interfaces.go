package storage

import (
	"context"

	"github.com/arbflow/adrecon/internal/models"
)

// =============================================
// WAREHOUSE REPOSITORY
// =============================================

// WarehouseRepo defines operations on the merged-metrics warehouse.
// Inserts are append-only and batched; the merge pipeline is the only
// writer.
type WarehouseRepo interface {
	// InsertMerged appends one batch of merged records.
	InsertMerged(ctx context.Context, records []models.MergedRecord) error

	// ListByDateRange returns records with date in [dateFrom, dateTo],
	// optionally filtered by market ("" matches all).
	ListByDateRange(ctx context.Context, dateFrom, dateTo, market string) ([]models.MergedRecord, error)

	// ListByAdSet returns the most recent records for one ad set,
	// newest date first, at most limit rows.
	ListByAdSet(ctx context.Context, adSetID string, limit int) ([]models.MergedRecord, error)
}

// =============================================
// RUN REPOSITORY
// =============================================

// RunRepo records reconciliation runs for auditing.
type RunRepo interface {
	CreateRun(ctx context.Context, run *models.SyncRun) error
	CompleteRun(ctx context.Context, run *models.SyncRun) error
	ListRuns(ctx context.Context, limit int) ([]*models.SyncRun, error)
}
