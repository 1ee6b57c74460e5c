package storage

import (
	"context"
	"testing"
	"time"

	"github.com/arbflow/adrecon/internal/models"
)

func TestInMemoryWarehouseDateRangeAndMarketFilter(t *testing.T) {
	w := NewInMemoryWarehouse()
	ctx := context.Background()

	err := w.InsertMerged(ctx, []models.MergedRecord{
		{AdSetID: "2", AdID: "b", Date: "2025-01-02", Market: "BR"},
		{AdSetID: "1", AdID: "a", Date: "2025-01-01", Market: "MX"},
		{AdSetID: "1", AdID: "a", Date: "2025-01-05", Market: "BR"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := w.ListByDateRange(ctx, "2025-01-01", "2025-01-02", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].Date != "2025-01-01" || got[1].Date != "2025-01-02" {
		t.Fatalf("unexpected range result: %+v", got)
	}

	br, err := w.ListByDateRange(ctx, "2025-01-01", "2025-01-31", "BR")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(br) != 2 {
		t.Fatalf("expected 2 BR records, got %d", len(br))
	}
}

func TestInMemoryWarehouseListByAdSet(t *testing.T) {
	w := NewInMemoryWarehouse()
	ctx := context.Background()

	_ = w.InsertMerged(ctx, []models.MergedRecord{
		{AdSetID: "1", Date: "2025-01-01"},
		{AdSetID: "1", Date: "2025-01-03"},
		{AdSetID: "1", Date: "2025-01-02"},
		{AdSetID: "2", Date: "2025-01-09"},
	})

	got, err := w.ListByAdSet(ctx, "1", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].Date != "2025-01-03" || got[1].Date != "2025-01-02" {
		t.Fatalf("expected newest-first limited result, got %+v", got)
	}
}

func TestInMemoryRunRepoLifecycle(t *testing.T) {
	repo := NewInMemoryRunRepo()
	ctx := context.Background()

	run := &models.SyncRun{
		ID:        "run-1",
		DateFrom:  "2025-01-01",
		DateTo:    "2025-01-01",
		Status:    "running",
		StartedAt: time.Now(),
	}
	if err := repo.CreateRun(ctx, run); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	done := time.Now()
	run.Status = "completed"
	run.CompletedAt = &done
	run.MergedRecords = 7
	if err := repo.CompleteRun(ctx, run); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	runs, err := repo.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if runs[0].Status != "completed" || runs[0].MergedRecords != 7 {
		t.Fatalf("run not updated: %+v", runs[0])
	}
}
