package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/arbflow/adrecon/internal/models"
)

// InMemoryWarehouse provides in-memory storage for merged records. Used
// when the warehouse is unavailable and in tests.
type InMemoryWarehouse struct {
	mu      sync.RWMutex
	records []models.MergedRecord
}

// NewInMemoryWarehouse creates a new in-memory warehouse.
func NewInMemoryWarehouse() *InMemoryWarehouse {
	return &InMemoryWarehouse{}
}

func (w *InMemoryWarehouse) InsertMerged(ctx context.Context, records []models.MergedRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.records = append(w.records, records...)
	return nil
}

func (w *InMemoryWarehouse) ListByDateRange(ctx context.Context, dateFrom, dateTo, market string) ([]models.MergedRecord, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var out []models.MergedRecord
	for _, r := range w.records {
		if r.Date < dateFrom || r.Date > dateTo {
			continue
		}
		if market != "" && r.Market != market {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		if out[i].AdSetID != out[j].AdSetID {
			return out[i].AdSetID < out[j].AdSetID
		}
		return out[i].AdID < out[j].AdID
	})
	return out, nil
}

func (w *InMemoryWarehouse) ListByAdSet(ctx context.Context, adSetID string, limit int) ([]models.MergedRecord, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var out []models.MergedRecord
	for _, r := range w.records {
		if r.AdSetID == adSetID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date > out[j].Date
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// InMemoryRunRepo provides in-memory storage for sync runs.
type InMemoryRunRepo struct {
	mu   sync.RWMutex
	runs []*models.SyncRun
}

// NewInMemoryRunRepo creates a new in-memory run repo.
func NewInMemoryRunRepo() *InMemoryRunRepo {
	return &InMemoryRunRepo{}
}

func (r *InMemoryRunRepo) CreateRun(ctx context.Context, run *models.SyncRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *run
	r.runs = append(r.runs, &stored)
	return nil
}

func (r *InMemoryRunRepo) CompleteRun(ctx context.Context, run *models.SyncRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.runs {
		if existing.ID == run.ID {
			stored := *run
			r.runs[i] = &stored
			return nil
		}
	}
	stored := *run
	r.runs = append(r.runs, &stored)
	return nil
}

func (r *InMemoryRunRepo) ListRuns(ctx context.Context, limit int) ([]*models.SyncRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.SyncRun, len(r.runs))
	copy(out, r.runs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
