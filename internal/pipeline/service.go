package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arbflow/adrecon/internal/config"
	"github.com/arbflow/adrecon/internal/merge"
	"github.com/arbflow/adrecon/internal/metrics"
	"github.com/arbflow/adrecon/internal/models"
	"github.com/arbflow/adrecon/internal/storage"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const lockKey = "adrecon:sync:lock"

// ErrSyncInProgress is returned when a run is requested while another
// run holds the sync lock.
var ErrSyncInProgress = errors.New("sync already in progress")

// CostSource fetches ad-level cost rows for a date range.
type CostSource interface {
	FetchInsights(ctx context.Context, dateFrom, dateTo string) ([]models.CostRecord, error)
}

// RevenueSource fetches hourly revenue rows for a date range.
type RevenueSource interface {
	FetchRevenue(ctx context.Context, dateFrom, dateTo string) ([]models.RevenueRecord, error)
	Configured() bool
}

// Service runs the reconciliation pipeline: fetch both sources, merge,
// persist, audit.
type Service struct {
	cost      CostSource
	revenue   RevenueSource
	warehouse storage.WarehouseRepo
	runs      storage.RunRepo
	redis     *redis.Client
	cfg       *config.Config
	logger    *zap.Logger
	metrics   *metrics.Metrics

	// localLock guards against concurrent runs when Redis is absent.
	localLock atomic.Bool
}

// NewService creates a reconciliation service. redisClient may be nil;
// locking then falls back to a process-local flag.
func NewService(
	cost CostSource,
	revenue RevenueSource,
	warehouse storage.WarehouseRepo,
	runs storage.RunRepo,
	redisClient *redis.Client,
	cfg *config.Config,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Service {
	return &Service{
		cost:      cost,
		revenue:   revenue,
		warehouse: warehouse,
		runs:      runs,
		redis:     redisClient,
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
	}
}

// Run executes one reconciliation for the inclusive date range. It
// returns the completed run record; the error is non-nil when the run
// failed or could not start.
func (s *Service) Run(ctx context.Context, dateFrom, dateTo string) (*models.SyncRun, error) {
	runID := uuid.New().String()

	unlock, err := s.acquireLock(ctx, runID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	run := &models.SyncRun{
		ID:        runID,
		DateFrom:  dateFrom,
		DateTo:    dateTo,
		Status:    "running",
		StartedAt: time.Now().UTC(),
	}
	if err := s.runs.CreateRun(ctx, run); err != nil {
		s.logger.Warn("failed to record run start", zap.Error(err))
	}

	s.logger.Info("sync run started",
		zap.String("run_id", runID),
		zap.String("date_from", dateFrom),
		zap.String("date_to", dateTo),
	)

	if err := s.execute(ctx, run); err != nil {
		s.fail(ctx, run, err)
		return run, err
	}

	now := time.Now().UTC()
	run.Status = "completed"
	run.CompletedAt = &now
	if err := s.runs.CompleteRun(ctx, run); err != nil {
		s.logger.Warn("failed to record run completion", zap.Error(err))
	}
	if s.metrics != nil {
		s.metrics.RecordSyncRun("completed", now.Sub(run.StartedAt))
	}

	s.logger.Info("sync run completed",
		zap.String("run_id", run.ID),
		zap.Int("cost_records", run.CostRecords),
		zap.Int("revenue_records", run.RevenueRecords),
		zap.Int("merged_records", run.MergedRecords),
		zap.Float64("redistributed_revenue", run.RedistributedRevenue),
		zap.Float64("dropped_revenue", run.DroppedRevenue),
		zap.Duration("duration", now.Sub(run.StartedAt)),
	)
	return run, nil
}

func (s *Service) execute(ctx context.Context, run *models.SyncRun) error {
	var (
		wg          sync.WaitGroup
		costRows    []models.CostRecord
		revenueRows []models.RevenueRecord
		costErr     error
		revenueErr  error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		costRows, costErr = s.cost.FetchInsights(ctx, run.DateFrom, run.DateTo)
	}()
	go func() {
		defer wg.Done()
		if s.revenue.Configured() {
			revenueRows, revenueErr = s.revenue.FetchRevenue(ctx, run.DateFrom, run.DateTo)
		}
	}()
	wg.Wait()

	if costErr != nil {
		return fmt.Errorf("failed to fetch cost data: %w", costErr)
	}
	if revenueErr != nil {
		return fmt.Errorf("failed to fetch revenue data: %w", revenueErr)
	}

	run.CostRecords = len(costRows)
	run.RevenueRecords = len(revenueRows)
	if s.metrics != nil {
		s.metrics.RecordFetch(len(costRows), len(revenueRows))
	}

	result, err := merge.Merge(costRows, revenueRows, merge.Options{
		MarketRules:    merge.ParseMarketRules(s.cfg.Merge.MarketRules),
		PlaceholderIDs: s.cfg.Merge.PlaceholderIDs,
	})
	if err != nil {
		return fmt.Errorf("merge failed: %w", err)
	}

	run.MergedRecords = len(result.Records)
	run.TrackingOrphans = result.Audit.TrackingOrphans
	run.LegitimateOrphans = result.Audit.LegitimateOrphans
	run.RedistributedRevenue = result.Audit.RedistributedRevenue
	run.DroppedRevenue = result.Audit.DroppedOrphanRevenue

	if s.metrics != nil {
		s.metrics.RecordMerge(
			len(result.Records),
			result.Audit.TrackingOrphans,
			result.Audit.LegitimateOrphans,
			result.Audit.DiscardedOrphans,
		)
		s.metrics.RecordOrphanRevenue(
			result.Audit.RedistributedRevenue,
			result.Audit.DroppedOrphanRevenue,
			result.Audit.ZeroWeightRevenue,
		)
	}

	if err := s.store(ctx, result.Records); err != nil {
		return err
	}
	return nil
}

// store writes merged records to the warehouse in batches.
func (s *Service) store(ctx context.Context, records []models.MergedRecord) error {
	batchSize := s.cfg.Sync.BatchSize
	if batchSize <= 0 {
		batchSize = len(records)
	}

	for start := 0; start < len(records); start += batchSize {
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		if err := s.warehouse.InsertMerged(ctx, batch); err != nil {
			if s.metrics != nil {
				s.metrics.RecordWarehouseInsert("error", len(batch))
			}
			return fmt.Errorf("failed to insert merged records: %w", err)
		}
		if s.metrics != nil {
			s.metrics.RecordWarehouseInsert("ok", len(batch))
		}
	}
	return nil
}

func (s *Service) fail(ctx context.Context, run *models.SyncRun, cause error) {
	now := time.Now().UTC()
	run.Status = "failed"
	run.CompletedAt = &now
	run.Error = cause.Error()
	if err := s.runs.CompleteRun(ctx, run); err != nil {
		s.logger.Warn("failed to record run failure", zap.Error(err))
	}
	if s.metrics != nil {
		s.metrics.RecordSyncRun("failed", now.Sub(run.StartedAt))
	}
	s.logger.Error("sync run failed",
		zap.String("run_id", run.ID),
		zap.Error(cause),
	)
}

// acquireLock takes the cross-instance sync lock. The returned function
// releases it.
func (s *Service) acquireLock(ctx context.Context, runID string) (func(), error) {
	if s.redis == nil {
		if !s.localLock.CompareAndSwap(false, true) {
			return nil, ErrSyncInProgress
		}
		return func() { s.localLock.Store(false) }, nil
	}

	ok, err := s.redis.SetNX(ctx, lockKey, runID, s.cfg.Sync.LockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire sync lock: %w", err)
	}
	if !ok {
		return nil, ErrSyncInProgress
	}
	return func() {
		// Only release our own lock; a crashed holder's lock expires
		// via the TTL.
		current, err := s.redis.Get(context.Background(), lockKey).Result()
		if err == nil && current == runID {
			s.redis.Del(context.Background(), lockKey)
		}
	}, nil
}
