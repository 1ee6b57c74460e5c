package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/arbflow/adrecon/internal/adspend"
	"github.com/arbflow/adrecon/internal/config"
	"github.com/arbflow/adrecon/internal/database"
	"github.com/arbflow/adrecon/internal/merge"
	"github.com/arbflow/adrecon/internal/metrics"
	"github.com/arbflow/adrecon/internal/models"
	"github.com/arbflow/adrecon/internal/pipeline"
	"github.com/arbflow/adrecon/internal/revenue"
	"github.com/arbflow/adrecon/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const kpiCacheTTL = time.Minute

// Dependencies holds all external dependencies for the server.
type Dependencies struct {
	DB         *database.PostgresDB
	Redis      *database.RedisDB
	ClickHouse *database.ClickHouseDB
	Config     *config.Config
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

// Server wraps HTTP handlers and the reconciliation services.
type Server struct {
	mux       *http.ServeMux
	warehouse storage.WarehouseRepo
	runs      storage.RunRepo
	pipeline  *pipeline.Service
	redis     *redis.Client
	logger    *zap.Logger
	config    *config.Config
	metrics   *metrics.Metrics
}

// NewServer constructs a server with all routes registered.
func NewServer(deps *Dependencies) *Server {
	var warehouse storage.WarehouseRepo
	if deps.ClickHouse != nil {
		warehouse = storage.NewClickHouseWarehouse(deps.ClickHouse.Conn, deps.Config.ClickHouse.Table)
	} else {
		warehouse = storage.NewInMemoryWarehouse()
	}

	var runs storage.RunRepo
	if deps.DB != nil {
		runs = storage.NewPostgresRunRepo(deps.DB.Pool)
	} else {
		runs = storage.NewInMemoryRunRepo()
	}

	var redisClient *redis.Client
	if deps.Redis != nil {
		redisClient = deps.Redis.Client
	}

	costClient := adspend.NewClient(deps.Config.CostSource, deps.Logger)
	revenueClient := revenue.NewClient(deps.Config.RevenueSource, deps.Logger)

	svc := pipeline.NewService(
		costClient,
		revenueClient,
		warehouse,
		runs,
		redisClient,
		deps.Config,
		deps.Logger,
		deps.Metrics,
	)

	s := &Server{
		warehouse: warehouse,
		runs:      runs,
		pipeline:  svc,
		redis:     redisClient,
		logger:    deps.Logger,
		config:    deps.Config,
		metrics:   deps.Metrics,
	}

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", s.handleHealth)

	// Prometheus metrics
	if deps.Config.Metrics.Enabled {
		mux.Handle(deps.Config.Metrics.Path, metrics.Handler())
	}

	// Merged records
	mux.HandleFunc("/api/campaigns", s.handleCampaigns)
	mux.HandleFunc("/api/campaigns/", s.handleCampaignByAdSet)

	// Aggregates
	mux.HandleFunc("/api/kpis", s.handleKPIs)
	mux.HandleFunc("/api/summary", s.handleSummary)

	// Reconciliation
	mux.HandleFunc("/api/sync", s.handleSync)
	mux.HandleFunc("/api/runs", s.handleRuns)

	s.mux = mux
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Pipeline exposes the reconciliation service for the scheduler.
func (s *Server) Pipeline() *pipeline.Service {
	return s.pipeline
}

// ---- Health Check ----

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// ---- Merged Records ----

func (s *Server) handleCampaigns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	dateFrom, dateTo, err := s.dateRange(r)
	if err != nil {
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	market := r.URL.Query().Get("market")

	records, err := s.warehouse.ListByDateRange(r.Context(), dateFrom, dateTo, market)
	if err != nil {
		s.logger.Error("failed to list merged records", zap.Error(err))
		s.errorResponse(w, "failed to list records", http.StatusInternalServerError)
		return
	}

	if limit := queryInt(r, "limit", 0); limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	s.jsonResponse(w, records)
}

func (s *Server) handleCampaignByAdSet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	adSetID := strings.TrimPrefix(r.URL.Path, "/api/campaigns/")
	if adSetID == "" {
		http.NotFound(w, r)
		return
	}

	records, err := s.warehouse.ListByAdSet(r.Context(), adSetID, queryInt(r, "limit", 30))
	if err != nil {
		s.logger.Error("failed to list ad set records", zap.Error(err))
		s.errorResponse(w, "failed to list records", http.StatusInternalServerError)
		return
	}
	if len(records) == 0 {
		http.NotFound(w, r)
		return
	}
	s.jsonResponse(w, records)
}

// ---- Aggregates ----

func (s *Server) handleKPIs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	dateFrom, dateTo, err := s.dateRange(r)
	if err != nil {
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	market := r.URL.Query().Get("market")

	cacheKey := "adrecon:kpis:" + dateFrom + ":" + dateTo + ":" + market
	if s.redis != nil {
		if cached, err := s.redis.Get(r.Context(), cacheKey).Result(); err == nil {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Cache", "hit")
			w.Write([]byte(cached))
			return
		}
	}

	records, err := s.warehouse.ListByDateRange(r.Context(), dateFrom, dateTo, market)
	if err != nil {
		s.logger.Error("failed to compute kpis", zap.Error(err))
		s.errorResponse(w, "failed to compute kpis", http.StatusInternalServerError)
		return
	}

	rep := merge.Summarize(records, 0)
	payload, err := json.Marshal(map[string]interface{}{
		"date_from":     dateFrom,
		"date_to":       dateTo,
		"market":        market,
		"records":       rep.Records,
		"total_spend":   rep.TotalSpend,
		"total_revenue": rep.TotalRevenue,
		"total_profit":  rep.TotalProfit,
		"avg_roas":      rep.AvgROAS,
	})
	if err != nil {
		s.errorResponse(w, "failed to encode kpis", http.StatusInternalServerError)
		return
	}

	if s.redis != nil {
		if err := s.redis.Set(r.Context(), cacheKey, payload, kpiCacheTTL).Err(); err != nil {
			s.logger.Debug("failed to cache kpis", zap.Error(err))
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(payload)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	dateFrom, dateTo, err := s.dateRange(r)
	if err != nil {
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	market := r.URL.Query().Get("market")

	records, err := s.warehouse.ListByDateRange(r.Context(), dateFrom, dateTo, market)
	if err != nil {
		s.logger.Error("failed to build summary", zap.Error(err))
		s.errorResponse(w, "failed to build summary", http.StatusInternalServerError)
		return
	}

	n := queryInt(r, "top", s.config.Merge.SummaryTopN)
	s.jsonResponse(w, merge.Summarize(records, n))
}

// ---- Reconciliation ----

type syncRequest struct {
	DateFrom string `json:"date_from"`
	DateTo   string `json:"date_to"`
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req syncRequest
	if r.Body != nil {
		// An empty body means "run for yesterday".
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			s.errorResponse(w, "invalid json", http.StatusBadRequest)
			return
		}
	}

	yesterday := time.Now().UTC().AddDate(0, 0, -1).Format(models.DateFormat)
	if req.DateFrom == "" {
		req.DateFrom = yesterday
	}
	if req.DateTo == "" {
		req.DateTo = yesterday
	}
	if err := validateDate(req.DateFrom); err != nil {
		s.errorResponse(w, "invalid date_from", http.StatusBadRequest)
		return
	}
	if err := validateDate(req.DateTo); err != nil {
		s.errorResponse(w, "invalid date_to", http.StatusBadRequest)
		return
	}
	if req.DateFrom > req.DateTo {
		s.errorResponse(w, "date_from is after date_to", http.StatusBadRequest)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.config.RevenueSource.PollTimeout+5*time.Minute)
		defer cancel()
		if _, err := s.pipeline.Run(ctx, req.DateFrom, req.DateTo); err != nil {
			if errors.Is(err, pipeline.ErrSyncInProgress) {
				s.logger.Warn("manual sync skipped, another run holds the lock")
				return
			}
			s.logger.Error("manual sync failed", zap.Error(err))
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":    "started",
		"date_from": req.DateFrom,
		"date_to":   req.DateTo,
	})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	runs, err := s.runs.ListRuns(r.Context(), queryInt(r, "limit", 20))
	if err != nil {
		s.logger.Error("failed to list runs", zap.Error(err))
		s.errorResponse(w, "failed to list runs", http.StatusInternalServerError)
		return
	}
	s.jsonResponse(w, runs)
}

// ---- Helper Methods ----

// dateRange reads date_from/date_to query params, defaulting to the
// trailing 7 days.
func (s *Server) dateRange(r *http.Request) (string, string, error) {
	q := r.URL.Query()
	now := time.Now().UTC()

	dateTo := q.Get("date_to")
	if dateTo == "" {
		dateTo = now.Format(models.DateFormat)
	}
	dateFrom := q.Get("date_from")
	if dateFrom == "" {
		dateFrom = now.AddDate(0, 0, -7).Format(models.DateFormat)
	}

	if err := validateDate(dateFrom); err != nil {
		return "", "", errors.New("invalid date_from")
	}
	if err := validateDate(dateTo); err != nil {
		return "", "", errors.New("invalid date_to")
	}
	if dateFrom > dateTo {
		return "", "", errors.New("date_from is after date_to")
	}
	return dateFrom, dateTo, nil
}

func validateDate(s string) error {
	_, err := time.Parse(models.DateFormat, s)
	return err
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func (s *Server) jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) errorResponse(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
