package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the adrecon service.
type Config struct {
	Server        ServerConfig
	CostSource    CostSourceConfig
	RevenueSource RevenueSourceConfig
	Database      DatabaseConfig
	ClickHouse    ClickHouseConfig
	Redis         RedisConfig
	Auth          AuthConfig
	RateLimit     RateLimitConfig
	Log           LogConfig
	Metrics       MetricsConfig
	Merge         MergeConfig
	Sync          SyncConfig
}

type ServerConfig struct {
	Addr            string
	Env             string
	ShutdownTimeout time.Duration
}

// CostSourceConfig configures the paid-traffic platform API.
type CostSourceConfig struct {
	BaseURL     string
	AccessToken string
	AccountID   string
	PageSize    int
	Timeout     time.Duration
}

// RevenueSourceConfig configures the monetization platform API. One API
// key per portal; PortalNames is parallel to APIKeys and only used for
// logging.
type RevenueSourceConfig struct {
	BaseURL      string
	APIKeys      []string
	PortalNames  []string
	ReportType   string
	PollInterval time.Duration
	PollTimeout  time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// ClickHouseConfig configures the analytics warehouse.
type ClickHouseConfig struct {
	Addr     string
	Database string
	User     string
	Password string
	Table    string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	Enabled   bool
	MasterKey string
	SkipPaths []string
}

type RateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
}

type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// MergeConfig configures the attribution merge.
type MergeConfig struct {
	// MarketRules is an ordered "substring:tag" list, e.g. "BRA_:BR,MEX_:MX".
	MarketRules string
	// PlaceholderIDs are revenue-side ids that mean broken tracking.
	PlaceholderIDs []string
	// SummaryTopN bounds top/bottom performer lists.
	SummaryTopN int
}

// SyncConfig configures scheduled reconciliation runs.
type SyncConfig struct {
	Enabled    bool
	Interval   time.Duration
	WindowDays int
	BatchSize  int
	LockTTL    time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("ADRECON_HTTP_ADDR", ":8080"),
			Env:             getEnv("ADRECON_ENV", "development"),
			ShutdownTimeout: getDurationEnv("ADRECON_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		CostSource: CostSourceConfig{
			BaseURL:     getEnv("ADRECON_COST_API_URL", "https://graph.facebook.com/v21.0"),
			AccessToken: getEnv("ADRECON_COST_ACCESS_TOKEN", ""),
			AccountID:   getEnv("ADRECON_COST_ACCOUNT_ID", ""),
			PageSize:    getIntEnv("ADRECON_COST_PAGE_SIZE", 500),
			Timeout:     getDurationEnv("ADRECON_COST_TIMEOUT", 60*time.Second),
		},
		RevenueSource: RevenueSourceConfig{
			BaseURL:      getEnv("ADRECON_REVENUE_API_URL", ""),
			APIKeys:      getSliceEnv("ADRECON_REVENUE_API_KEYS", nil),
			PortalNames:  getSliceEnv("ADRECON_REVENUE_PORTAL_NAMES", nil),
			ReportType:   getEnv("ADRECON_REVENUE_REPORT_TYPE", "syndication_rsoc_online_ad_widget_daily"),
			PollInterval: getDurationEnv("ADRECON_REVENUE_POLL_INTERVAL", 30*time.Second),
			PollTimeout:  getDurationEnv("ADRECON_REVENUE_POLL_TIMEOUT", 10*time.Minute),
		},
		Database: DatabaseConfig{
			Host:     getEnv("ADRECON_DB_HOST", "localhost"),
			Port:     getIntEnv("ADRECON_DB_PORT", 5432),
			User:     getEnv("ADRECON_DB_USER", "adrecon"),
			Password: getEnv("ADRECON_DB_PASSWORD", "adrecon_secret"),
			DBName:   getEnv("ADRECON_DB_NAME", "adrecon"),
			SSLMode:  getEnv("ADRECON_DB_SSLMODE", "disable"),
			MaxConns: getIntEnv("ADRECON_DB_MAX_CONNS", 10),
			MinConns: getIntEnv("ADRECON_DB_MIN_CONNS", 2),
		},
		ClickHouse: ClickHouseConfig{
			Addr:     getEnv("ADRECON_CLICKHOUSE_ADDR", "localhost:9000"),
			Database: getEnv("ADRECON_CLICKHOUSE_DB", "adrecon"),
			User:     getEnv("ADRECON_CLICKHOUSE_USER", "default"),
			Password: getEnv("ADRECON_CLICKHOUSE_PASSWORD", ""),
			Table:    getEnv("ADRECON_CLICKHOUSE_TABLE", "merged_metrics"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("ADRECON_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("ADRECON_REDIS_PASSWORD", ""),
			DB:       getIntEnv("ADRECON_REDIS_DB", 0),
		},
		Auth: AuthConfig{
			Enabled:   getBoolEnv("ADRECON_AUTH_ENABLED", true),
			MasterKey: getEnv("ADRECON_API_KEY_MASTER", ""),
			SkipPaths: getSliceEnv("ADRECON_AUTH_SKIP_PATHS", []string{"/health", "/metrics"}),
		},
		RateLimit: RateLimitConfig{
			Enabled: getBoolEnv("ADRECON_RATE_LIMIT_ENABLED", true),
			RPS:     getFloatEnv("ADRECON_RATE_LIMIT_RPS", 50),
			Burst:   getIntEnv("ADRECON_RATE_LIMIT_BURST", 20),
		},
		Log: LogConfig{
			Level:  getEnv("ADRECON_LOG_LEVEL", "info"),
			Format: getEnv("ADRECON_LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: getBoolEnv("ADRECON_METRICS_ENABLED", true),
			Path:    getEnv("ADRECON_METRICS_PATH", "/metrics"),
		},
		Merge: MergeConfig{
			MarketRules:    getEnv("ADRECON_MARKET_RULES", "BRA_:BR,MEX_:MX"),
			PlaceholderIDs: getSliceEnv("ADRECON_PLACEHOLDER_IDS", nil),
			SummaryTopN:    getIntEnv("ADRECON_SUMMARY_TOP_N", 5),
		},
		Sync: SyncConfig{
			Enabled:    getBoolEnv("ADRECON_SYNC_ENABLED", false),
			Interval:   getDurationEnv("ADRECON_SYNC_INTERVAL", 24*time.Hour),
			WindowDays: getIntEnv("ADRECON_SYNC_WINDOW_DAYS", 1),
			BatchSize:  getIntEnv("ADRECON_SYNC_BATCH_SIZE", 500),
			LockTTL:    getDurationEnv("ADRECON_SYNC_LOCK_TTL", 30*time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Auth.Enabled && c.Auth.MasterKey == "" {
		return fmt.Errorf("ADRECON_API_KEY_MASTER is required when auth is enabled")
	}
	if c.Sync.Enabled {
		if c.CostSource.AccessToken == "" || c.CostSource.AccountID == "" {
			return fmt.Errorf("ADRECON_COST_ACCESS_TOKEN and ADRECON_COST_ACCOUNT_ID are required when sync is enabled")
		}
	}
	if c.Sync.WindowDays < 1 {
		return fmt.Errorf("ADRECON_SYNC_WINDOW_DAYS must be at least 1")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Helper functions for reading environment variables

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getFloatEnv(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getSliceEnv(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				result = append(result, p)
			}
		}
		return result
	}
	return def
}
