package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadRequiresMasterKeyWhenAuthEnabled(t *testing.T) {
	t.Setenv("ADRECON_API_KEY_MASTER", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error without master key")
	}
	if !strings.Contains(err.Error(), "ADRECON_API_KEY_MASTER") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ADRECON_API_KEY_MASTER", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("unexpected addr: %s", cfg.Server.Addr)
	}
	if cfg.CostSource.PageSize != 500 {
		t.Errorf("unexpected page size: %d", cfg.CostSource.PageSize)
	}
	if cfg.RevenueSource.PollInterval != 30*time.Second {
		t.Errorf("unexpected poll interval: %v", cfg.RevenueSource.PollInterval)
	}
	if cfg.Merge.MarketRules != "BRA_:BR,MEX_:MX" {
		t.Errorf("unexpected market rules: %s", cfg.Merge.MarketRules)
	}
	if cfg.Merge.SummaryTopN != 5 {
		t.Errorf("unexpected top n: %d", cfg.Merge.SummaryTopN)
	}
	if cfg.Sync.Enabled {
		t.Error("sync should default to disabled")
	}
	if cfg.Sync.WindowDays != 1 {
		t.Errorf("unexpected window days: %d", cfg.Sync.WindowDays)
	}
	if !cfg.IsDevelopment() {
		t.Error("expected development env by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ADRECON_API_KEY_MASTER", "secret")
	t.Setenv("ADRECON_HTTP_ADDR", ":9090")
	t.Setenv("ADRECON_SYNC_INTERVAL", "6h")
	t.Setenv("ADRECON_REVENUE_API_KEYS", "key1, key2 ,key3")
	t.Setenv("ADRECON_RATE_LIMIT_RPS", "12.5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Errorf("unexpected addr: %s", cfg.Server.Addr)
	}
	if cfg.Sync.Interval != 6*time.Hour {
		t.Errorf("unexpected interval: %v", cfg.Sync.Interval)
	}
	if len(cfg.RevenueSource.APIKeys) != 3 || cfg.RevenueSource.APIKeys[1] != "key2" {
		t.Errorf("unexpected api keys: %v", cfg.RevenueSource.APIKeys)
	}
	if cfg.RateLimit.RPS != 12.5 {
		t.Errorf("unexpected rps: %v", cfg.RateLimit.RPS)
	}
}

func TestValidateSyncRequirements(t *testing.T) {
	cfg := &Config{
		Auth: AuthConfig{Enabled: false},
		Sync: SyncConfig{Enabled: true, WindowDays: 1},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for sync without cost credentials")
	}

	cfg.CostSource.AccessToken = "token"
	cfg.CostSource.AccountID = "123"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg.Sync.WindowDays = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero window")
	}
}

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{
		Host: "db", Port: 5433, User: "u", Password: "p", DBName: "adrecon", SSLMode: "disable",
	}
	want := "postgres://u:p@db:5433/adrecon?sslmode=disable"
	if got := d.DSN(); got != want {
		t.Fatalf("unexpected dsn: %s", got)
	}
}
