package config

import (
	"reflect"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("DATABASE_URL", "postgres://localhost/fincil")
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("PORT", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com,")
	t.Setenv("DEMO_MODE", "")
	t.Setenv("PROFILE_CACHE", "")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "")
	t.Setenv("RECENT_TRANSACTION_LIMIT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.StoreDriver != DriverPostgres || cfg.Port != "8080" || cfg.LogLevel != "info" {
		t.Errorf("StoreDriver = %q, Port = %q, LogLevel = %q", cfg.StoreDriver, cfg.Port, cfg.LogLevel)
	}
	if !reflect.DeepEqual(cfg.AllowedOrigins, []string{"https://a.example.com", "https://b.example.com"}) {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.DemoMode || !cfg.ProfileCache || cfg.RateLimitPerMinute != 30 || cfg.RecentTransactionLimit != 5 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing secret", map[string]string{"JWT_SECRET": "", "STORE_DRIVER": "sqlite"}, "JWT_SECRET"},
		{"missing database url", map[string]string{"STORE_DRIVER": "postgres", "DATABASE_URL": ""}, "DATABASE_URL"},
		{"missing mysql dsn", map[string]string{"STORE_DRIVER": "mysql", "MYSQL_DSN": ""}, "MYSQL_DSN"},
		{"unknown driver", map[string]string{"STORE_DRIVER": "oracle"}, "STORE_DRIVER"},
		{"bad bool", map[string]string{"STORE_DRIVER": "sqlite", "DEMO_MODE": "maybe"}, "DEMO_MODE"},
		{"bad int", map[string]string{"STORE_DRIVER": "sqlite", "RATE_LIMIT_PER_MINUTE": "0"}, "RATE_LIMIT_PER_MINUTE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "s")
			t.Setenv("DEMO_MODE", "")
			t.Setenv("RATE_LIMIT_PER_MINUTE", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load() error = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestLoadSQLite(t *testing.T) {
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("STORE_DRIVER", "SQLite")
	t.Setenv("SQLITE_PATH", ":memory:")
	t.Setenv("DEMO_MODE", "true")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.StoreDriver != DriverSQLite || cfg.SQLitePath != ":memory:" || !cfg.DemoMode {
		t.Errorf("unexpected config %+v", cfg)
	}
}
