package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
)

type Config struct {
	Port        string
	StoreDriver string
	DatabaseURL string
	SQLitePath  string
	MySQLDSN    string
	JWTSecret   string
	RedisAddr   string

	AllowedOrigins         []string
	DemoMode               bool
	RateLimitPerMinute     int
	RecentTransactionLimit int
	LogLevel               string
	ProfileCache           bool
}

// Load reads the environment, after loading a .env file if one is present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Port:           getEnv("PORT", "8080"),
		StoreDriver:    strings.ToLower(getEnv("STORE_DRIVER", DriverPostgres)),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		SQLitePath:     getEnv("SQLITE_PATH", "fincil.db"),
		MySQLDSN:       getEnv("MYSQL_DSN", ""),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		RedisAddr:      getEnv("REDIS_ADDR", ""),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.DemoMode, err = getBool("DEMO_MODE", false); err != nil {
		return cfg, err
	}
	if cfg.ProfileCache, err = getBool("PROFILE_CACHE", true); err != nil {
		return cfg, err
	}
	if cfg.RateLimitPerMinute, err = getInt("RATE_LIMIT_PER_MINUTE", 30); err != nil {
		return cfg, err
	}
	if cfg.RecentTransactionLimit, err = getInt("RECENT_TRANSACTION_LIMIT", 5); err != nil {
		return cfg, err
	}

	if cfg.JWTSecret == "" {
		return cfg, errors.New("JWT_SECRET is required")
	}
	switch cfg.StoreDriver {
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return cfg, errors.New("DATABASE_URL is required")
		}
	case DriverMySQL:
		if cfg.MySQLDSN == "" {
			return cfg, errors.New("MYSQL_DSN is required")
		}
	case DriverSQLite:
	default:
		return cfg, fmt.Errorf("STORE_DRIVER must be postgres, sqlite or mysql, got %q", cfg.StoreDriver)
	}
	return cfg, nil
}

// getEnv treats an empty variable as unset.
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, s)
	}
	return n, nil
}

func getBool(key string, fallback bool) (bool, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("%s must be true or false, got %q", key, s)
	}
	return b, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
