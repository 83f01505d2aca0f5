package app

import (
	"errors"
	"testing"
	"time"

	"edulms/internal/db"
)

func TestConfigDefaults(t *testing.T) {
	cfg, err := configFrom(newViper())
	if err != nil {
		t.Fatalf("configFrom: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("expected :8080, got %s", cfg.HTTPAddr)
	}
	if cfg.DBDriver != db.DriverPostgres {
		t.Fatalf("expected postgres driver, got %s", cfg.DBDriver)
	}
	if cfg.JWTTTL != 480*time.Minute {
		t.Fatalf("unexpected jwt ttl %s", cfg.JWTTTL)
	}
	if cfg.JWTSecret == "" {
		t.Fatalf("development config should fall back to a dev secret")
	}
	if !cfg.AnalysisPersist {
		t.Fatalf("analysis persist should default to true")
	}
	if len(cfg.CORSAllowedOrigins) != 0 {
		t.Fatalf("expected no cors origins, got %v", cfg.CORSAllowedOrigins)
	}
}

func TestConfigFromOverrides(t *testing.T) {
	v := newViper()
	v.Set("APP_ENV", "production")
	v.Set("JWT_SECRET", "s3cret")
	v.Set("DB_DRIVER", "sqlite")
	v.Set("RATE_LIMIT_PER_MINUTE", -5)
	v.Set("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg, err := configFrom(v)
	if err != nil {
		t.Fatalf("configFrom: %v", err)
	}
	if cfg.DBDriver != db.DriverSQLite {
		t.Fatalf("expected sqlite, got %s", cfg.DBDriver)
	}
	if cfg.RateLimitPerMin != 120 {
		t.Fatalf("negative rate limit should fall back to 120, got %d", cfg.RateLimitPerMin)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins %v", cfg.CORSAllowedOrigins)
	}
}

func TestConfigRequiresSecretOutsideDevelopment(t *testing.T) {
	v := newViper()
	v.Set("APP_ENV", "production")

	_, err := configFrom(v)
	if !errors.Is(err, ErrMissingJWTSecret) {
		t.Fatalf("expected ErrMissingJWTSecret, got %v", err)
	}
}

func TestConfigRejectsUnknownDriver(t *testing.T) {
	v := newViper()
	v.Set("DB_DRIVER", "oracle")

	if _, err := configFrom(v); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
