package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Success(t *testing.T) {
	setMinimalEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	if cfg.App.Env != "production" {
		t.Fatalf("expected App.Env to be production, got %q", cfg.App.Env)
	}
	if cfg.App.Port != "8081" {
		t.Fatalf("unexpected port %q", cfg.App.Port)
	}
	if cfg.Redis.URL != "redis://localhost:6379/0" {
		t.Fatalf("unexpected Redis URL: %q", cfg.Redis.URL)
	}
	if cfg.Storage.Driver != StorageDriverRedis {
		t.Fatalf("expected default storage driver redis, got %q", cfg.Storage.Driver)
	}
	if cfg.Collections.CompareLimit != 4 {
		t.Fatalf("expected compare limit 4, got %d", cfg.Collections.CompareLimit)
	}
	if got := cfg.Collections.ErrorTTL; got != 3*time.Second {
		t.Fatalf("expected error ttl 3s, got %v", got)
	}
	if got := cfg.Collections.ReflectWait; got != 1500*time.Millisecond {
		t.Fatalf("expected reflect wait 1.5s, got %v", got)
	}
	if got := cfg.Collections.PollInterval; got != 50*time.Millisecond {
		t.Fatalf("expected poll interval 50ms, got %v", got)
	}
	if cfg.RateLimit.Window != time.Minute || cfg.RateLimit.DeviceLimit != 120 {
		t.Fatalf("unexpected rate limit defaults: %+v", cfg.RateLimit)
	}
}

func TestLoad_Overrides(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv(EnvCompareLimit, "6")
	t.Setenv(EnvErrorTTL, "5s")
	t.Setenv(EnvCORSOrigins, "https://a.example,https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if cfg.Collections.CompareLimit != 6 {
		t.Fatalf("expected compare limit 6, got %d", cfg.Collections.CompareLimit)
	}
	if cfg.Collections.ErrorTTL != 5*time.Second {
		t.Fatalf("expected error ttl 5s, got %v", cfg.Collections.ErrorTTL)
	}
	if len(cfg.CORS.AllowedOrigins) != 2 {
		t.Fatalf("expected 2 origins, got %v", cfg.CORS.AllowedOrigins)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	setMinimalEnv(t)
	if err := os.Unsetenv(EnvAppEnv); err != nil {
		t.Fatalf("failed to unset %s: %v", EnvAppEnv, err)
	}

	if _, err := Load(); err == nil {
		t.Fatal("expected missing required env to return an error")
	}
}

func TestLoad_StorageDriverValidation(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv(EnvStorageDriver, "etcd")
	if _, err := Load(); err == nil {
		t.Fatal("expected unsupported storage driver to fail")
	}

	t.Setenv(EnvStorageDriver, StorageDriverSQL)
	if _, err := Load(); err == nil {
		t.Fatal("expected sql driver without dsn to fail")
	}

	t.Setenv(EnvDBDSN, "file::memory:?cache=shared")
	t.Setenv(EnvDBDriver, "sqlite")
	if _, err := Load(); err != nil {
		t.Fatalf("expected sql driver with dsn to load, got %v", err)
	}
}

func setMinimalEnv(t *testing.T) {
	t.Helper()

	t.Setenv(EnvAppEnv, "production")
	t.Setenv(EnvPort, "8081")
	t.Setenv(EnvRedisURL, "redis://localhost:6379/0")
	t.Setenv(EnvRemoteBaseURL, "https://api.storefront.test")
	t.Setenv(EnvJWTSecret, "secret")
}

func TestAppConfigEnvHelpers(t *testing.T) {
	devConfig := AppConfig{Env: "DEV"}
	if !devConfig.IsDev() {
		t.Fatalf("expected IsDev true for %q", devConfig.Env)
	}
	if devConfig.IsProd() {
		t.Fatalf("expected IsProd false for %q", devConfig.Env)
	}

	prodConfig := AppConfig{Env: "prod"}
	if !prodConfig.IsProd() {
		t.Fatalf("expected IsProd true for %q", prodConfig.Env)
	}
	if prodConfig.IsDev() {
		t.Fatalf("expected IsDev false for %q", prodConfig.Env)
	}
}
