package config

import (
	"testing"
	"time"

	"github.com/julianshen/twspoc/pkg/enums"
)

func TestLoad_Defaults(t *testing.T) {
	setMinimalEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	if cfg.Remote.BaseURL != "http://localhost:8080" {
		t.Fatalf("unexpected base url %q", cfg.Remote.BaseURL)
	}
	if cfg.Remote.UserID != "user123" {
		t.Fatalf("unexpected user id %q", cfg.Remote.UserID)
	}
	if cfg.Remote.RequestTimeout != 10*time.Second {
		t.Fatalf("expected 10s request timeout, got %v", cfg.Remote.RequestTimeout)
	}
	if cfg.Fallback.Interval != 15*time.Second {
		t.Fatalf("expected 15s fallback interval, got %v", cfg.Fallback.Interval)
	}
	if cfg.Fallback.SeedCount != 2 {
		t.Fatalf("expected 2 seeds, got %d", cfg.Fallback.SeedCount)
	}
	if cfg.Remote.MaxEventBytes != 1<<20 {
		t.Fatalf("expected 1MiB event cap, got %d", cfg.Remote.MaxEventBytes)
	}
	if cfg.Supervisor.StableAfter != 10*time.Second {
		t.Fatalf("expected 10s stable-after, got %v", cfg.Supervisor.StableAfter)
	}
	if cfg.Supervisor.MaxRetries != 5 {
		t.Fatalf("expected 5 retries, got %d", cfg.Supervisor.MaxRetries)
	}
	if cfg.Push.TransportKind() != enums.PushTransportSSE {
		t.Fatalf("expected sse transport, got %q", cfg.Push.TransportKind())
	}
}

func TestLoad_Overrides(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv(EnvRemoteBaseURL, "https://notify.example.com")
	t.Setenv(EnvSupervisorMaxRetries, "0")
	t.Setenv(EnvFallbackInterval, "2s")
	t.Setenv(EnvPushTransport, "redis")
	t.Setenv(EnvRedisURL, "redis://localhost:6379/0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if cfg.Remote.BaseURL != "https://notify.example.com" {
		t.Fatalf("unexpected base url %q", cfg.Remote.BaseURL)
	}
	if cfg.Supervisor.MaxRetries != 0 {
		t.Fatalf("expected unlimited retries, got %d", cfg.Supervisor.MaxRetries)
	}
	if cfg.Fallback.Interval != 2*time.Second {
		t.Fatalf("unexpected fallback interval %v", cfg.Fallback.Interval)
	}
	if cfg.Push.TransportKind() != enums.PushTransportRedis {
		t.Fatalf("expected redis transport, got %q", cfg.Push.TransportKind())
	}
}

func TestLoad_RedisTransportRequiresAddress(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv(EnvPushTransport, "redis")

	if _, err := Load(); err == nil {
		t.Fatal("expected redis transport without address to fail")
	}
}

func TestLoad_PubSubTransportRequiresProject(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv(EnvPushTransport, "pubsub")
	t.Setenv(EnvPubSubNotificationSub, "notifications-sub")

	if _, err := Load(); err == nil {
		t.Fatal("expected pubsub transport without project to fail")
	}

	t.Setenv(EnvGCPProjectID, "project-123")
	if _, err := Load(); err != nil {
		t.Fatalf("unexpected error once project is set: %v", err)
	}
}

func TestLoad_UnknownTransport(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv(EnvPushTransport, "carrier-pigeon")

	if _, err := Load(); err == nil {
		t.Fatal("expected unknown transport to fail")
	}
}

func TestLoad_OfflineSkipsRemoteValidation(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv(EnvRemoteOffline, "true")
	t.Setenv(EnvRemoteBaseURL, "::not a url::")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("offline config should not validate remote: %v", err)
	}
	if !cfg.Remote.Offline {
		t.Fatal("expected offline flag")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv(EnvConfirmTimeout, "soon")

	if _, err := Load(); err == nil {
		t.Fatal("expected malformed duration to fail")
	}
}

func setMinimalEnv(t *testing.T) {
	t.Helper()

	t.Setenv(EnvAppEnv, "dev")
	t.Setenv(EnvPort, "8090")
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
}
