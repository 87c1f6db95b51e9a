package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PONG_ADDR", "")
	t.Setenv("PONG_ALLOWED_ORIGINS", "")
	t.Setenv("PONG_COORD_STORE_URL", "")
	t.Setenv("PONG_TICK_INTERVAL", "")
	t.Setenv("PONG_CLIENT_SYNC_INTERVAL", "")
	t.Setenv("PONG_INPUT_TTL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Address != DefaultAddr {
		t.Fatalf("expected default addr %q, got %q", DefaultAddr, cfg.Address)
	}
	if cfg.AllowedOrigins != nil {
		t.Fatalf("expected no allowed origins, got %#v", cfg.AllowedOrigins)
	}
	if cfg.TickInterval != DefaultTickInterval {
		t.Fatalf("expected default tick interval %v, got %v", DefaultTickInterval, cfg.TickInterval)
	}
	if cfg.ClientSyncInterval != DefaultClientSyncInterval {
		t.Fatalf("expected default client sync interval %v, got %v", DefaultClientSyncInterval, cfg.ClientSyncInterval)
	}
	if cfg.InputTTL != DefaultInputTTL {
		t.Fatalf("expected default input ttl %v, got %v", DefaultInputTTL, cfg.InputTTL)
	}
	if cfg.CoordStoreURL != "" {
		t.Fatalf("expected empty coord store url, got %q", cfg.CoordStoreURL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PONG_ADDR", "127.0.0.1:9000")
	t.Setenv("PONG_ALLOWED_ORIGINS", "https://example.com, https://demo.local")
	t.Setenv("PONG_COORD_STORE_URL", "redis://localhost:6379/0")
	t.Setenv("PONG_TICK_INTERVAL", "40ms")
	t.Setenv("PONG_CLIENT_SYNC_INTERVAL", "120ms")
	t.Setenv("PONG_INPUT_TTL", "3s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Address != "127.0.0.1:9000" {
		t.Fatalf("unexpected address: %q", cfg.Address)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[0] != "https://example.com" || cfg.AllowedOrigins[1] != "https://demo.local" {
		t.Fatalf("unexpected allowed origins: %#v", cfg.AllowedOrigins)
	}
	if cfg.CoordStoreURL != "redis://localhost:6379/0" {
		t.Fatalf("unexpected coord store url: %q", cfg.CoordStoreURL)
	}
	if cfg.TickInterval != 40*time.Millisecond {
		t.Fatalf("expected tick interval 40ms, got %v", cfg.TickInterval)
	}
	if cfg.ClientSyncInterval != 120*time.Millisecond {
		t.Fatalf("expected client sync interval 120ms, got %v", cfg.ClientSyncInterval)
	}
	if cfg.InputTTL != 3*time.Second {
		t.Fatalf("expected input ttl 3s, got %v", cfg.InputTTL)
	}
}

func TestLoadReturnsValidationErrors(t *testing.T) {
	t.Setenv("PONG_TICK_INTERVAL", "abc")
	t.Setenv("PONG_CLIENT_SYNC_INTERVAL", "-5ms")
	t.Setenv("PONG_LOG_MAX_SIZE_MB", "-1")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error from invalid configuration, got nil")
	}

	for _, want := range []string{
		"PONG_TICK_INTERVAL",
		"PONG_CLIENT_SYNC_INTERVAL",
		"PONG_LOG_MAX_SIZE_MB",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected error to mention %s, got %q", want, err.Error())
		}
	}
}

func TestLoadIgnoresEmptyAllowedOrigins(t *testing.T) {
	t.Setenv("PONG_ALLOWED_ORIGINS", " , ,https://ok.example, ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "https://ok.example" {
		t.Fatalf("expected single cleaned origin, got %#v", cfg.AllowedOrigins)
	}
}

func TestLoadAppliesLoggingDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Logging.MaxSizeMB != DefaultLogMaxSizeMB {
		t.Fatalf("expected default log max size, got %d", cfg.Logging.MaxSizeMB)
	}
	if cfg.Logging.Compress != DefaultLogCompress {
		t.Fatalf("expected default log compress %v, got %v", DefaultLogCompress, cfg.Logging.Compress)
	}
}
