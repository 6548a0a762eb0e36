package config

import (
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Load()
	if cfg.Port != 53550 {
		t.Fatalf("default port %d", cfg.Port)
	}
	if cfg.DiscoveryPort != 53551 {
		t.Fatalf("default discovery port %d", cfg.DiscoveryPort)
	}
	if cfg.DrawTimeout != 120*time.Second {
		t.Fatalf("default draw timeout %s", cfg.DrawTimeout)
	}
	if cfg.ValidateTimeout != 10*time.Second {
		t.Fatalf("default validate timeout %s", cfg.ValidateTimeout)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("SYMBOL_GAME_PORT", "6000")
	t.Setenv("SYMBOL_GAME_DRAW_TIMEOUT", "30")
	t.Setenv("SYMBOL_GAME_LOG_DIR", "/tmp/symbol-logs")

	cfg := Load()
	if cfg.Port != 6000 {
		t.Fatalf("port override ignored, got %d", cfg.Port)
	}
	if cfg.DrawTimeout != 30*time.Second {
		t.Fatalf("timeout override ignored, got %s", cfg.DrawTimeout)
	}
	if cfg.LogDir != "/tmp/symbol-logs" {
		t.Fatalf("log dir override ignored, got %s", cfg.LogDir)
	}
}

func TestBadValuesFallBack(t *testing.T) {
	t.Setenv("SYMBOL_GAME_PORT", "not-a-port")
	t.Setenv("SYMBOL_GAME_VALIDATE_TIMEOUT", "-5")

	cfg := Load()
	if cfg.Port != 53550 {
		t.Fatalf("bad port not rejected, got %d", cfg.Port)
	}
	if cfg.ValidateTimeout != 10*time.Second {
		t.Fatalf("negative timeout not rejected, got %s", cfg.ValidateTimeout)
	}
}
