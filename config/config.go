// Package config loads node settings from the environment, with a
// .env file picked up in development.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port          int
	DiscoveryPort int
	LogDir        string

	// DrawTimeout bounds the wait for the current drawer's proposal;
	// it includes human decision time so it is generous.
	DrawTimeout time.Duration
	// ValidateTimeout bounds the wait for validation replies; one
	// network round-trip plus light local computation.
	ValidateTimeout time.Duration
	// StartTimeout bounds the start_game acknowledgment window.
	StartTimeout time.Duration
}

// Load reads the environment. Defaults keep a node playable with no
// configuration at all.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:            envInt("SYMBOL_GAME_PORT", 53550),
		DiscoveryPort:   envInt("SYMBOL_GAME_DISCOVERY_PORT", 53551),
		LogDir:          envString("SYMBOL_GAME_LOG_DIR", "logs"),
		DrawTimeout:     envSeconds("SYMBOL_GAME_DRAW_TIMEOUT", 120*time.Second),
		ValidateTimeout: envSeconds("SYMBOL_GAME_VALIDATE_TIMEOUT", 10*time.Second),
		StartTimeout:    envSeconds("SYMBOL_GAME_START_TIMEOUT", 15*time.Second),
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func envSeconds(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return fallback
}
