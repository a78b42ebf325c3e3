package config

import (
	"os"
	"strconv"
	"strings"
)

type AppConfig struct {
	ListenAddr string

	RedisURL    string
	DatabaseURL string

	AllowedOrigins []string

	InviteTTLSec int

	DefaultInitialTimeSec int
	DefaultIncrementSec   int
	MaxConcurrentGames    int

	MessageOverrideDir string
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:            ":8080",
		InviteTTLSec:          24 * 3600,
		DefaultInitialTimeSec: 300,
		DefaultIncrementSec:   0,
		MaxConcurrentGames:    200,
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	if v := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")); v != "" {
		parts := strings.Split(v, ",")
		for _, p := range parts {
			s := strings.TrimSpace(p)
			if s != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, s)
			}
		}
	}

	if v := strings.TrimSpace(os.Getenv("INVITE_TTL")); v != "" { // seconds
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.InviteTTLSec = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("DEFAULT_INITIAL_TIME")); v != "" { // seconds
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.DefaultInitialTimeSec = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("DEFAULT_INCREMENT")); v != "" { // seconds
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.DefaultIncrementSec = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("MAX_CONCURRENT_GAMES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxConcurrentGames = n
		}
	}

	cfg.MessageOverrideDir = strings.TrimSpace(os.Getenv("MESSAGE_OVERRIDE_DIR"))

	return cfg, nil
}
