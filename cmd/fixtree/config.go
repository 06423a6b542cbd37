package main

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all fixtree server configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	ListenAddr      string `json:"listen_addr"`
	DBPath          string `json:"db_path"`
	MirrorPath      string `json:"mirror_path"`
	LogLevel        string `json:"log_level"`
	ChangeRetention string `json:"change_retention"` // Go duration, e.g. "2160h"
	MCP             bool   `json:"mcp"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr: ":4200",
		DBPath:     filepath.Join(fixtreeDir(), "fixtree.db"),
		MirrorPath: filepath.Join(fixtreeDir(), "mirror.json"),
		LogLevel:   "info",
	}
}

func fixtreeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".fixtree"
	}
	return filepath.Join(home, ".fixtree")
}

func settingsPath() string {
	return filepath.Join(fixtreeDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("FIXTREE_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("FIXTREE_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("FIXTREE_MIRROR_PATH"); v != "" {
		cfg.MirrorPath = v
	}
	if v := os.Getenv("FIXTREE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("FIXTREE_CHANGE_RETENTION"); v != "" {
		cfg.ChangeRetention = v
	}
	if v := os.Getenv("FIXTREE_MCP"); v != "" {
		cfg.MCP = v == "true" || v == "1"
	}

	return cfg
}

// changeRetention parses the configured retention window, falling back to
// zero so the scheduler applies its default.
func (c Config) changeRetention() time.Duration {
	if c.ChangeRetention == "" {
		return 0
	}
	if d, err := time.ParseDuration(c.ChangeRetention); err == nil {
		return d
	}
	if days, err := strconv.Atoi(c.ChangeRetention); err == nil {
		return time.Duration(days) * 24 * time.Hour
	}
	return 0
}

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
