// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds runtime settings.
type Config struct {
	DataDir           string
	PersonasFile      string
	CorpusFiles       []string
	TemplatesFile     string
	DatabaseURL       string
	RedisAddr         string
	RedisKeyPrefix    string
	MetricsAddr       string
	LogLevel          string
	RandomSeed        uint64
	StrategyTimeout   time.Duration
	SelectionMethod   string
	CFWeight          float64
	CheckpointEvery   time.Duration
	WatchCorpus       bool
	DialogueCacheSize int
}

// Load reads env vars and applies defaults.
func Load() Config {
	cfg := Config{
		DataDir:         os.Getenv("DATA_DIR"),
		PersonasFile:    os.Getenv("PERSONAS_FILE"),
		TemplatesFile:   os.Getenv("TEMPLATES_FILE"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisKeyPrefix:  os.Getenv("REDIS_KEY_PREFIX"),
		MetricsAddr:     os.Getenv("METRICS_ADDR"),
		LogLevel:        strings.ToLower(os.Getenv("LOG_LEVEL")),
		SelectionMethod: strings.ToLower(os.Getenv("SELECTION_METHOD")),
	}

	cfg.RandomSeed = uint64(getEnvInt("RANDOM_SEED", 0))
	cfg.StrategyTimeout = getEnvDuration("STRATEGY_TIMEOUT", 250*time.Millisecond)
	cfg.CFWeight = getEnvFloat("CF_WEIGHT", 0.25)
	cfg.CheckpointEvery = getEnvDuration("CHECKPOINT_INTERVAL", time.Minute)
	cfg.WatchCorpus = getEnvBool("WATCH_CORPUS", false)
	cfg.DialogueCacheSize = getEnvInt("DIALOGUE_CACHE_SIZE", 100)

	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	if cfg.PersonasFile == "" {
		cfg.PersonasFile = filepath.Join(cfg.DataDir, "personas.json")
	}
	if raw := os.Getenv("CORPUS_FILES"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				cfg.CorpusFiles = append(cfg.CorpusFiles, part)
			}
		}
	}
	if len(cfg.CorpusFiles) == 0 {
		cfg.CorpusFiles = []string{filepath.Join(cfg.DataDir, "training")}
	}
	if cfg.RedisKeyPrefix == "" {
		cfg.RedisKeyPrefix = "persona-engine"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.SelectionMethod == "" {
		cfg.SelectionMethod = "weighted_random"
	}

	return cfg
}

// Validate checks values that cannot be defaulted.
func (c Config) Validate() error {
	switch c.SelectionMethod {
	case "best", "weighted_random", "thompson":
	default:
		return fmt.Errorf("invalid SELECTION_METHOD %q", c.SelectionMethod)
	}
	if c.CFWeight < 0 || c.CFWeight > 1 {
		return fmt.Errorf("CF_WEIGHT must be within [0,1], got %v", c.CFWeight)
	}
	if c.StrategyTimeout <= 0 {
		return fmt.Errorf("STRATEGY_TIMEOUT must be positive")
	}
	if c.DialogueCacheSize <= 0 {
		return fmt.Errorf("DIALOGUE_CACHE_SIZE must be positive")
	}
	return nil
}

// SlogLevel maps LOG_LEVEL onto a slog level. Unknown values mean info.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}
