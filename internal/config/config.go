package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultListenAddr  = ":3000"
	defaultDBPath      = "infernum.db"
	defaultModel       = "echo"
	defaultSampleLen   = 50
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "llava"

	envListenAddr     = "INFERNUM_LISTEN_ADDR"
	envDBPath         = "INFERNUM_DB_PATH"
	envLogLevel       = "INFERNUM_LOG_LEVEL"
	envModel          = "INFERNUM_MODEL"
	envModelDelay     = "INFERNUM_MODEL_DELAY"
	envSampleLen      = "INFERNUM_SAMPLE_LEN"
	envQueueCapacity  = "INFERNUM_QUEUE_CAPACITY"
	envRejectWhenBusy = "INFERNUM_REJECT_WHEN_BUSY"
	envOllamaURL      = "INFERNUM_OLLAMA_URL"
	envOllamaModel    = "INFERNUM_OLLAMA_MODEL"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	ListenAddr string
	DBPath     string
	LogLevel   slog.Level

	// Model is the registered name of the model the engine runs.
	Model      string
	ModelDelay time.Duration
	SampleLen  int

	// QueueCapacity bounds the engine queue; zero means unbounded.
	QueueCapacity int
	// RejectWhenBusy makes the API refuse new inference while the engine
	// is processing.
	RejectWhenBusy bool

	OllamaURL   string
	OllamaModel string
}

// Load reads configuration from environment variables with sensible defaults.
// Malformed numeric, duration or boolean values are reported as errors.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr:     defaultListenAddr,
		DBPath:         defaultDBPath,
		LogLevel:       slog.LevelInfo,
		Model:          defaultModel,
		SampleLen:      defaultSampleLen,
		RejectWhenBusy: true,
		OllamaURL:      defaultOllamaURL,
		OllamaModel:    defaultOllamaModel,
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	if v := os.Getenv(envModel); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv(envModelDelay); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", envModelDelay, err)
		}
		cfg.ModelDelay = d
	}
	if v := os.Getenv(envSampleLen); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", envSampleLen, err)
		}
		if n <= 0 {
			return Config{}, fmt.Errorf("%s must be positive, got %d", envSampleLen, n)
		}
		cfg.SampleLen = n
	}
	if v := os.Getenv(envQueueCapacity); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", envQueueCapacity, err)
		}
		cfg.QueueCapacity = n
	}
	if v := os.Getenv(envRejectWhenBusy); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", envRejectWhenBusy, err)
		}
		cfg.RejectWhenBusy = b
	}
	if v := os.Getenv(envOllamaURL); v != "" {
		cfg.OllamaURL = v
	}
	if v := os.Getenv(envOllamaModel); v != "" {
		cfg.OllamaModel = v
	}

	return cfg, nil
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
