package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultAddr is the default TCP address the server listens on.
	DefaultAddr = ":8080"
	// DefaultTickInterval is the base Scheduler cadence under full load (spec BASE_TICK).
	DefaultTickInterval = 33 * time.Millisecond
	// DefaultClientSyncInterval throttles motion-only broadcasts (spec CLIENT_SYNC).
	DefaultClientSyncInterval = 100 * time.Millisecond
	// DefaultInputTTL bounds how long a cached paddle target remains valid.
	DefaultInputTTL = 5 * time.Second
	// DefaultCoordStoreTimeout bounds a single coordination-store round trip.
	DefaultCoordStoreTimeout = 2 * time.Second

	// DefaultLogLevel controls verbosity for server logs.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written.
	DefaultLogPath = "pong-server.log"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 100
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 10
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true

	// DefaultStateSnapshotInterval controls how frequently diagnostic snapshots are persisted.
	DefaultStateSnapshotInterval = 30 * time.Second

	// DefaultInputMaxAge rejects a paddle-input frame whose estimated
	// capture-to-arrival latency exceeds this bound.
	DefaultInputMaxAge = 500 * time.Millisecond
	// DefaultInputMinInterval rate-limits accepted frames per connection.
	DefaultInputMinInterval = 10 * time.Millisecond

	// DefaultMatchQueueKey is the coordination-store key backing the
	// matchmaking queue, overridable so multiple deployments can share one
	// Redis instance without colliding.
	DefaultMatchQueueKey = "pong:matchqueue"
)

// Config captures all runtime tunables for the pong server process.
type Config struct {
	Address            string
	AllowedOrigins     []string
	AdminToken         string
	CoordStoreURL      string
	CoordStoreTimeout  time.Duration
	TickInterval       time.Duration
	ClientSyncInterval time.Duration
	InputTTL           time.Duration
	Logging            LoggingConfig

	StateSnapshotPath     string
	StateSnapshotInterval time.Duration

	InputMaxAge      time.Duration
	InputMinInterval time.Duration
	MatchQueueKey    string
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Load reads the server configuration from environment variables, applying sane defaults
// and returning descriptive errors for invalid overrides.
func Load() (*Config, error) {
	cfg := &Config{
		Address:            getString("PONG_ADDR", DefaultAddr),
		AllowedOrigins:     parseList(os.Getenv("PONG_ALLOWED_ORIGINS")),
		AdminToken:         strings.TrimSpace(os.Getenv("PONG_ADMIN_TOKEN")),
		CoordStoreURL:      strings.TrimSpace(os.Getenv("PONG_COORD_STORE_URL")),
		CoordStoreTimeout:  DefaultCoordStoreTimeout,
		TickInterval:       DefaultTickInterval,
		ClientSyncInterval: DefaultClientSyncInterval,
		InputTTL:           DefaultInputTTL,
		Logging: LoggingConfig{
			Level:      strings.TrimSpace(getString("PONG_LOG_LEVEL", DefaultLogLevel)),
			Path:       strings.TrimSpace(getString("PONG_LOG_PATH", DefaultLogPath)),
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   DefaultLogCompress,
		},
		StateSnapshotPath:     strings.TrimSpace(os.Getenv("PONG_STATE_SNAPSHOT_PATH")),
		StateSnapshotInterval: DefaultStateSnapshotInterval,

		InputMaxAge:      DefaultInputMaxAge,
		InputMinInterval: DefaultInputMinInterval,
		MatchQueueKey:    getString("PONG_MATCH_QUEUE_KEY", DefaultMatchQueueKey),
	}

	var problems []string

	if raw := strings.TrimSpace(os.Getenv("PONG_COORD_STORE_TIMEOUT")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("PONG_COORD_STORE_TIMEOUT must be a positive duration, got %q", raw))
		} else {
			cfg.CoordStoreTimeout = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("PONG_TICK_INTERVAL")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("PONG_TICK_INTERVAL must be a positive duration, got %q", raw))
		} else {
			cfg.TickInterval = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("PONG_CLIENT_SYNC_INTERVAL")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("PONG_CLIENT_SYNC_INTERVAL must be a positive duration, got %q", raw))
		} else {
			cfg.ClientSyncInterval = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("PONG_INPUT_TTL")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("PONG_INPUT_TTL must be a positive duration, got %q", raw))
		} else {
			cfg.InputTTL = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("PONG_LOG_MAX_SIZE_MB")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("PONG_LOG_MAX_SIZE_MB must be a positive integer, got %q", raw))
		} else {
			cfg.Logging.MaxSizeMB = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("PONG_LOG_MAX_BACKUPS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("PONG_LOG_MAX_BACKUPS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxBackups = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("PONG_LOG_MAX_AGE_DAYS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("PONG_LOG_MAX_AGE_DAYS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxAgeDays = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("PONG_LOG_COMPRESS")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("PONG_LOG_COMPRESS must be a boolean value, got %q", raw))
		} else {
			cfg.Logging.Compress = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("PONG_STATE_SNAPSHOT_INTERVAL")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("PONG_STATE_SNAPSHOT_INTERVAL must be a positive duration, got %q", raw))
		} else {
			cfg.StateSnapshotInterval = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("PONG_INPUT_MAX_AGE")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("PONG_INPUT_MAX_AGE must be a positive duration, got %q", raw))
		} else {
			cfg.InputMaxAge = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("PONG_INPUT_MIN_INTERVAL")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("PONG_INPUT_MIN_INTERVAL must be a positive duration, got %q", raw))
		} else {
			cfg.InputMinInterval = duration
		}
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf(strings.Join(problems, "; "))
	}

	return cfg, nil
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			values = append(values, item)
		}
	}
	return values
}
