package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port             int
	DatabaseURL      string
	NatsURL          string
	NatsToken        string
	LogLevel         string
	APIToken         string
	ElevenLabsAPIKey string
	AgentID          string
	SyncStartDate    string // YYYY-MM-DD, optional
	SyncEndDate      string // YYYY-MM-DD, optional
	SyncLastDays     int    // "last N days" shorthand, 0 = unset
	SyncIntervalMins int    // scheduled sync period, 0 = no scheduler
	SyncIncremental  bool
	StatePath        string
	ExportPath       string // when set, a CSV snapshot is written after each run
}

func Load() Config {
	// A local .env is a convenience for development; absence is fine.
	_ = godotenv.Load()

	return Config{
		Port:             envInt("EVA_PORT", 8460),
		DatabaseURL:      envStr("DATABASE_URL", ""),
		NatsURL:          envStr("NATS_URL", ""),
		NatsToken:        envStr("NATS_TOKEN", ""),
		LogLevel:         envStr("LOG_LEVEL", "info"),
		APIToken:         envStr("EVA_API_TOKEN", ""),
		ElevenLabsAPIKey: envStr("ELEVENLABS_API_KEY", ""),
		AgentID:          envStr("ELEVENLABS_AGENT_ID", ""),
		SyncStartDate:    envStr("EVA_SYNC_START_DATE", ""),
		SyncEndDate:      envStr("EVA_SYNC_END_DATE", ""),
		SyncLastDays:     envInt("EVA_SYNC_LAST_DAYS", 0),
		SyncIntervalMins: envInt("EVA_SYNC_INTERVAL_MINUTES", 0),
		SyncIncremental:  envBool("EVA_SYNC_INCREMENTAL", false),
		StatePath:        envStr("EVA_STATE_PATH", "~/.eva/sync-state.json"),
		ExportPath:       envStr("EVA_EXPORT_PATH", ""),
	}
}

// WindowBounds converts the configured date strings into unix bounds. An
// unparseable date is logged as a warning and treated as absent rather than
// aborting the run.
func (c Config) WindowBounds(logger *slog.Logger) (startUnix, endUnix int64) {
	startUnix = ParseDateUnix(c.SyncStartDate, logger)
	endUnix = ParseDateUnix(c.SyncEndDate, logger)
	return startUnix, endUnix
}

// ParseDateUnix parses a YYYY-MM-DD date into a unix timestamp at UTC
// midnight. Empty input returns 0; bad input warns and returns 0.
func ParseDateUnix(date string, logger *slog.Logger) int64 {
	if date == "" {
		return 0
	}
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		if logger != nil {
			logger.Warn("unparseable date, treating filter as absent", "date", date, "error", err)
		}
		return 0
	}
	return t.Unix()
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
