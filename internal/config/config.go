package config

import (
	"errors"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"

	"github.com/lyallcooper/legalreview/internal/scan"
)

// EnvPrefix prefixes every environment variable read by Load
const EnvPrefix = "LEGALREVIEW_"

// Config holds all application configuration
type Config struct {
	Port               int
	DBPath             string
	Checkpoints        scan.Checkpoints
	CheckpointInterval time.Duration
	AnalysisTimeout    time.Duration
	SessionTTL         time.Duration
	SweepSchedule      string // cron spec for the idle session sweep
	MaxUploadSize      int64  // bytes per upload request
}

// Default values
const (
	DefaultPort          = 8080
	DefaultSessionTTL    = 12 * time.Hour
	DefaultSweepSchedule = "@every 15m"
	DefaultMaxUpload     = "50MB"
)

// Load reads configuration from environment variables, after loading a .env
// file (LEGALREVIEW_ENV_FILE, default ./.env) when one exists. Variables
// already set in the environment win over the file.
func Load() *Config {
	loadDotEnv(getEnv("ENV_FILE", ".env"))

	defaultUpload, _ := humanize.ParseBytes(DefaultMaxUpload)

	cfg := &Config{
		Port:               getEnvInt("PORT", DefaultPort),
		DBPath:             ExpandPath(getEnv("DB_PATH", ":memory:")),
		Checkpoints:        getEnvCheckpoints("CHECKPOINTS", scan.DefaultCheckpoints),
		CheckpointInterval: getEnvDuration("CHECKPOINT_INTERVAL", scan.DefaultInterval),
		AnalysisTimeout:    getEnvDuration("ANALYSIS_TIMEOUT", scan.DefaultAnalysisTimeout),
		SessionTTL:         getEnvDuration("SESSION_TTL", DefaultSessionTTL),
		SweepSchedule:      getEnv("SWEEP_SCHEDULE", DefaultSweepSchedule),
		MaxUploadSize:      getEnvBytes("MAX_UPLOAD_SIZE", int64(defaultUpload)),
	}

	return cfg
}

func loadDotEnv(path string) {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("config: ignoring %s: %v", path, err)
	}
}

// ExpandPath expands a leading ~ to the home directory and cleans the path.
// The in-memory database name is returned unchanged.
func ExpandPath(path string) string {
	if path == "" || path == ":memory:" {
		return path
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[1:])
		}
	}
	return filepath.Clean(path)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
		log.Printf("config: invalid %s%s=%q, using %d", EnvPrefix, key, val, defaultVal)
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if d, err := time.ParseDuration(val); err == nil && d > 0 {
			return d
		}
		log.Printf("config: invalid %s%s=%q, using %s", EnvPrefix, key, val, defaultVal)
	}
	return defaultVal
}

func getEnvBytes(key string, defaultVal int64) int64 {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if n, err := humanize.ParseBytes(val); err == nil && n > 0 {
			return int64(n)
		}
		log.Printf("config: invalid %s%s=%q, using %s", EnvPrefix, key, val, humanize.Bytes(uint64(defaultVal)))
	}
	return defaultVal
}

func getEnvCheckpoints(key string, defaultVal scan.Checkpoints) scan.Checkpoints {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		cps, err := scan.ParseCheckpoints(val)
		if err == nil {
			return cps
		}
		log.Printf("config: %s%s: %v, using %s", EnvPrefix, key, err, defaultVal)
	}
	return append(scan.Checkpoints(nil), defaultVal...)
}
