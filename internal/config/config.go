// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Store drivers.
const (
	StoreDriverSQLite = "sqlite"
	StoreDriverBadger = "badger"
)

// Artifact backends.
const (
	ArtifactBackendFS    = "fs"
	ArtifactBackendMinio = "minio"
)

// Download counter backends.
const (
	CounterBackendStore = "store"
	CounterBackendRedis = "redis"
)

// Config holds the application configuration.
type Config struct {
	App       AppConfig
	Logger    LoggerConfig
	Data      DataConfig
	Store     StoreConfig
	Artifacts ArtifactConfig
	Counter   CounterConfig
	Server    ServerConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Sweep     SweepConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// DataConfig holds the on-disk data location (databases, auth key).
type DataConfig struct {
	Path string
}

// StoreConfig selects the Document Store backend.
type StoreConfig struct {
	Driver string
}

// ArtifactConfig says where local book artifacts live and how remote ones are fetched.
type ArtifactConfig struct {
	Backend            string
	Root               string // fs backend root, default {data}/book
	RemoteFetchTimeout time.Duration
	Minio              MinioConfig
}

// MinioConfig holds the MinIO artifact backend settings.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// CounterConfig selects where book download tallies are kept.
type CounterConfig struct {
	Backend string
	Redis   RedisConfig
}

// RedisConfig holds the Redis counter settings.
type RedisConfig struct {
	Addr      string
	Password  string
	KeyPrefix string
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Port               string        // Server port (default: 8080)
	ReadTimeout        time.Duration // HTTP read timeout (default: 15s)
	WriteTimeout       time.Duration // 0 disables, which file streams and SSE need
	IdleTimeout        time.Duration // HTTP idle timeout (default: 60s)
	CORSAllowedOrigins []string
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	// PASETO v4 symmetric key shared with the identity service (32 bytes)
	AccessTokenKey      []byte
	AccessTokenDuration time.Duration
}

// RateLimitConfig holds the per-user API limiter settings.
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// SweepConfig controls the stale download sweep.
type SweepConfig struct {
	Enabled    bool
	Schedule   string
	StaleAfter time.Duration
	BatchSize  int // records examined per run; 0 means all
}

// Load builds the configuration from args (without the program name) with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func Load(args []string) (*Config, error) {
	fset := flag.NewFlagSet("booksy", flag.ContinueOnError)
	fset.SetOutput(io.Discard)

	env := fset.String("env", "", "Environment (development, staging, production)")
	logLevel := fset.String("log-level", "", "Log level (debug, info, warn, error)")
	dataPath := fset.String("data-path", "", "Base path for databases and the auth key")
	storeDriver := fset.String("store-driver", "", "Document store (sqlite, badger)")
	artifactBackend := fset.String("artifact-backend", "", "Artifact storage (fs, minio)")
	artifactRoot := fset.String("artifact-root", "", "Local artifact root (default: {data}/book)")
	remoteFetchTimeout := fset.String("remote-fetch-timeout", "", "Timeout for remote artifact fetches (default: 30s)")
	counterBackend := fset.String("counter-backend", "", "Download counter (store, redis)")
	serverPort := fset.String("port", "", "Server port (default: 8080)")
	envFile := fset.String("env-file", ".env", "Path to .env file")

	if err := fset.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	// Variables already in the environment win over the file.
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", *envFile, err)
	}

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Data: DataConfig{
			Path: getConfigValue(*dataPath, "DATA_PATH", ""),
		},
		Store: StoreConfig{
			Driver: getConfigValue(*storeDriver, "STORE_DRIVER", StoreDriverSQLite),
		},
		Artifacts: ArtifactConfig{
			Backend: getConfigValue(*artifactBackend, "ARTIFACT_BACKEND", ArtifactBackendFS),
			Root:    getConfigValue(*artifactRoot, "ARTIFACT_ROOT", ""),
			Minio: MinioConfig{
				Endpoint:  getConfigValue("", "MINIO_ENDPOINT", ""),
				AccessKey: getConfigValue("", "MINIO_ACCESS_KEY", ""),
				SecretKey: getConfigValue("", "MINIO_SECRET_KEY", ""),
				Bucket:    getConfigValue("", "MINIO_BUCKET", "books"),
				UseSSL:    getBoolConfigValue("", "MINIO_USE_SSL", false),
			},
		},
		Counter: CounterConfig{
			Backend: getConfigValue(*counterBackend, "COUNTER_BACKEND", CounterBackendStore),
			Redis: RedisConfig{
				Addr:      getConfigValue("", "REDIS_ADDR", ""),
				Password:  getConfigValue("", "REDIS_PASSWORD", ""),
				KeyPrefix: getConfigValue("", "REDIS_KEY_PREFIX", "booksy"),
			},
		},
		Server: ServerConfig{
			Port:               getConfigValue(*serverPort, "SERVER_PORT", "8080"),
			CORSAllowedOrigins: splitList(getConfigValue("", "CORS_ALLOWED_ORIGINS", "*")),
		},
		Sweep: SweepConfig{
			Enabled:   getBoolConfigValue("", "SWEEP_ENABLED", true),
			Schedule:  getConfigValue("", "SWEEP_SCHEDULE", "*/15 * * * *"),
			BatchSize: getIntConfigValue("", "SWEEP_BATCH_SIZE", 500),
		},
	}

	durations := []struct {
		flagValue, envKey, def string
		dst                    *time.Duration
	}{
		{*remoteFetchTimeout, "REMOTE_FETCH_TIMEOUT", "30s", &cfg.Artifacts.RemoteFetchTimeout},
		{"", "SERVER_READ_TIMEOUT", "15s", &cfg.Server.ReadTimeout},
		{"", "SERVER_WRITE_TIMEOUT", "0s", &cfg.Server.WriteTimeout},
		{"", "SERVER_IDLE_TIMEOUT", "60s", &cfg.Server.IdleTimeout},
		{"", "ACCESS_TOKEN_DURATION", "15m", &cfg.Auth.AccessTokenDuration},
		{"", "SWEEP_STALE_AFTER", "24h", &cfg.Sweep.StaleAfter},
	}
	for _, d := range durations {
		raw := getConfigValue(d.flagValue, d.envKey, d.def)
		v, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", d.envKey, raw, err)
		}
		*d.dst = v
	}

	rps := getConfigValue("", "RATE_LIMIT_RPS", "10")
	var err error
	if cfg.RateLimit.RPS, err = strconv.ParseFloat(rps, 64); err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_RPS %q: %w", rps, err)
	}
	cfg.RateLimit.Burst = getIntConfigValue("", "RATE_LIMIT_BURST", 40)

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
//
//nolint:gocyclo // One branch per setting.
func (c *Config) Validate() error {
	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %q (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Data.Path == "" {
		return errors.New("data path cannot be empty after expansion")
	}

	switch c.Store.Driver {
	case StoreDriverSQLite, StoreDriverBadger:
	default:
		return fmt.Errorf("invalid store driver: %s (must be sqlite or badger)", c.Store.Driver)
	}

	switch c.Artifacts.Backend {
	case ArtifactBackendFS:
		if c.Artifacts.Root == "" {
			return errors.New("artifact root cannot be empty for the fs backend")
		}
	case ArtifactBackendMinio:
		if c.Artifacts.Minio.Endpoint == "" {
			return errors.New("MINIO_ENDPOINT is required for the minio artifact backend")
		}
		if c.Artifacts.Minio.Bucket == "" {
			return errors.New("MINIO_BUCKET cannot be empty")
		}
	default:
		return fmt.Errorf("invalid artifact backend: %s (must be fs or minio)", c.Artifacts.Backend)
	}

	switch c.Counter.Backend {
	case CounterBackendStore:
	case CounterBackendRedis:
		if c.Counter.Redis.Addr == "" {
			return errors.New("REDIS_ADDR is required for the redis counter backend")
		}
	default:
		return fmt.Errorf("invalid counter backend: %s (must be store or redis)", c.Counter.Backend)
	}

	if c.Artifacts.RemoteFetchTimeout <= 0 {
		return errors.New("remote fetch timeout must be positive")
	}

	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0 {
		return errors.New("rate limit rps and burst must be positive")
	}

	if c.Sweep.BatchSize < 0 {
		return fmt.Errorf("invalid sweep batch size: %d", c.Sweep.BatchSize)
	}
	if c.Sweep.StaleAfter <= 0 {
		return errors.New("sweep stale window must be positive")
	}
	if c.Sweep.Enabled {
		if _, err := cron.ParseStandard(c.Sweep.Schedule); err != nil {
			return fmt.Errorf("invalid sweep schedule %q: %w", c.Sweep.Schedule, err)
		}
	}

	// Auth key is set by auth.LoadOrGenerateKey in main.

	return nil
}

// IsDevelopment reports whether the server runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandPaths resolves the data path (default ~/Booksy/data) and the artifact
// root (default {data}/book).
func (c *Config) expandPaths() error {
	defaultData := ""
	if c.Data.Path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		defaultData = filepath.Join(homeDir, "Booksy", "data")
	}

	data, err := expandPath(c.Data.Path, defaultData)
	if err != nil {
		return fmt.Errorf("invalid data path: %w", err)
	}
	c.Data.Path = data

	root, err := expandPath(c.Artifacts.Root, filepath.Join(c.Data.Path, "book"))
	if err != nil {
		return fmt.Errorf("invalid artifact root: %w", err)
	}
	c.Artifacts.Root = root
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getBoolConfigValue returns a bool from flag, env var, or default.
// Accepts: "true", "1", "yes" (case-insensitive) as true; anything else is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(strValue)
	if err != nil {
		return defaultValue
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
