package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents runtime configuration derived from environment variables.
type Config struct {
	Server   ServerConfig
	Logging  LoggingConfig
	Database DatabaseConfig
	Strava   StravaConfig
	Sync     SyncConfig
	Auth     AuthConfig
	Kafka    KafkaConfig
}

// ServerConfig holds HTTP server runtime parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// LoggingConfig represents structured logging configuration.
type LoggingConfig struct {
	Level  slog.Level
	Format string
}

// DatabaseConfig selects the persistence backend. An empty URL means in-memory.
// URL comes from DATABASE_URL or is assembled for a Cloud SQL socket.
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
}

// StravaConfig holds the OAuth application and API client settings.
type StravaConfig struct {
	ClientID         string
	ClientSecret     string
	RedirectURL      string
	AuthURL          string
	TokenURL         string
	APIBaseURL       string
	PageSize         int
	RequestTimeout   time.Duration
	RateLimitRetries int
}

// SyncConfig tunes the sweep scheduler and the on-demand worker pool.
type SyncConfig struct {
	Interval         time.Duration
	SweepConcurrency int
	Workers          int
	QueueSize        int
	RunOnStart       bool
}

// AuthConfig holds session token parameters.
type AuthConfig struct {
	JWTSecret     string
	TokenDuration time.Duration
	FrontendURL   string
}

// KafkaConfig enables sync event publishing when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

const (
	defaultPort            = "3001"
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 15 * time.Second

	defaultLogFormat = "json"

	defaultMaxConnections     = 20
	defaultMaxIdleConnections = 5

	defaultStravaAuthURL    = "https://www.strava.com/oauth/authorize"
	defaultStravaTokenURL   = "https://www.strava.com/oauth/token"
	defaultStravaAPIBaseURL = "https://www.strava.com/api/v3"
	defaultPageSize         = 100
	defaultRequestTimeout   = 30 * time.Second
	defaultRateLimitRetries = 3
	defaultSyncInterval     = 6 * time.Hour
	defaultSweepConcurrency = 4
	defaultWorkers          = 2
	defaultQueueSize        = 64
	defaultTokenDuration    = 7 * 24 * time.Hour
	defaultFrontendURL      = "http://localhost:5173"
	defaultJWTSecret        = "change-this-secret"
	defaultKafkaTopic       = "activity_sync_events"
	maxProviderPageSize     = 200
)

// LoadDotEnv loads variables from the given files without overriding ones already set.
// Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// Load reads configuration from environment variables, applying defaults when
// values are not provided or invalid.
func Load() (Config, error) {
	port := getEnv("PORT", "")
	if port == "" {
		port = getEnv("SERVER_PORT", defaultPort)
	}

	dbURL, err := databaseURL()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Server: ServerConfig{
			Port:            port,
			ReadTimeout:     defaultReadTimeout,
			WriteTimeout:    defaultWriteTimeout,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Logging: LoggingConfig{
			Level:  slog.LevelInfo,
			Format: defaultLogFormat,
		},
		Database: DatabaseConfig{
			URL:                dbURL,
			MaxConnections:     defaultMaxConnections,
			MaxIdleConnections: defaultMaxIdleConnections,
		},
		Strava: StravaConfig{
			ClientID:         getEnv("STRAVA_CLIENT_ID", ""),
			ClientSecret:     getEnv("STRAVA_CLIENT_SECRET", ""),
			RedirectURL:      getEnv("STRAVA_CALLBACK_URL", "http://localhost:3001/auth/strava/callback"),
			AuthURL:          getEnv("STRAVA_AUTH_URL", defaultStravaAuthURL),
			TokenURL:         getEnv("STRAVA_TOKEN_URL", defaultStravaTokenURL),
			APIBaseURL:       strings.TrimRight(getEnv("STRAVA_API_BASE_URL", defaultStravaAPIBaseURL), "/"),
			PageSize:         defaultPageSize,
			RequestTimeout:   defaultRequestTimeout,
			RateLimitRetries: defaultRateLimitRetries,
		},
		Sync: SyncConfig{
			Interval:         defaultSyncInterval,
			SweepConcurrency: defaultSweepConcurrency,
			Workers:          defaultWorkers,
			QueueSize:        defaultQueueSize,
			RunOnStart:       false,
		},
		Auth: AuthConfig{
			JWTSecret:     getEnv("JWT_SECRET", defaultJWTSecret),
			TokenDuration: defaultTokenDuration,
			FrontendURL:   strings.TrimRight(getEnv("FRONTEND_URL", defaultFrontendURL), "/"),
		},
		Kafka: KafkaConfig{
			Brokers: splitAndTrim(getEnv("KAFKA_BROKERS", "")),
			Topic:   getEnv("KAFKA_SYNC_TOPIC", defaultKafkaTopic),
		},
	}

	durations := []struct {
		key    string
		target *time.Duration
	}{
		{"SERVER_READ_TIMEOUT_SECONDS", &cfg.Server.ReadTimeout},
		{"SERVER_WRITE_TIMEOUT_SECONDS", &cfg.Server.WriteTimeout},
		{"SERVER_SHUTDOWN_TIMEOUT_SECONDS", &cfg.Server.ShutdownTimeout},
		{"STRAVA_REQUEST_TIMEOUT_SECONDS", &cfg.Strava.RequestTimeout},
	}
	for _, d := range durations {
		if v := os.Getenv(d.key); v != "" {
			parsed, err := parseSeconds(v)
			if err != nil {
				return Config{}, fmt.Errorf("invalid %s: %w", d.key, err)
			}
			*d.target = parsed
		}
	}

	if v := os.Getenv("SYNC_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("invalid SYNC_INTERVAL: must be a positive duration such as 6h")
		}
		cfg.Sync.Interval = d
	}

	if v := os.Getenv("AUTH_TOKEN_DURATION"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("invalid AUTH_TOKEN_DURATION: must be a positive duration")
		}
		cfg.Auth.TokenDuration = d
	}

	ints := []struct {
		key    string
		min    int
		target *int
	}{
		{"DATABASE_MAX_CONNECTIONS", 1, &cfg.Database.MaxConnections},
		{"DATABASE_MAX_IDLE_CONNECTIONS", 0, &cfg.Database.MaxIdleConnections},
		{"STRAVA_PAGE_SIZE", 1, &cfg.Strava.PageSize},
		{"STRAVA_RATE_LIMIT_RETRIES", 0, &cfg.Strava.RateLimitRetries},
		{"SYNC_SWEEP_CONCURRENCY", 1, &cfg.Sync.SweepConcurrency},
		{"SYNC_WORKERS", 1, &cfg.Sync.Workers},
		{"SYNC_QUEUE_SIZE", 1, &cfg.Sync.QueueSize},
	}
	for _, i := range ints {
		if v := os.Getenv(i.key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < i.min {
				return Config{}, fmt.Errorf("invalid %s: must be an integer >= %d", i.key, i.min)
			}
			*i.target = n
		}
	}
	if cfg.Strava.PageSize > maxProviderPageSize {
		return Config{}, fmt.Errorf("invalid STRAVA_PAGE_SIZE: provider allows at most %d", maxProviderPageSize)
	}

	if v := os.Getenv("SYNC_RUN_ON_START"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SYNC_RUN_ON_START: %w", err)
		}
		cfg.Sync.RunOnStart = b
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		cfg.Logging.Level = level
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		switch v {
		case "json", "text":
			cfg.Logging.Format = v
		default:
			return Config{}, fmt.Errorf("invalid LOG_FORMAT: must be 'json' or 'text'")
		}
	}

	return cfg, nil
}

// Validate checks settings required to talk to the provider.
func (c StravaConfig) Validate() error {
	if c.ClientID == "" || c.ClientSecret == "" {
		return errors.New("STRAVA_CLIENT_ID and STRAVA_CLIENT_SECRET are required")
	}
	return nil
}

func parseSeconds(raw string) (time.Duration, error) {
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0, fmt.Errorf("must be a non-negative integer")
	}
	return time.Duration(seconds) * time.Second, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch raw {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("must be one of debug, info, warn, error")
	}
}
