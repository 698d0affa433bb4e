package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// App holds the runtime configuration loaded from environment variables.
type App struct {
	Env      string
	HTTPPort string

	DatabaseDriver string // memory, pgx or sqlite3
	DatabaseURL    string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	NATSURL        string
	QueueBackend   string // memory, redis or nats
	QueueKey       string

	ReconnectDelay       time.Duration
	ConnectTimeout       time.Duration
	AutoReconnect        bool
	ScannerDevices       []string
	BannerDuration       time.Duration
	DeviceBannerDuration time.Duration

	PlaceholderPercentage int
	SeedFile              string
	ExportDir             string

	LogLevel        string
	LogDir          string
	RateLimitPerMin int
	CORSOrigins     []string

	// Warnings lists variables that were set but unparsable and fell back
	// to their defaults.
	Warnings []string
}

// Load returns application config populated from environment variables with sensible defaults.
func Load() App {
	var w warnings
	cfg := App{
		Env:      getEnv("APP_ENV", "dev"),
		HTTPPort: getEnv("HTTP_PORT", "8081"),

		DatabaseDriver: getEnv("DATABASE_DRIVER", "memory"),
		DatabaseURL:    getEnv("DATABASE_URL", "data/labattend.db"),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        w.intEnv("REDIS_DB", 0),
		NATSURL:        getEnv("NATS_URL", "nats://localhost:4222"),
		QueueBackend:   getEnv("QUEUE_BACKEND", "memory"),
		QueueKey:       getEnv("QUEUE_KEY", ""),

		ReconnectDelay:       w.durationEnv("RECONNECT_DELAY", 2*time.Second),
		ConnectTimeout:       w.durationEnv("CONNECT_TIMEOUT", 10*time.Second),
		AutoReconnect:        w.boolEnv("AUTO_RECONNECT", true),
		ScannerDevices:       listEnv("SCANNER_DEVICES"),
		BannerDuration:       w.durationEnv("BANNER_DURATION", 3*time.Second),
		DeviceBannerDuration: w.durationEnv("DEVICE_BANNER_DURATION", 3*time.Second),

		PlaceholderPercentage: w.intEnv("PLACEHOLDER_PERCENTAGE", 85),
		SeedFile:              getEnv("SEED_FILE", ""),
		ExportDir:             getEnv("EXPORT_DIR", "exports"),

		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogDir:          getEnv("LOG_DIR", ""),
		RateLimitPerMin: w.intEnv("RATE_LIMIT_PER_MIN", 600),
		CORSOrigins:     listEnv("CORS_ORIGINS"),
	}
	cfg.Warnings = w
	return cfg
}

// LoadDotEnv reads KEY=value files into the environment without overriding
// variables that are already set. Missing files are skipped; it returns the
// files that were loaded.
func LoadDotEnv(files ...string) ([]string, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var loaded []string
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return loaded, fmt.Errorf("load %s: %w", f, err)
		}
		loaded = append(loaded, f)
	}
	return loaded, nil
}

// Production reports whether the app runs in a production environment.
func (a App) Production() bool {
	return a.Env == "production" || a.Env == "prod"
}

// Validate rejects combinations the services cannot start with.
func (a App) Validate() error {
	switch a.DatabaseDriver {
	case "memory", "pgx", "sqlite3":
	default:
		return fmt.Errorf("DATABASE_DRIVER %q: want memory, pgx or sqlite3", a.DatabaseDriver)
	}
	switch a.QueueBackend {
	case "memory", "redis", "nats":
	default:
		return fmt.Errorf("QUEUE_BACKEND %q: want memory, redis or nats", a.QueueBackend)
	}
	if a.PlaceholderPercentage < 1 || a.PlaceholderPercentage > 100 {
		return fmt.Errorf("PLACEHOLDER_PERCENTAGE %d out of range", a.PlaceholderPercentage)
	}
	if a.ReconnectDelay <= 0 {
		return fmt.Errorf("RECONNECT_DELAY must be positive")
	}
	return nil
}

type warnings []string

func (w *warnings) add(format string, args ...any) {
	*w = append(*w, fmt.Sprintf(format, args...))
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func listEnv(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (w *warnings) durationEnv(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			w.add("invalid duration for %s: %v, using fallback %s", key, err, fallback)
			return fallback
		}
		return d
	}
	return fallback
}

func (w *warnings) boolEnv(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err != nil {
			w.add("invalid bool for %s, using fallback %v", key, fallback)
			return fallback
		}
		return b
	}
	return fallback
}

func (w *warnings) intEnv(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			w.add("invalid int for %s, using fallback %d", key, fallback)
			return fallback
		}
		return parsed
	}
	return fallback
}
