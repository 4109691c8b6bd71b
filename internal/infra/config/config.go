package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the engine. Every tunable is supplied
// externally via environment variables; no config file format is defined here.
type AppConfig struct {
	DatabaseURL   string
	TelegramToken string // optional; empty disables the telegram channel

	ProviderBaseURL string
	ProviderTimeout time.Duration

	LogLevel    string
	Environment string
	MetricsAddr string

	PollInterval        time.Duration // default cadence between per-user ticks
	WorkerCount         int           // bound on concurrent user ticks
	PositionBucket      time.Duration // position cache bucket width and TTL
	ExactnessEpsilon    float64       // degrees within which a transit is exact
	AnalysisCacheSize   int
	AlertCeilingPerHour int           // default per-user alert rate ceiling
	DeliveryTimeout     time.Duration // per channel adapter call
	EpisodeGracePeriod  time.Duration // retention of archived episodes
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// godotenv.Load will not override existing env variables; errors are
	// ignored when the file does not exist.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	cfg.ProviderBaseURL = os.Getenv("POSITION_PROVIDER_URL")
	if cfg.ProviderBaseURL == "" {
		return nil, fmt.Errorf("POSITION_PROVIDER_URL is not set")
	}

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")

	cfg.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	cfg.Environment = strings.ToLower(os.Getenv("ENVIRONMENT"))
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")
	if cfg.MetricsAddr == "" {
		cfg.MetricsAddr = ":9090"
	}

	cfg.PollInterval, err = durationEnvSeconds("POLL_INTERVAL_SECONDS", 300*time.Second)
	if err != nil {
		return nil, err
	}

	cfg.ProviderTimeout, err = durationEnvMillis("PROVIDER_TIMEOUT_MS", 200*time.Millisecond)
	if err != nil {
		return nil, err
	}

	cfg.DeliveryTimeout, err = durationEnvMillis("DELIVERY_TIMEOUT_MS", 2000*time.Millisecond)
	if err != nil {
		return nil, err
	}

	cfg.PositionBucket, err = durationEnvSeconds("POSITION_BUCKET_SECONDS", time.Minute)
	if err != nil {
		return nil, err
	}

	cfg.EpisodeGracePeriod, err = durationEnvSeconds("EPISODE_GRACE_PERIOD_SECONDS", 24*time.Hour)
	if err != nil {
		return nil, err
	}

	cfg.WorkerCount, err = intEnv("WORKER_COUNT", 8)
	if err != nil {
		return nil, err
	}

	cfg.AnalysisCacheSize, err = intEnv("ANALYSIS_CACHE_SIZE", 1024)
	if err != nil {
		return nil, err
	}

	cfg.AlertCeilingPerHour, err = intEnv("ALERT_CEILING_PER_HOUR", 10)
	if err != nil {
		return nil, err
	}

	epsilonStr := os.Getenv("EXACTNESS_EPSILON_DEGREES")
	if epsilonStr == "" {
		cfg.ExactnessEpsilon = 0.1
	} else {
		cfg.ExactnessEpsilon, err = strconv.ParseFloat(epsilonStr, 64)
		if err != nil || cfg.ExactnessEpsilon <= 0 {
			return nil, fmt.Errorf("invalid EXACTNESS_EPSILON_DEGREES: %q", epsilonStr)
		}
	}

	return cfg, nil
}

func intEnv(name string, fallback int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return v, nil
}

func durationEnvSeconds(name string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return time.Duration(secs) * time.Second, nil
}

func durationEnvMillis(name string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	ms, err := strconv.Atoi(raw)
	if err != nil || ms <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return time.Duration(ms) * time.Millisecond, nil
}
