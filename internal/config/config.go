package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort              string
	ServerReadHeaderTimeout time.Duration
	ServerWriteTimeout      time.Duration
	ServerIdleTimeout       time.Duration
	RequestTimeout          time.Duration
	DatabaseURL             string
	DBMaxConns              int32
	DBMinConns              int32
	CORSOrigins             []string
	RateLimitRPM            int

	// Engine settings
	SweepSchedule     string
	MaxConcurrentRuns int
	RunTimeout        time.Duration

	// Export sink settings
	ExportSink  string // "fs" or "s3"
	ExportRoot  string
	S3Bucket    string
	S3Region    string
	S3Prefix    string
	S3Endpoint  string
	S3PathStyle bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:              getEnv("SERVER_PORT", "8080"),
		ServerReadHeaderTimeout: getDuration("SERVER_READ_HEADER_TIMEOUT", 10*time.Second),
		ServerWriteTimeout:      getDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		ServerIdleTimeout:       getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		RequestTimeout:          getDuration("REQUEST_TIMEOUT", 30*time.Second),
		DatabaseURL:             strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:              int32(getInt("DB_MAX_CONNS", 10)),
		DBMinConns:              int32(getInt("DB_MIN_CONNS", 2)),
		CORSOrigins:             splitCSV(getEnv("CORS_ORIGINS", "*")),
		RateLimitRPM:            getInt("RATE_LIMIT_RPM", 300),
		SweepSchedule:           getEnv("SWEEP_SCHEDULE", "0 3 * * *"),
		MaxConcurrentRuns:       getInt("MAX_CONCURRENT_RUNS", 4),
		RunTimeout:              getDuration("RUN_TIMEOUT", 30*time.Minute),
		ExportSink:              getEnv("EXPORT_SINK", "fs"),
		ExportRoot:              getEnv("EXPORT_ROOT", "./state/exports"),
		S3Bucket:                strings.TrimSpace(os.Getenv("S3_BUCKET")),
		S3Region:                strings.TrimSpace(os.Getenv("S3_REGION")),
		S3Prefix:                getEnv("S3_PREFIX", "retention"),
		S3Endpoint:              strings.TrimSpace(os.Getenv("S3_ENDPOINT")),
		S3PathStyle:             getBool("S3_PATH_STYLE", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.ServerPort == "" {
		return fmt.Errorf("SERVER_PORT cannot be empty")
	}

	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	if c.MaxConcurrentRuns <= 0 {
		return fmt.Errorf("MAX_CONCURRENT_RUNS must be positive")
	}

	if c.RunTimeout <= 0 {
		return fmt.Errorf("RUN_TIMEOUT must be positive")
	}

	switch c.ExportSink {
	case "fs":
		if strings.TrimSpace(c.ExportRoot) == "" {
			return fmt.Errorf("EXPORT_ROOT cannot be empty when EXPORT_SINK=fs")
		}
	case "s3":
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when EXPORT_SINK=s3")
		}
	default:
		return fmt.Errorf("EXPORT_SINK must be one of: fs|s3")
	}

	return nil
}

func getEnv(key string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	return v
}

func getInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return v
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}

	return out
}
