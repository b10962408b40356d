package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr string
	// Env development / release，决定日志格式和 gin 模式
	Env string

	Inference InferenceConfig

	MaxUploadBytes int64
	ReportSchedule string
	EventBuffer    int
}

type InferenceConfig struct {
	URL     string
	Model   string
	Timeout time.Duration
}

// Load reads an optional .env file, then the environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Addr: normalizeAddr(getEnv("REMOVEBG_ADDR", ":8080")),
		Env:  getEnv("APP_ENV", "development"),
		Inference: InferenceConfig{
			URL:     getEnv("INFERENCE_URL", "http://127.0.0.1:8000"),
			Model:   getEnv("MODEL_NAME", "briaai/RMBG-1.4"),
			Timeout: getEnvAsDuration("INFERENCE_TIMEOUT", 2*time.Minute),
		},
		MaxUploadBytes: getEnvAsInt64("MAX_UPLOAD_BYTES", 32<<20),
		ReportSchedule: getEnv("REPORT_SCHEDULE", "@every 1m"),
		EventBuffer:    int(getEnvAsInt64("EVENT_BUFFER", 64)),
	}
}

func (c *Config) IsRelease() bool {
	return strings.EqualFold(c.Env, "release") || strings.EqualFold(c.Env, "production")
}

func normalizeAddr(addr string) string {
	if strings.Contains(addr, ":") {
		return addr
	}
	return ":" + addr
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil && v > 0 {
			return v
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}
