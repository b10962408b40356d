package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"REMOVEBG_ADDR", "APP_ENV", "INFERENCE_URL", "MODEL_NAME",
		"INFERENCE_TIMEOUT", "MAX_UPLOAD_BYTES", "REPORT_SCHEDULE", "EVENT_BUFFER"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "development", cfg.Env)
	assert.False(t, cfg.IsRelease())
	assert.Equal(t, "http://127.0.0.1:8000", cfg.Inference.URL)
	assert.Equal(t, "briaai/RMBG-1.4", cfg.Inference.Model)
	assert.Equal(t, 2*time.Minute, cfg.Inference.Timeout)
	assert.Equal(t, int64(32<<20), cfg.MaxUploadBytes)
	assert.Equal(t, "@every 1m", cfg.ReportSchedule)
	assert.Equal(t, 64, cfg.EventBuffer)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("REMOVEBG_ADDR", "9090")
	t.Setenv("APP_ENV", "release")
	t.Setenv("INFERENCE_URL", "http://triton:8000")
	t.Setenv("INFERENCE_TIMEOUT", "30s")
	t.Setenv("MAX_UPLOAD_BYTES", "1024")
	t.Setenv("EVENT_BUFFER", "not-a-number")

	cfg := Load()
	assert.Equal(t, ":9090", cfg.Addr)
	assert.True(t, cfg.IsRelease())
	assert.Equal(t, "http://triton:8000", cfg.Inference.URL)
	assert.Equal(t, 30*time.Second, cfg.Inference.Timeout)
	assert.Equal(t, int64(1024), cfg.MaxUploadBytes)
	assert.Equal(t, 64, cfg.EventBuffer)
}
