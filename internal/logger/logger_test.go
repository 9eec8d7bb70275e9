package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/variantlab/decider/internal/config"
)

func TestNewWithWriter(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.AppConfig
		logFn     func(log *slog.Logger)
		wantInLog []string
		wantEmpty bool
	}{
		{
			name: "Should emit JSON with identity attributes",
			cfg: config.AppConfig{
				Name:        "deciderd",
				Version:     "1.2.3",
				Environment: "production",
				LogLevel:    "info",
				LogFormat:   "json",
			},
			logFn:     func(log *slog.Logger) { log.Info("hello") },
			wantInLog: []string{`"service":"deciderd"`, `"version":"1.2.3"`, `"env":"production"`, `"msg":"hello"`},
		},
		{
			name: "Should emit text format when configured",
			cfg: config.AppConfig{
				Name:        "deciderd",
				Environment: "development",
				LogLevel:    "info",
				LogFormat:   "text",
			},
			logFn:     func(log *slog.Logger) { log.Info("hello") },
			wantInLog: []string{"msg=hello", "service=deciderd"},
		},
		{
			name: "Should suppress records below the configured level",
			cfg: config.AppConfig{
				Name:        "deciderd",
				Environment: "production",
				LogLevel:    "warn",
				LogFormat:   "json",
			},
			logFn:     func(log *slog.Logger) { log.Info("too quiet") },
			wantEmpty: true,
		},
		{
			name: "Should treat an unknown level as info",
			cfg: config.AppConfig{
				Name:        "deciderd",
				Environment: "production",
				LogLevel:    "super-critical",
				LogFormat:   "json",
			},
			logFn:     func(log *slog.Logger) { log.Info("visible") },
			wantInLog: []string{`"msg":"visible"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := NewWithWriter(&tt.cfg, &buf)

			tt.logFn(log)

			if tt.wantEmpty {
				assert.Empty(t, buf.String())
				return
			}
			for _, want := range tt.wantInLog {
				assert.Contains(t, buf.String(), want)
			}
		})
	}
}

func TestNewWithWriter_SourceOnlyOutsideProduction(t *testing.T) {
	logLine := func(env string) map[string]any {
		var buf bytes.Buffer
		log := NewWithWriter(&config.AppConfig{
			Name:        "deciderd",
			Environment: env,
			LogLevel:    "info",
			LogFormat:   "json",
		}, &buf)
		log.Info("probe")

		var record map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
		return record
	}

	assert.Contains(t, logLine("development"), "source")
	assert.NotContains(t, logLine("production"), "source")
}

func TestNew_PanicsOnNilConfig(t *testing.T) {
	assert.Panics(t, func() {
		NewWithWriter(nil, &bytes.Buffer{})
	})
}
