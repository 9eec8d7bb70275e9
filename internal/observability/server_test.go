package observability

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/variantlab/decider/internal/config"
)

// stubChecker is a scriptable readiness dependency.
type stubChecker struct {
	name string
	err  error
}

func (s stubChecker) Name() string                  { return s.name }
func (s stubChecker) Check(_ context.Context) error { return s.err }

func newTestServer(checkers ...Checker) *Server {
	log := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	return NewServer(log, &config.ObservabilityConfig{
		Port:          "0",
		LivenessPath:  "/health/live",
		ReadinessPath: "/health/ready",
		MetricsPath:   "/metrics",
	}, checkers...)
}

func get(s *Server, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestServer_Liveness(t *testing.T) {
	// Liveness ignores dependencies: a broken upstream must not restart
	// the pod.
	s := newTestServer(stubChecker{name: "upstream", err: errors.New("down")})

	rec := get(s, "/health/live")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestServer_Readiness(t *testing.T) {
	tests := []struct {
		name     string
		checkers []Checker
		wantCode int
		wantBody string
	}{
		{
			name:     "Should be ready with no checkers",
			wantCode: http.StatusOK,
			wantBody: "ready",
		},
		{
			name:     "Should be ready when every checker passes",
			checkers: []Checker{stubChecker{name: "a"}, stubChecker{name: "b"}},
			wantCode: http.StatusOK,
			wantBody: "ready",
		},
		{
			name: "Should fail on the first broken dependency",
			checkers: []Checker{
				stubChecker{name: "a"},
				stubChecker{name: "upstream", err: errors.New("connection refused")},
			},
			wantCode: http.StatusServiceUnavailable,
			wantBody: "upstream: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(tt.checkers...)

			rec := get(s, "/health/ready")

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestServer_Metrics(t *testing.T) {
	s := newTestServer()

	rec := get(s, "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestNewServer_PanicsOnNilConfig(t *testing.T) {
	assert.Panics(t, func() {
		NewServer(slog.Default(), nil)
	})
}
