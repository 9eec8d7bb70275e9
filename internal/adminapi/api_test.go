package adminapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/variantlab/decider/internal/decider"
	"github.com/variantlab/decider/internal/engine"
	"github.com/variantlab/decider/internal/testsupport"
)

func doRequest(t *testing.T, api *API, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	api.Router.ServeHTTP(rec, req)
	return rec
}

func TestNewAPI_PanicsOnNilSource(t *testing.T) {
	assert.Panics(t, func() { NewAPI(nil, nil) })
}

func TestHealthCheck(t *testing.T) {
	t.Run("Should report ok when a snapshot is available", func(t *testing.T) {
		api := NewAPI(testsupport.NewFakeEngine(), nil)

		rec := doRequest(t, api, http.MethodGet, "/health")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	})

	t.Run("Should report unavailable when no snapshot loaded yet", func(t *testing.T) {
		fake := testsupport.NewFakeEngine()
		fake.Err = engine.ErrUnavailable
		api := NewAPI(fake, nil)

		rec := doRequest(t, api, http.MethodGet, "/health")

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"unavailable"`)
	})
}

func TestGetExperiment(t *testing.T) {
	fake := testsupport.NewFakeEngine()
	fake.Experiments["exp_checkout"] = engine.Experiment{
		ID:        42,
		Name:      "exp_checkout",
		Version:   "3",
		BucketVal: "user_id",
		StartTs:   100,
		StopTs:    200,
		Owner:     "growth",
		EmitEvent: true,
	}
	api := NewAPI(fake, nil)

	t.Run("Should return the experiment metadata", func(t *testing.T) {
		rec := doRequest(t, api, http.MethodGet, "/api/v1/experiments/exp_checkout")

		require.Equal(t, http.StatusOK, rec.Code)

		var got ExperimentResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, int64(42), got.ID)
		assert.Equal(t, "exp_checkout", got.Name)
		assert.Equal(t, "user_id", got.BucketVal)
		assert.Equal(t, "growth", got.Owner)
		assert.True(t, got.EmitEvent)
	})

	t.Run("Should return 404 for an unknown experiment", func(t *testing.T) {
		rec := doRequest(t, api, http.MethodGet, "/api/v1/experiments/exp_ghost")

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "ERR_NOT_FOUND")
	})

	t.Run("Should return 503 while no snapshot is loaded", func(t *testing.T) {
		broken := testsupport.NewFakeEngine()
		broken.Err = engine.ErrUnavailable

		rec := doRequest(t, NewAPI(broken, nil), http.MethodGet, "/api/v1/experiments/exp_checkout")

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "ERR_UNAVAILABLE")
	})
}

func TestListConfigs(t *testing.T) {
	t.Run("Should list configs sorted by name", func(t *testing.T) {
		fake := testsupport.NewFakeEngine()
		fake.Values["dc_zeta"] = engine.DynamicValue{Type: engine.TypeInteger, Value: int64(7)}
		fake.Values["dc_alpha"] = engine.DynamicValue{Type: engine.TypeBoolean, Value: true}

		rec := doRequest(t, NewAPI(fake, nil), http.MethodGet, "/api/v1/configs")

		require.Equal(t, http.StatusOK, rec.Code)

		var got []ConfigValueResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		require.Len(t, got, 2)
		assert.Equal(t, "dc_alpha", got[0].Name)
		assert.Equal(t, "dc_zeta", got[1].Name)
		assert.Equal(t, engine.TypeBoolean, got[0].Type)
	})

	t.Run("Should return an empty list rather than null", func(t *testing.T) {
		rec := doRequest(t, NewAPI(testsupport.NewFakeEngine(), nil), http.MethodGet, "/api/v1/configs")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[]`, rec.Body.String())
	})

	t.Run("Should return 503 when the snapshot cannot be read", func(t *testing.T) {
		fake := testsupport.NewFakeEngine()
		fake.Err = errors.New("snapshot corrupt")

		rec := doRequest(t, NewAPI(fake, nil), http.MethodGet, "/api/v1/configs")

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestRequestLogger_ScopesRequestID(t *testing.T) {
	var logBuffer bytes.Buffer
	log := slog.New(slog.NewTextHandler(&logBuffer, nil))

	t.Run("Should log completed requests with a request id", func(t *testing.T) {
		logBuffer.Reset()
		api := NewAPI(testsupport.NewFakeEngine(), log)

		doRequest(t, api, http.MethodGet, "/health")

		out := logBuffer.String()
		assert.Contains(t, out, "HTTP request completed")
		assert.Contains(t, out, "request_id=")
	})

	t.Run("Should hand handlers the request-scoped logger", func(t *testing.T) {
		logBuffer.Reset()
		fake := testsupport.NewFakeEngine()
		fake.Err = errors.New("corrupt snapshot")
		api := NewAPI(decider.StaticSource{Eng: fake}, log)

		rec := doRequest(t, api, http.MethodGet, "/api/v1/experiments/exp_checkout")

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		for _, line := range strings.Split(strings.TrimSpace(logBuffer.String()), "\n") {
			if strings.Contains(line, "failed to read experiment") {
				assert.Contains(t, line, "request_id=")
				return
			}
		}
		t.Fatal("handler error line not found in log output")
	})
}
