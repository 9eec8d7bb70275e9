// Package adminapi implements the read-only REST API for inspecting the
// experiment configuration a decider sidecar is currently serving.
package adminapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/variantlab/decider/internal/decider"
)

// API holds dependencies and the router for the admin surface.
// It follows the Dependency Injection pattern to facilitate testing.
type API struct {
	// Router is the Chi multiplexer that handles HTTP requests.
	Router *chi.Mux

	// source provides the engine snapshot currently in service.
	// We use the interface type to allow for mocking in unit tests.
	source decider.EngineSource

	// log is the base logger; RequestLogger scopes it per request.
	log *slog.Logger
}

// NewAPI creates a new admin API instance.
// Panics if source is nil, since every endpoint reads through it.
func NewAPI(source decider.EngineSource, log *slog.Logger) *API {
	if source == nil {
		panic("adminapi: engine source cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}

	api := &API{
		Router: chi.NewRouter(),
		source: source,
		log:    log,
	}

	api.configureRoutes()
	return api
}

// configureRoutes registers the global middleware stack and API endpoints.
func (a *API) configureRoutes() {
	a.Router.Use(middleware.RequestID)
	a.Router.Use(middleware.RealIP)
	a.Router.Use(RequestLogger(a.log))
	a.Router.Use(middleware.Recoverer)
	a.Router.Use(render.SetContentType(render.ContentTypeJSON))

	a.Router.Get("/health", a.handleHealthCheck)

	a.Router.Route("/api/v1", func(r chi.Router) {
		r.Get("/experiments/{name}", a.handleGetExperiment)
		r.Get("/configs", a.handleListConfigs)
	})
}

// handleHealthCheck reports whether an engine snapshot is available.
// A sidecar that has never loaded config answers 503 so that dashboards
// can tell "up but empty" from "serving".
func (a *API) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	if _, err := a.source.Engine(); err != nil {
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, HealthResponse{Status: "unavailable", Detail: err.Error()})
		return
	}
	render.JSON(w, r, HealthResponse{Status: "ok"})
}
