package adminapi

import (
	"log/slog"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/variantlab/decider/internal/engine"
	"github.com/variantlab/decider/internal/logger"
)

// handleGetExperiment processes GET /api/v1/experiments/{name}.
// It returns the metadata of the named experiment from the snapshot
// currently in service.
func (a *API) handleGetExperiment(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	name := chi.URLParam(r, "name")

	eng, err := a.source.Engine()
	if err != nil {
		renderUnavailable(w, r, err)
		return
	}

	exp, err := eng.GetExperiment(name)
	if err != nil {
		if engine.IsNotFound(err) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, ErrorResponse{
				Code:    "ERR_NOT_FOUND",
				Message: "Experiment not found: " + name,
			})
			return
		}
		log.Error("failed to read experiment",
			slog.String("experiment", name),
			slog.String("error", err.Error()),
		)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{
			Code:    "ERR_INTERNAL",
			Message: "Failed to read experiment",
		})
		return
	}

	render.JSON(w, r, ExperimentResponse{
		ID:        exp.ID,
		Name:      exp.Name,
		Version:   exp.Version,
		BucketVal: exp.BucketVal,
		StartTs:   exp.StartTs,
		StopTs:    exp.StopTs,
		Owner:     exp.Owner,
		EmitEvent: exp.EmitEvent,
	})
}

// handleListConfigs processes GET /api/v1/configs.
// It enumerates every dynamic configuration in the snapshot, sorted by
// name so repeated calls diff cleanly.
func (a *API) handleListConfigs(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	eng, err := a.source.Engine()
	if err != nil {
		renderUnavailable(w, r, err)
		return
	}

	values, err := eng.AllValues(map[string]any{})
	if err != nil {
		log.Error("failed to enumerate dynamic configs", slog.String("error", err.Error()))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{
			Code:    "ERR_INTERNAL",
			Message: "Failed to enumerate dynamic configs",
		})
		return
	}

	out := make([]ConfigValueResponse, 0, len(values))
	for name, dv := range values {
		out = append(out, ConfigValueResponse{
			Name:  name,
			Type:  dv.Type,
			Value: dv.Value,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	render.JSON(w, r, out)
}

func renderUnavailable(w http.ResponseWriter, r *http.Request, err error) {
	render.Status(r, http.StatusServiceUnavailable)
	render.JSON(w, r, ErrorResponse{
		Code:    "ERR_UNAVAILABLE",
		Message: "No configuration snapshot available: " + err.Error(),
	})
}
