package adminapi

// ErrorResponse is the standard error payload for all admin endpoints.
type ErrorResponse struct {
	// Code is a stable machine-readable identifier (e.g. "ERR_NOT_FOUND").
	Code string `json:"code"`

	// Message is a human-readable description of the failure.
	Message string `json:"message"`
}

// HealthResponse reports whether the sidecar is serving a config snapshot.
type HealthResponse struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// ExperimentResponse exposes the metadata of a single experiment.
type ExperimentResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Version   string `json:"version"`
	BucketVal string `json:"bucket_val"`
	StartTs   int64  `json:"start_ts"`
	StopTs    int64  `json:"stop_ts"`
	Owner     string `json:"owner,omitempty"`
	EmitEvent bool   `json:"emit_event"`
}

// ConfigValueResponse is one entry of the dynamic configuration listing.
type ConfigValueResponse struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value any    `json:"value"`
}
