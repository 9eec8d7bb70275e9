// Package event implements the exposure side of the decider protocol: the
// codec for the engine's raw decision-event wire encoding, and the emitter
// that turns parsed events into at-most-once telemetry records.
//
// Raw event strings are a versioned wire format. They are parsed into a
// tagged struct here, at the boundary, and never travel further as strings.
package event

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/variantlab/decider/internal/engine"
)

// Delimiter separates the fields of a raw decision event.
const Delimiter = "::::"

// rawFieldCount is the fixed field count of the current encoding.
const rawFieldCount = 10

// Class is the closed classification of a decision event.
type Class int

const (
	// ClassRegular is a plain bucketing assignment.
	ClassRegular Class = 0
	// ClassOverride is an assignment forced by an override.
	ClassOverride Class = 1
	// ClassHoldout is an exposure of a Holdout Group itself. It is the
	// only class eligible for deferred-mode emission.
	ClassHoldout Class = 2
)

// Raw is one decoded decision event.
type Raw struct {
	Class          Class
	ExperimentID   int64
	Name           string
	Version        string
	Variant        string
	BucketingValue string
	BucketVal      string
	StartTs        int64
	StopTs         int64
	Owner          string
}

// Holdout reports whether this event exposes a Holdout Group.
func (r Raw) Holdout() bool { return r.Class == ClassHoldout }

// Experiment materializes the event's experiment metadata. The descriptor
// is built from the event itself, not from a config lookup, so it reflects
// exactly what the engine bucketed against.
func (r Raw) Experiment() engine.Experiment {
	return engine.Experiment{
		ID:        r.ExperimentID,
		Name:      r.Name,
		Version:   r.Version,
		BucketVal: r.BucketVal,
		StartTs:   r.StartTs,
		StopTs:    r.StopTs,
		Owner:     r.Owner,
	}
}

// Parse decodes one raw decision event string. A wrong field count is the
// only fatal shape error; callers are expected to skip the single event
// and keep processing its siblings.
func Parse(s string, log *slog.Logger) (Raw, error) {
	parts := strings.Split(s, Delimiter)
	if len(parts) != rawFieldCount {
		return Raw{}, fmt.Errorf("event: expected %d fields, got %d", rawFieldCount, len(parts))
	}

	return Raw{
		Class:          parseClass(parts[0], log),
		ExperimentID:   castInt(parts[1], log),
		Name:           parts[2],
		Version:        parts[3],
		Variant:        parts[4],
		BucketingValue: parts[5],
		BucketVal:      parts[6],
		StartTs:        castInt(parts[7], log),
		StopTs:         castInt(parts[8], log),
		Owner:          parts[9],
	}, nil
}

// castInt converts a numeric wire field leniently: a malformed value
// becomes 1 with an info log instead of failing the event. This matches
// the historical engine contract; do not change the default without a
// protocol version bump.
func castInt(s string, log *slog.Logger) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		log.Info("lenient int cast on event field", slog.String("value", s))
		return 1
	}
	return n
}

func parseClass(s string, log *slog.Logger) Class {
	switch s {
	case "0":
		return ClassRegular
	case "1":
		return ClassOverride
	case "2":
		return ClassHoldout
	default:
		// Unknown classes behave like regular bucketing: emitted eagerly,
		// never treated as a holdout.
		log.Info("unknown event class", slog.String("class", s))
		return ClassRegular
	}
}
