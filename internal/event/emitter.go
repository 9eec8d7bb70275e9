package event

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/variantlab/decider/internal/engine"
	"github.com/variantlab/decider/internal/observability"
)

// TypeExpose is the only event type this client emits.
const TypeExpose = "expose"

// Reserved field names that caller-supplied fields may never overwrite.
// They are protocol-owned: each has a dedicated slot on the Exposure
// record and its meaning is fixed by the event schema.
var reserved = map[string]struct{}{
	"variant":    {},
	"event_type": {},
	"experiment": {},
	"span":       {},
}

// Exposure is the materialized telemetry payload for one emission.
// Constructed fresh per emission, handed to the sink, then discarded.
type Exposure struct {
	// ID is a unique id for this emission.
	ID string

	Experiment engine.Experiment
	Variant    string

	// Span identifies the request this exposure belongs to.
	Span string

	EventType string

	// Inputs carries the merged context fields nested under "inputs" in
	// the event schema; Fields carries the same data at top level.
	Inputs map[string]any
	Fields map[string]any
}

// Sink receives emitted exposures. Implementations are fire-and-forget
// from this package's perspective: Log is called exactly once per emitted
// exposure, is never awaited beyond its synchronous return, and is never
// retried.
type Sink interface {
	Log(exp Exposure)
}

// DebugSink logs exposures through slog instead of a telemetry pipeline.
// It is the default sink when none is configured.
type DebugSink struct {
	Logger *slog.Logger
}

func (d *DebugSink) Log(exp Exposure) {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	log.Debug("exposure",
		slog.String("experiment", exp.Experiment.Name),
		slog.String("variant", exp.Variant),
		slog.String("span", exp.Span),
		slog.String("event_type", exp.EventType),
	)
}

// Emitter performs the at-most-once emission decision for a single
// request. It holds no per-call state: each Emit* call composes a fresh
// Exposure from the raw event and the supplied context fields.
type Emitter struct {
	sink Sink
	span string
	log  *slog.Logger
}

// NewEmitter creates an emitter bound to one request span. A nil sink
// falls back to DebugSink; a nil logger falls back to slog.Default().
func NewEmitter(sink Sink, span string, log *slog.Logger) *Emitter {
	if log == nil {
		log = slog.Default()
	}
	if sink == nil {
		sink = &DebugSink{Logger: log}
	}
	return &Emitter{sink: sink, span: span, log: log}
}

// Emit parses one raw event and emits its exposure unconditionally
// (eager mode). A malformed event is logged and dropped; the caller's
// decision result is unaffected.
func (e *Emitter) Emit(raw string, contextFields map[string]any) {
	ev, err := Parse(raw, e.log)
	if err != nil {
		e.dropMalformed(raw, err)
		return
	}
	e.send(ev, contextFields)
	observability.ExposuresTotal.WithLabelValues("eager").Inc()
}

// EmitIfHoldout parses one raw event and emits its exposure only when it
// classifies as a holdout (deferred mode). The holdout's exposure cannot
// be deferred to a later manual Expose call: once the decision returns,
// "no variant because the holdout excluded the user" and "no variant
// because the experiment assigned none" are indistinguishable.
func (e *Emitter) EmitIfHoldout(raw string, contextFields map[string]any) {
	ev, err := Parse(raw, e.log)
	if err != nil {
		e.dropMalformed(raw, err)
		return
	}
	if !ev.Holdout() {
		return
	}
	e.send(ev, contextFields)
	observability.ExposuresTotal.WithLabelValues("holdout").Inc()
}

func (e *Emitter) dropMalformed(raw string, err error) {
	e.log.Warn("malformed decision event, exposure not emitted",
		slog.String("event", raw),
		slog.String("error", err.Error()),
	)
	observability.MalformedEventsTotal.Inc()
}

// EmitManual emits an exposure for a descriptor resolved outside of a
// decision call (the manual Expose path). No bucketing-value substitution
// happens here: there is no raw event to take the literal value from.
func (e *Emitter) EmitManual(exp engine.Experiment, variant string, contextFields map[string]any) {
	fields := copyFields(contextFields)
	observability.ExposuresTotal.WithLabelValues("manual").Inc()
	e.sink.Log(Exposure{
		ID:         uuid.NewString(),
		Experiment: exp,
		Variant:    variant,
		Span:       e.span,
		EventType:  TypeExpose,
		Inputs:     fields,
		Fields:     fields,
	})
}

func (e *Emitter) send(ev Raw, contextFields map[string]any) {
	fields := copyFields(contextFields)

	// The emitted record must reflect the value the engine actually
	// hashed on, not whatever the caller originally supplied for the
	// bucketing field.
	fields[ev.BucketVal] = ev.BucketingValue

	e.sink.Log(Exposure{
		ID:         uuid.NewString(),
		Experiment: ev.Experiment(),
		Variant:    ev.Variant,
		Span:       e.span,
		EventType:  TypeExpose,
		Inputs:     fields,
		Fields:     fields,
	})
}

// MergeCallerFields shallow-merges caller-supplied exposure fields into
// dst, skipping protocol-reserved keys. dst is modified in place.
func MergeCallerFields(dst, extra map[string]any, log *slog.Logger) {
	for k, v := range extra {
		if _, ok := reserved[k]; ok {
			if log != nil {
				log.Warn("caller exposure field shadows a reserved field and is dropped",
					slog.String("field", k))
			}
			continue
		}
		dst[k] = v
	}
}

func copyFields(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src)+1)
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
