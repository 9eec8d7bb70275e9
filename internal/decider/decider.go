package decider

import (
	"errors"
	"log/slog"

	"github.com/variantlab/decider/internal/engine"
	"github.com/variantlab/decider/internal/event"
	"github.com/variantlab/decider/internal/observability"
)

// Decider is the request-facing experimentation client. One instance is
// constructed per inbound request and wires together the context
// snapshot, the engine handle current at construction time, and the
// exposure emitter. All methods are synchronous and none returns an
// error: every failure category degrades to a default result plus a log
// line.
type Decider struct {
	snap    Snapshot
	eng     engine.Engine // nil when the config watcher had no snapshot
	emitter *event.Emitter
	span    string
	log     *slog.Logger
}

// New creates a request-scoped decider. eng may be nil, in which case
// every operation degrades to its default result. A nil sink falls back
// to the debug sink; a nil logger falls back to slog.Default().
func New(snap Snapshot, eng engine.Engine, sink event.Sink, span string, log *slog.Logger) *Decider {
	if log == nil {
		log = slog.Default()
	}
	return &Decider{
		snap:    snap,
		eng:     eng,
		emitter: event.NewEmitter(sink, span, log),
		span:    span,
		log:     log,
	}
}

// GetExperiment resolves experiment metadata without bucketing and
// without emitting anything. ok is false when the engine is unavailable
// or the name is unknown.
func (d *Decider) GetExperiment(name string) (exp engine.Experiment, ok bool) {
	const op = "get_experiment"

	if d.eng == nil {
		d.logUnavailable(op)
		return engine.Experiment{}, false
	}

	exp, err := d.eng.GetExperiment(name)
	if err != nil {
		d.logEngineErr(op, name, err)
		return engine.Experiment{}, false
	}

	countOp(op, nil)
	return exp, true
}

// getDecision runs one Choose call with the full degrade-to-nothing error
// policy. ok is false on any failure; the caller emits nothing.
func (d *Decider) getDecision(op, name string, ctx map[string]any) (engine.Decision, bool) {
	if d.eng == nil {
		d.logUnavailable(op)
		return engine.Decision{}, false
	}

	decision, err := d.eng.Choose(name, ctx)
	if err != nil {
		d.logEngineErr(op, name, err)
		return engine.Decision{}, false
	}

	countOp(op, nil)
	return decision, true
}

// getAllDecisions runs one ChooseAll call. Per-experiment failures stay
// inline in the returned map; only whole-batch failures make ok false.
func (d *Decider) getAllDecisions(op, filter string, ctx map[string]any) (map[string]engine.Decision, bool) {
	if d.eng == nil {
		d.logUnavailable(op)
		return nil, false
	}

	decisions, err := d.eng.ChooseAll(ctx, filter)
	if err != nil {
		d.logEngineErr(op, "", err)
		return nil, false
	}

	countOp(op, nil)
	return decisions, true
}

// logUnavailable reports a missing engine handle. Error level: a request
// is being served with experimentation fully degraded.
func (d *Decider) logUnavailable(op string) {
	d.log.Error("decision engine unavailable, operating with defaults", slog.String("operation", op))
	countOp(op, engine.ErrUnavailable)
}

// logEngineErr applies the taxonomy's severity policy: not-found is
// expected and benign (debug), everything else is anomalous (info).
func (d *Decider) logEngineErr(op, name string, err error) {
	countOp(op, err)

	var mismatch *engine.BucketMismatchError
	switch {
	case engine.IsNotFound(err):
		d.log.Debug("feature not found",
			slog.String("operation", op),
			slog.String("feature", name),
		)
	case errors.As(err, &mismatch):
		d.log.Info("identifier type does not match experiment bucketing field",
			slog.String("operation", op),
			slog.String("feature", name),
			slog.String("requested", mismatch.Requested),
			slog.String("configured", mismatch.Configured),
		)
	default:
		d.log.Info("engine call failed",
			slog.String("operation", op),
			slog.String("feature", name),
			slog.String("error", err.Error()),
		)
	}
}

func countOp(op string, err error) {
	success := "true"
	if err != nil {
		success = "false"
	}
	observability.ClientOpsTotal.WithLabelValues(op, success, errorType(err)).Inc()
}

// errInvalidIdentifierType marks a caller-side validation failure: the
// identifier type is outside the whitelist and the engine was never
// called.
var errInvalidIdentifierType = errors.New("decider: identifier type not in whitelist")

func errorType(err error) string {
	var mismatch *engine.BucketMismatchError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, errInvalidIdentifierType):
		return "validation"
	case engine.IsNotFound(err):
		return "not_found"
	case errors.Is(err, engine.ErrTypeMismatch):
		return "type_mismatch"
	case errors.As(err, &mismatch):
		return "bucket_mismatch"
	case errors.Is(err, engine.ErrUnavailable):
		return "unavailable"
	default:
		return "other"
	}
}
