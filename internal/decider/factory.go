package decider

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/variantlab/decider/internal/engine"
	"github.com/variantlab/decider/internal/event"
)

// EngineSource supplies the current engine handle. The config watcher
// satisfies it: the handle it returns is an immutable snapshot swapped
// atomically on reload, so a decider built from it sees one consistent
// config for its whole request.
type EngineSource interface {
	Engine() (engine.Engine, error)
}

// StaticSource wraps a fixed engine handle as an EngineSource. Useful
// when the engine never changes over the process lifetime, such as a
// remote engine fronting an upstream service.
type StaticSource struct {
	Eng engine.Engine
}

// Engine implements EngineSource.
func (s StaticSource) Engine() (engine.Engine, error) {
	if s.Eng == nil {
		return nil, engine.ErrUnavailable
	}
	return s.Eng, nil
}

// Factory builds one Decider per inbound request. It is the only
// long-lived object in this package; it holds no mutable state of its
// own.
type Factory struct {
	source EngineSource
	sink   event.Sink
	log    *slog.Logger
}

// NewFactory creates a factory. source is mandatory; a nil sink means
// exposures go to the debug sink, a nil logger means slog.Default().
func NewFactory(source EngineSource, sink event.Sink, log *slog.Logger) *Factory {
	if source == nil {
		panic("decider: engine source cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Factory{source: source, sink: sink, log: log}
}

// ForRequest builds the request-scoped decider. attrs come from the
// caller's edge-request extraction (out of scope here); extracted is the
// open-ended field bag and goes through the pruning rule. span identifies
// the request in emitted exposures; when empty, a fresh uuid is
// generated.
//
// An unavailable engine handle is not an error: the decider is built with
// a nil engine and every operation degrades to its default result.
func (f *Factory) ForRequest(attrs Attributes, extracted map[string]any, span string) *Decider {
	eng, err := f.source.Engine()
	if err != nil {
		f.log.Error("experiment config unavailable, decider will serve defaults",
			slog.String("error", err.Error()))
		eng = nil
	}

	if span == "" {
		span = uuid.NewString()
	}

	snap := NewSnapshot(attrs, extracted, f.log)
	return New(snap, eng, f.sink, span, f.log)
}
