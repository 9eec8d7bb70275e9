// Package testsupport provides test doubles for the evaluation engine and
// exposure sink, plus helpers for ephemeral Docker containers and
// Prometheus assertions used in integration tests.
package testsupport

import (
	"sync"

	"github.com/variantlab/decider/internal/engine"
	"github.com/variantlab/decider/internal/event"
)

// Compile-time interface checks.
var (
	_ engine.Engine = (*FakeEngine)(nil)
	_ event.Sink    = (*CaptureSink)(nil)
)

// FakeEngine is a scriptable engine implementation. Tests populate the
// maps with the decisions and values they expect the code under test to
// read; setting Err makes every call fail with it.
type FakeEngine struct {
	mu sync.Mutex

	Decisions   map[string]engine.Decision
	Values      map[string]engine.DynamicValue
	Experiments map[string]engine.Experiment

	// Err, when non-nil, is returned by every operation.
	Err error

	// LastContext records the bucketing context of the most recent call,
	// so tests can assert what the client actually sent.
	LastContext map[string]any
}

// NewFakeEngine returns an empty scriptable engine.
func NewFakeEngine() *FakeEngine {
	return &FakeEngine{
		Decisions:   make(map[string]engine.Decision),
		Values:      make(map[string]engine.DynamicValue),
		Experiments: make(map[string]engine.Experiment),
	}
}

func (f *FakeEngine) record(ctx map[string]any) {
	f.mu.Lock()
	f.LastContext = ctx
	f.mu.Unlock()
}

// Context returns the most recently recorded bucketing context.
func (f *FakeEngine) Context() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.LastContext
}

func (f *FakeEngine) Choose(name string, ctx map[string]any) (engine.Decision, error) {
	f.record(ctx)
	if f.Err != nil {
		return engine.Decision{}, f.Err
	}
	d, ok := f.Decisions[name]
	if !ok {
		return engine.Decision{}, engine.ErrNotFound
	}
	if d.Err != nil {
		return engine.Decision{}, d.Err
	}
	return d, nil
}

func (f *FakeEngine) ChooseAll(ctx map[string]any, bucketingFieldFilter string) (map[string]engine.Decision, error) {
	f.record(ctx)
	if f.Err != nil {
		return nil, f.Err
	}
	out := make(map[string]engine.Decision, len(f.Decisions))
	for name, d := range f.Decisions {
		if bucketingFieldFilter != "" {
			exp, ok := f.Experiments[name]
			if !ok || exp.BucketVal != bucketingFieldFilter {
				continue
			}
		}
		out[name] = d
	}
	return out, nil
}

func (f *FakeEngine) GetBool(name string, ctx map[string]any) (bool, error) {
	v, err := f.value(name, ctx, engine.TypeBoolean)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, engine.ErrTypeMismatch
	}
	return b, nil
}

func (f *FakeEngine) GetInt(name string, ctx map[string]any) (int64, error) {
	v, err := f.value(name, ctx, engine.TypeInteger)
	if err != nil {
		return 0, err
	}
	i, ok := v.(int64)
	if !ok {
		return 0, engine.ErrTypeMismatch
	}
	return i, nil
}

func (f *FakeEngine) GetFloat(name string, ctx map[string]any) (float64, error) {
	v, err := f.value(name, ctx, engine.TypeFloat)
	if err != nil {
		return 0, err
	}
	fl, ok := v.(float64)
	if !ok {
		return 0, engine.ErrTypeMismatch
	}
	return fl, nil
}

func (f *FakeEngine) GetString(name string, ctx map[string]any) (string, error) {
	v, err := f.value(name, ctx, engine.TypeString)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", engine.ErrTypeMismatch
	}
	return s, nil
}

func (f *FakeEngine) GetMap(name string, ctx map[string]any) (map[string]any, error) {
	v, err := f.value(name, ctx, engine.TypeMap)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, engine.ErrTypeMismatch
	}
	return m, nil
}

func (f *FakeEngine) value(name string, ctx map[string]any, wantType string) (any, error) {
	f.record(ctx)
	if f.Err != nil {
		return nil, f.Err
	}
	dv, ok := f.Values[name]
	if !ok {
		return nil, engine.ErrNotFound
	}
	if dv.Type != wantType {
		return nil, engine.ErrTypeMismatch
	}
	return dv.Value, nil
}

func (f *FakeEngine) AllValues(ctx map[string]any) (map[string]engine.DynamicValue, error) {
	f.record(ctx)
	if f.Err != nil {
		return nil, f.Err
	}
	out := make(map[string]engine.DynamicValue, len(f.Values))
	for name, dv := range f.Values {
		out[name] = dv
	}
	return out, nil
}

func (f *FakeEngine) GetExperiment(name string) (engine.Experiment, error) {
	if f.Err != nil {
		return engine.Experiment{}, f.Err
	}
	exp, ok := f.Experiments[name]
	if !ok {
		return engine.Experiment{}, engine.ErrNotFound
	}
	return exp, nil
}

// Engine satisfies decider.EngineSource so a FakeEngine can back a
// request factory directly.
func (f *FakeEngine) Engine() (engine.Engine, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f, nil
}

// CaptureSink records every exposure it receives for later assertions.
type CaptureSink struct {
	mu        sync.Mutex
	exposures []event.Exposure
}

// Log implements event.Sink.
func (c *CaptureSink) Log(exp event.Exposure) {
	c.mu.Lock()
	c.exposures = append(c.exposures, exp)
	c.mu.Unlock()
}

// Exposures returns a copy of everything captured so far.
func (c *CaptureSink) Exposures() []event.Exposure {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]event.Exposure, len(c.exposures))
	copy(out, c.exposures)
	return out
}

// Reset clears the captured exposures.
func (c *CaptureSink) Reset() {
	c.mu.Lock()
	c.exposures = nil
	c.mu.Unlock()
}
