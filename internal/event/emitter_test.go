package event

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureSink records exposures in-memory for assertions.
type captureSink struct {
	exposures []Exposure
}

func (c *captureSink) Log(exp Exposure) {
	c.exposures = append(c.exposures, exp)
}

func TestEmitter_Emit(t *testing.T) {
	var logBuffer bytes.Buffer
	log := slog.New(slog.NewTextHandler(&logBuffer, nil))
	sink := &captureSink{}
	emitter := NewEmitter(sink, "span-123", log)

	raw := rawEvent("0", "42", "exp_checkout", "3", "control_1", "t2_actual", "user_id", "100", "200", "growth")
	emitter.Emit(raw, map[string]any{"user_id": "t2_supplied", "app_name": "ios"})

	require.Len(t, sink.exposures, 1)
	exp := sink.exposures[0]

	assert.NotEmpty(t, exp.ID)
	assert.Equal(t, "exp_checkout", exp.Experiment.Name)
	assert.Equal(t, "control_1", exp.Variant)
	assert.Equal(t, "span-123", exp.Span)
	assert.Equal(t, TypeExpose, exp.EventType)

	// The bucketing field must carry the value the engine hashed on,
	// overriding whatever the caller supplied.
	assert.Equal(t, "t2_actual", exp.Fields["user_id"])
	assert.Equal(t, "ios", exp.Fields["app_name"])
	assert.Equal(t, exp.Fields, exp.Inputs)
}

func TestEmitter_Emit_UniqueIDs(t *testing.T) {
	log := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	sink := &captureSink{}
	emitter := NewEmitter(sink, "span", log)

	raw := rawEvent("0", "1", "exp", "1", "v", "bv", "user_id", "0", "0", "")
	emitter.Emit(raw, nil)
	emitter.Emit(raw, nil)

	require.Len(t, sink.exposures, 2)
	assert.NotEqual(t, sink.exposures[0].ID, sink.exposures[1].ID)
}

func TestEmitter_EmitIfHoldout(t *testing.T) {
	tests := []struct {
		name      string
		class     string
		wantEmits int
	}{
		{name: "Should skip a regular event in deferred mode", class: "0", wantEmits: 0},
		{name: "Should skip an override event in deferred mode", class: "1", wantEmits: 0},
		{name: "Should emit a holdout event in deferred mode", class: "2", wantEmits: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
			sink := &captureSink{}
			emitter := NewEmitter(sink, "span", log)

			raw := rawEvent(tt.class, "1", "hg_global", "1", "holdout", "bv", "user_id", "0", "0", "")
			emitter.EmitIfHoldout(raw, nil)

			assert.Len(t, sink.exposures, tt.wantEmits)
		})
	}
}

func TestEmitter_MalformedEventIsDroppedAndLogged(t *testing.T) {
	var logBuffer bytes.Buffer
	log := slog.New(slog.NewTextHandler(&logBuffer, nil))
	sink := &captureSink{}
	emitter := NewEmitter(sink, "span", log)

	emitter.Emit("garbage-without-delimiters", nil)
	emitter.EmitIfHoldout("also::::garbage", nil)

	assert.Empty(t, sink.exposures)
	assert.Contains(t, logBuffer.String(), "malformed decision event")
}

func TestEmitter_EmitManual(t *testing.T) {
	log := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	sink := &captureSink{}
	emitter := NewEmitter(sink, "span-9", log)

	raw := rawEvent("0", "5", "exp_manual", "2", "ignored", "bv", "user_id", "0", "0", "team")
	ev, err := Parse(raw, log)
	require.NoError(t, err)

	emitter.EmitManual(ev.Experiment(), "treatment_2", map[string]any{"user_id": "t2_caller"})

	require.Len(t, sink.exposures, 1)
	exp := sink.exposures[0]
	assert.Equal(t, "exp_manual", exp.Experiment.Name)
	assert.Equal(t, "treatment_2", exp.Variant)
	assert.Equal(t, "span-9", exp.Span)

	// Manual emission has no raw event to substitute from, so the
	// caller-supplied bucketing value passes through untouched.
	assert.Equal(t, "t2_caller", exp.Fields["user_id"])
}

func TestEmitter_NilSinkFallsBackToDebugSink(t *testing.T) {
	var logBuffer bytes.Buffer
	log := slog.New(slog.NewTextHandler(&logBuffer, &slog.HandlerOptions{Level: slog.LevelDebug}))
	emitter := NewEmitter(nil, "span", log)

	raw := rawEvent("0", "1", "exp_debug", "1", "v", "bv", "user_id", "0", "0", "")
	emitter.Emit(raw, nil)

	assert.Contains(t, logBuffer.String(), "exposure")
	assert.Contains(t, logBuffer.String(), "exp_debug")
}

func TestMergeCallerFields(t *testing.T) {
	var logBuffer bytes.Buffer
	log := slog.New(slog.NewTextHandler(&logBuffer, nil))

	dst := map[string]any{"existing": 1}
	extra := map[string]any{
		"variant":    "evil-override",
		"event_type": "click",
		"experiment": "fake",
		"span":       "fake-span",
		"custom":     "ok",
	}

	MergeCallerFields(dst, extra, log)

	assert.Equal(t, map[string]any{"existing": 1, "custom": "ok"}, dst)
	assert.Contains(t, logBuffer.String(), "reserved field")
}
