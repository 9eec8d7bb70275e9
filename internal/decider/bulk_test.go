package decider

import (
	"bytes"
	"errors"
	"log/slog"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/variantlab/decider/internal/engine"
	"github.com/variantlab/decider/internal/testsupport"
)

func TestDecider_GetAllVariantsWithoutExpose(t *testing.T) {
	fake := testsupport.NewFakeEngine()
	fake.Decisions["exp_a"] = engine.Decision{
		Variant:        "treatment_1",
		FeatureID:      1,
		FeatureName:    "exp_a",
		FeatureVersion: "2",
		Events:         []string{regularEvent("exp_a", "treatment_1")},
	}
	fake.Decisions["exp_b"] = engine.Decision{
		// No variant assigned; excluded from the result but its events
		// still go through deferred-mode emission.
		FeatureID:   2,
		FeatureName: "exp_b",
		Events:      []string{holdoutEvent("hg_global")},
	}

	sink := &testsupport.CaptureSink{}
	d := newTestDecider(fake, sink, testLogger())

	got := d.GetAllVariantsWithoutExpose()

	require.Len(t, got, 1)
	assert.Equal(t, ExperimentVariant{
		ID:             1,
		Name:           "treatment_1",
		Version:        "2",
		ExperimentName: "exp_a",
	}, got[0])

	// Only the holdout exposure fires in deferred mode.
	exposures := sink.Exposures()
	require.Len(t, exposures, 1)
	assert.Equal(t, "hg_global", exposures[0].Experiment.Name)
}

func TestDecider_GetAllVariantsWithoutExpose_PartialFailure(t *testing.T) {
	var logBuffer bytes.Buffer
	log := slog.New(slog.NewTextHandler(&logBuffer, nil))

	fake := testsupport.NewFakeEngine()
	fake.Decisions["exp_ok"] = engine.Decision{
		Variant:        "enabled",
		FeatureID:      1,
		FeatureName:    "exp_ok",
		FeatureVersion: "1",
	}
	fake.Decisions["exp_broken"] = engine.Decision{
		Err: errors.New("malformed targeting tree"),
	}

	d := newTestDecider(fake, &testsupport.CaptureSink{}, log)

	got := d.GetAllVariantsWithoutExpose()

	// One bad experiment never aborts the batch.
	require.Len(t, got, 1)
	assert.Equal(t, "exp_ok", got[0].ExperimentName)

	// The diagnostic names the failing experiment.
	assert.Contains(t, logBuffer.String(), "experiment failed during bulk evaluation")
	assert.Contains(t, logBuffer.String(), "exp_broken")
}

func TestDecider_GetAllVariantsWithoutExpose_Degrades(t *testing.T) {
	t.Run("Should return empty slice when engine is unavailable", func(t *testing.T) {
		d := newTestDecider(nil, &testsupport.CaptureSink{}, testLogger())
		got := d.GetAllVariantsWithoutExpose()
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("Should return empty slice on whole-batch failure", func(t *testing.T) {
		fake := testsupport.NewFakeEngine()
		fake.Err = errors.New("config snapshot corrupt")
		d := newTestDecider(fake, &testsupport.CaptureSink{}, testLogger())
		got := d.GetAllVariantsWithoutExpose()
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})
}

func TestDecider_GetAllVariantsForIdentifierWithoutExpose(t *testing.T) {
	fake := testsupport.NewFakeEngine()
	fake.Decisions["exp_sub"] = engine.Decision{
		Variant:     "enabled",
		FeatureID:   3,
		FeatureName: "exp_sub",
	}
	fake.Decisions["exp_user"] = engine.Decision{
		Variant:     "enabled",
		FeatureID:   4,
		FeatureName: "exp_user",
	}
	fake.Experiments["exp_sub"] = engine.Experiment{Name: "exp_sub", BucketVal: "subreddit_id"}
	fake.Experiments["exp_user"] = engine.Experiment{Name: "exp_user", BucketVal: "user_id"}

	d := newTestDecider(fake, &testsupport.CaptureSink{}, testLogger())

	got := d.GetAllVariantsForIdentifierWithoutExpose("t5_abc", "subreddit_id")

	// Only experiments bucketing on the requested identifier type are
	// evaluated.
	require.Len(t, got, 1)
	assert.Equal(t, "exp_sub", got[0].ExperimentName)

	ctx := fake.Context()
	assert.Equal(t, "t5_abc", ctx["subreddit_id"])
	assert.Nil(t, ctx["user_id"])
}

func TestDecider_GetAllVariantsForIdentifierWithoutExpose_RejectsUnknownType(t *testing.T) {
	var logBuffer bytes.Buffer
	log := slog.New(slog.NewTextHandler(&logBuffer, nil))

	fake := testsupport.NewFakeEngine()
	d := newTestDecider(fake, &testsupport.CaptureSink{}, log)

	got := d.GetAllVariantsForIdentifierWithoutExpose("x", "session_id")

	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Contains(t, logBuffer.String(), "identifier type is not supported")
	assert.Nil(t, fake.Context())
}

func TestDecider_GetAllVariantsWithoutExpose_MultipleWinners(t *testing.T) {
	fake := testsupport.NewFakeEngine()
	for _, name := range []string{"exp_a", "exp_b", "exp_c"} {
		fake.Decisions[name] = engine.Decision{
			Variant:     "enabled",
			FeatureName: name,
		}
	}

	d := newTestDecider(fake, &testsupport.CaptureSink{}, testLogger())

	got := d.GetAllVariantsWithoutExpose()
	require.Len(t, got, 3)

	names := make([]string, len(got))
	for i, v := range got {
		names[i] = v.ExperimentName
	}
	sort.Strings(names)
	assert.Equal(t, []string{"exp_a", "exp_b", "exp_c"}, names)
}
