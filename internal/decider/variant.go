package decider

import (
	"log/slog"

	"github.com/variantlab/decider/internal/event"
)

// GetVariant returns the bucketing variant for an experiment, if any,
// with auto-exposure: every event the decision carries is emitted,
// holdouts included. Call it only when the user is actually about to see
// the treatment; otherwise use GetVariantWithoutExpose and a later manual
// Expose.
//
// exposureFields are shallow-merged into the emitted record and its
// inputs sub-object; protocol-reserved keys are dropped.
//
// The returned variant is "" when no variant is assigned.
func (d *Decider) GetVariant(experimentName string, exposureFields map[string]any) string {
	decision, ok := d.getDecision("get_variant", experimentName, d.snap.Map())
	if !ok {
		return ""
	}

	fields := d.exposureFields(exposureFields)
	for _, raw := range decision.Events {
		d.emitter.Emit(raw, fields)
	}

	return decision.Variant
}

// GetVariantWithoutExpose returns the bucketing variant, if any, without
// emitting the experiment's own exposure; Expose is available to be
// called manually later.
//
// Experiments nested in a Holdout Group still send the holdout parent's
// exposure: once this call returns, a "" result from the holdout and a ""
// result from the child are indistinguishable, so the holdout cannot be
// exposed manually later without losing analytic correctness.
func (d *Decider) GetVariantWithoutExpose(experimentName string) string {
	decision, ok := d.getDecision("get_variant_without_expose", experimentName, d.snap.Map())
	if !ok {
		return ""
	}

	fields := d.snap.EventFields()
	for _, raw := range decision.Events {
		d.emitter.EmitIfHoldout(raw, fields)
	}

	return decision.Variant
}

// GetVariantForIdentifier returns the variant for an arbitrary
// identifier, with auto-exposure. identifierType must be in the
// Identifiers whitelist; anything else is rejected before reaching the
// engine. When identifierType does not match the experiment's configured
// bucketing field, the engine refuses, no variant is returned and no
// exposure is emitted.
func (d *Decider) GetVariantForIdentifier(experimentName, identifier, identifierType string, exposureFields map[string]any) string {
	const op = "get_variant_for_identifier"

	if !d.checkIdentifierType(op, identifierType) {
		return ""
	}

	ctx := d.snap.MapWithIdentifier(identifierType, identifier)
	decision, ok := d.getDecision(op, experimentName, ctx)
	if !ok {
		return ""
	}

	fields := d.exposureFields(exposureFields)
	for _, raw := range decision.Events {
		d.emitter.Emit(raw, fields)
	}

	return decision.Variant
}

// GetVariantForIdentifierWithoutExpose is GetVariantForIdentifier in
// deferred mode: only holdout exposures fire, everything else is left to
// a later manual Expose.
func (d *Decider) GetVariantForIdentifierWithoutExpose(experimentName, identifier, identifierType string) string {
	const op = "get_variant_for_identifier_without_expose"

	if !d.checkIdentifierType(op, identifierType) {
		return ""
	}

	ctx := d.snap.MapWithIdentifier(identifierType, identifier)
	decision, ok := d.getDecision(op, experimentName, ctx)
	if !ok {
		return ""
	}

	fields := d.snap.EventFields()
	for _, raw := range decision.Events {
		d.emitter.EmitIfHoldout(raw, fields)
	}

	return decision.Variant
}

// Expose manually emits an exposure for a variant obtained earlier from a
// WithoutExpose call. It is a no-op when the variant is empty, when the
// experiment is unknown, or when the experiment has exposure emission
// disabled (rollout-only features never emit analytic exposures).
func (d *Decider) Expose(experimentName, variant string, exposureFields map[string]any) {
	const op = "expose"

	if variant == "" {
		return
	}

	if d.eng == nil {
		d.logUnavailable(op)
		return
	}

	exp, err := d.eng.GetExperiment(experimentName)
	if err != nil {
		d.logEngineErr(op, experimentName, err)
		return
	}

	if !exp.EmitEvent {
		return
	}

	countOp(op, nil)
	d.emitter.EmitManual(exp, variant, d.exposureFields(exposureFields))
}

// exposureFields composes the nested event view of the snapshot with the
// caller's extra fields, reserved keys excluded.
func (d *Decider) exposureFields(extra map[string]any) map[string]any {
	fields := d.snap.EventFields()
	event.MergeCallerFields(fields, extra, d.log)
	return fields
}

func (d *Decider) checkIdentifierType(op, identifierType string) bool {
	if validIdentifierType(identifierType) {
		return true
	}
	d.log.Warn("identifier type is not supported",
		slog.String("operation", op),
		slog.String("identifier_type", identifierType),
		slog.Any("supported", Identifiers),
	)
	countOp(op, errInvalidIdentifierType)
	return false
}
