package decider

import (
	"log/slog"

	"github.com/variantlab/decider/internal/engine"
)

// ExperimentVariant is one entry of a bulk variant enumeration.
type ExperimentVariant struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Version        string `json:"version"`
	ExperimentName string `json:"experimentName"`
}

// GetAllVariantsWithoutExpose buckets every available experiment and
// returns the ones that assigned a variant. No regular exposures are
// emitted; holdout exposures still fire, per-experiment, following the
// same deferred-mode rule as GetVariantWithoutExpose -- including for
// experiments whose visible variant is empty and therefore excluded from
// the result.
//
// A single bad experiment never aborts the batch: its failure is logged
// with the experiment's name and the rest of the results are returned.
func (d *Decider) GetAllVariantsWithoutExpose() []ExperimentVariant {
	decisions, ok := d.getAllDecisions("get_all_variants_without_expose", "", d.snap.Map())
	if !ok {
		return []ExperimentVariant{}
	}
	return d.collectVariants(decisions)
}

// GetAllVariantsForIdentifierWithoutExpose buckets every experiment whose
// bucketing field matches identifierType, using identifier as the
// bucketing value, and returns the ones that assigned a variant. Same
// exposure and partial-failure semantics as GetAllVariantsWithoutExpose.
func (d *Decider) GetAllVariantsForIdentifierWithoutExpose(identifier, identifierType string) []ExperimentVariant {
	const op = "get_all_variants_for_identifier_without_expose"

	if !d.checkIdentifierType(op, identifierType) {
		return []ExperimentVariant{}
	}

	ctx := d.snap.MapWithIdentifier(identifierType, identifier)
	decisions, ok := d.getAllDecisions(op, identifierType, ctx)
	if !ok {
		return []ExperimentVariant{}
	}
	return d.collectVariants(decisions)
}

func (d *Decider) collectVariants(decisions map[string]engine.Decision) []ExperimentVariant {
	fields := d.snap.EventFields()
	variants := make([]ExperimentVariant, 0, len(decisions))

	for name, decision := range decisions {
		if decision.Err != nil {
			// The diagnostic must name the failing experiment so it is
			// distinguishable from a plain no-variant result.
			d.log.Warn("experiment failed during bulk evaluation",
				slog.String("experiment", name),
				slog.String("error", decision.Err.Error()),
			)
			continue
		}

		if decision.Variant != "" {
			variants = append(variants, ExperimentVariant{
				ID:             decision.FeatureID,
				Name:           decision.Variant,
				Version:        decision.FeatureVersion,
				ExperimentName: decision.FeatureName,
			})
		}

		for _, raw := range decision.Events {
			d.emitter.EmitIfHoldout(raw, fields)
		}
	}

	return variants
}
