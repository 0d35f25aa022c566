// Package trust implements the TrustCalculator (spec §4.6): combining a
// normalized distance signal with weighted validator outputs into a single
// bounded trust score.
//
// Grounded on the teacher's core/access_control.go weighted-check
// aggregation shape, generalized here from boolean permission checks to a
// continuous weighted sum over trustwotd/core/weights profiles.
package trust

import (
	"fmt"
	"math"

	"trustwotd/core/weights"
	"trustwotd/internal/errs"
)

// Breakdown is the itemized contribution of each signal to a trust score,
// returned alongside the final score for explainability (spec §4.6).
type Breakdown struct {
	DistanceContribution   float64
	ValidatorContributions map[string]float64
	RawSum                 float64 // before clamping
	Score                  float64 // clamped, 2dp-rounded
}

// Calculator is the TrustCalculator (C6).
type Calculator struct{}

// New constructs a Calculator. It holds no state: weight profiles and
// validator results are passed per call so callers may score concurrently
// under different profiles.
func New() *Calculator { return &Calculator{} }

// distanceWeightKey is the overrideWeights key that overrides
// profile.DistanceWeight rather than a validator's weight (spec §4.6 step
// 1's worked example: `{ distanceWeight: 0.8, validators: { ... } }`
// flattened to a single map).
const distanceWeightKey = "distanceWeight"

// Score combines normalizedDistance in [0,1] and validatorResults (keyed by
// validator name) under profile into a single trust score, clamped to
// [0,1] and rounded to 2 decimal places (spec §4.6, §8).
//
// overrideWeights, when non-empty, is overlaid onto profile's weights
// before scoring (spec §4.6 step 1): the key "distanceWeight" overrides
// profile.DistanceWeight, every other key overrides (or adds) the named
// validator's weight. The overlaid sum is re-validated against the same
// sum-to-one invariant weights.Registry.Register enforces, but unlike
// Register a violation here is never auto-normalized — it fails the
// request with WeightInvariantViolation (spec §8 scenario 6: an override
// summing to 1.3 must return no score).
//
// Validator names present in the (possibly overridden) weights but absent
// from validatorResults contribute 0.0 (treated as "validator degraded",
// spec §4.3). Names present in validatorResults but absent from the
// weights contribute nothing, matching weights.Registry.ValidateCoverage's
// "extra" diagnostic rather than failing the score.
func (c *Calculator) Score(profile weights.Profile, normalizedDistance float64, validatorResults map[string]float64, overrideWeights map[string]float64) (Breakdown, error) {
	distanceWeight := profile.DistanceWeight
	validatorWeights := profile.ValidatorWeights

	if len(overrideWeights) > 0 {
		merged := make(map[string]float64, len(validatorWeights)+len(overrideWeights))
		for name, w := range validatorWeights {
			merged[name] = w
		}
		for name, w := range overrideWeights {
			if name == distanceWeightKey {
				distanceWeight = w
				continue
			}
			merged[name] = w
		}
		validatorWeights = merged

		overlaidSum := distanceWeight
		for _, w := range validatorWeights {
			overlaidSum += w
		}
		if overlaidSum < 1-weights.Epsilon || overlaidSum > 1+weights.Epsilon {
			return Breakdown{}, errs.New(errs.WeightInvariantViolation,
				fmt.Sprintf("override weight sum %.4f is not within %.2f of 1.0", overlaidSum, weights.Epsilon))
		}
	}

	distanceContribution := distanceWeight * normalizedDistance

	contributions := make(map[string]float64, len(validatorWeights))
	weightedSum := distanceContribution
	totalWeight := distanceWeight
	for name, w := range validatorWeights {
		v := validatorResults[name]
		contribution := w * v
		contributions[name] = contribution
		weightedSum += contribution
		totalWeight += w
	}

	// score = Σ w·v / Σ w (spec §8); totalWeight is within 1±Epsilon of 1.0
	// for any profile admitted by weights.Registry.Register (or any override
	// that passed the re-validation above), but dividing explicitly keeps
	// the result exact rather than assuming Σw == 1.
	sum := weightedSum
	if totalWeight > 0 {
		sum = weightedSum / totalWeight
	}

	clamped := math.Max(0, math.Min(1, sum))
	rounded := math.Round(clamped*100) / 100

	return Breakdown{
		DistanceContribution:   distanceContribution,
		ValidatorContributions: contributions,
		RawSum:                 sum,
		Score:                  rounded,
	}, nil
}

// Reweight re-scores an already-evaluated set of signals under a different
// registered profile. The profile is looked up in the registry, so it has
// already passed Registry.Register's sum-to-one check; Reweight performs
// no further weight check of its own.
func (c *Calculator) Reweight(registry *weights.Registry, profileName string, normalizedDistance float64, validatorResults map[string]float64) (Breakdown, error) {
	p, err := registry.Get(profileName)
	if err != nil {
		return Breakdown{}, errs.Wrap(errs.ProfileNotFound, err, "reweight: profile lookup")
	}
	return c.Score(p, normalizedDistance, validatorResults, nil)
}
