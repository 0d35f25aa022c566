package trust

import (
	"testing"

	"trustwotd/internal/errs"

	"trustwotd/core/weights"
)

func profile() weights.Profile {
	return weights.Profile{
		Name:           "default",
		DistanceWeight: 0.5,
		ValidatorWeights: map[string]float64{
			"nip05Valid":       0.2,
			"lightningAddress": 0.1,
			"reciprocity":      0.2,
		},
	}
}

func TestScoreFullSignals(t *testing.T) {
	c := New()
	b, err := c.Score(profile(), 1.0, map[string]float64{
		"nip05Valid":       1.0,
		"lightningAddress": 1.0,
		"reciprocity":      1.0,
	}, nil)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if b.Score != 1.0 {
		t.Fatalf("expected score 1.0, got %v", b.Score)
	}
}

func TestScoreMissingValidatorDegradesToZero(t *testing.T) {
	c := New()
	b, err := c.Score(profile(), 1.0, map[string]float64{"nip05Valid": 1.0}, nil)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	// 0.5*1 + 0.2*1 + 0.1*0 + 0.2*0 = 0.7
	if b.Score != 0.7 {
		t.Fatalf("expected 0.7, got %v", b.Score)
	}
}

func TestScoreIsWeightedAverageNotRawSum(t *testing.T) {
	c := New()
	// distanceWeight + validator weight sums to 1.2, outside the profile
	// invariant a Registry would admit, but Score must still normalize by
	// total weight rather than returning an out-of-range raw sum.
	p := weights.Profile{DistanceWeight: 0.9, ValidatorWeights: map[string]float64{"x": 0.3}}
	b, err := c.Score(p, 1.0, map[string]float64{"x": 1.0}, nil)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if b.Score != 1.0 {
		t.Fatalf("expected normalized score 1.0, got %v", b.Score)
	}
}

func TestScoreStaysWithinUnitRange(t *testing.T) {
	c := New()
	p := weights.Profile{DistanceWeight: 0.5, ValidatorWeights: map[string]float64{"x": 0.5}}
	b, err := c.Score(p, 0.0, map[string]float64{"x": 0.0}, nil)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if b.Score < 0 || b.Score > 1 {
		t.Fatalf("expected score in [0,1], got %v", b.Score)
	}
}

func TestScoreRoundsToTwoDecimals(t *testing.T) {
	c := New()
	p := weights.Profile{DistanceWeight: 1.0}
	b, err := c.Score(p, 0.333, nil, nil)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if b.Score != 0.33 {
		t.Fatalf("expected rounding to 0.33, got %v", b.Score)
	}
}

func TestScoreOverrideWeightsOverlayProfile(t *testing.T) {
	c := New()
	p := profile()
	// Override distanceWeight and the four validator weights such that the
	// overlaid sum still equals 1.0: 0.6 + 0.1 + 0.1 + 0.1 + 0.1 = 1.0.
	override := map[string]float64{"distanceWeight": 0.6, "nip05Valid": 0.1, "reciprocity": 0.1, "lightningAddress": 0.1, "isRootNip05": 0.1}
	b, err := c.Score(p, 1.0, map[string]float64{"nip05Valid": 1.0, "reciprocity": 1.0, "lightningAddress": 1.0, "isRootNip05": 1.0}, override)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if b.Score != 1.0 {
		t.Fatalf("expected overridden weights to still produce 1.0, got %v", b.Score)
	}
}

func TestScoreOverrideWeightsRejectsInvariantViolation(t *testing.T) {
	c := New()
	p := profile()
	// distanceWeight 0.8 + nip05Valid 0.5 (other weights from the base
	// profile untouched) sums well past 1+Epsilon (spec §8 scenario 6).
	override := map[string]float64{"distanceWeight": 0.8, "nip05Valid": 0.5}
	_, err := c.Score(p, 1.0, map[string]float64{"nip05Valid": 1.0}, override)
	if err == nil {
		t.Fatal("expected WeightInvariantViolation for an override summing past 1+epsilon")
	}
	if errs.KindOf(err) != errs.WeightInvariantViolation {
		t.Fatalf("expected WeightInvariantViolation, got %v", errs.KindOf(err))
	}
}

func TestReweightRejectsUnknownProfile(t *testing.T) {
	c := New()
	r := weights.New(nil)
	_, err := c.Reweight(r, "missing", 1.0, nil)
	if err == nil {
		t.Fatal("expected error for unknown profile")
	}
}

func TestReweightUsesRegisteredProfile(t *testing.T) {
	c := New()
	r := weights.New(nil)
	_ = r.Register(profile())
	b, err := c.Reweight(r, "default", 1.0, map[string]float64{"nip05Valid": 1.0})
	if err != nil {
		t.Fatalf("reweight: %v", err)
	}
	if b.Score <= 0 {
		t.Fatalf("expected positive score, got %v", b.Score)
	}
}
