package distance

import "testing"

func TestNormalizeDefaultProfile(t *testing.T) {
	n := New(Default)

	cases := []struct {
		distance int
		want     float64
	}{
		{0, 1.0},
		{1, 1.0},
		{2, 0.9},
		{11, 0.0}, // zero-weight threshold at alpha=0.1 is ceil(1+10)=11
		{Unreachable, 0.0},
	}
	for _, c := range cases {
		got, err := n.Normalize(c.distance)
		if err != nil {
			t.Fatalf("normalize(%d): %v", c.distance, err)
		}
		if got < c.want-1e-9 || got > c.want+1e-9 {
			t.Errorf("normalize(%d) = %v, want %v", c.distance, got, c.want)
		}
	}
}

func TestNormalizeRejectsNegative(t *testing.T) {
	n := New(Default)
	if _, err := n.Normalize(-1); err == nil {
		t.Fatal("expected error for negative distance")
	}
}

func TestNormalizeBounded(t *testing.T) {
	n := New(Default)
	for d := 0; d < 1500; d++ {
		w, err := n.Normalize(d)
		if err != nil {
			t.Fatalf("normalize(%d): %v", d, err)
		}
		if w < 0 || w > 1 {
			t.Errorf("normalize(%d) = %v out of [0,1]", d, w)
		}
	}
}

// TestDecayAlphaOne verifies the §8 boundary behavior: under alpha=1.0,
// normalize(1)=1 and normalize(2)=0.
func TestDecayAlphaOne(t *testing.T) {
	n := New(Profile{Family: Linear, DecayFactor: 1.0, MaxDistance: 1000, SelfWeight: 1.0})
	if w, _ := n.Normalize(1); w != 1.0 {
		t.Errorf("normalize(1) = %v, want 1.0", w)
	}
	if w, _ := n.Normalize(2); w != 0.0 {
		t.Errorf("normalize(2) = %v, want 0.0", w)
	}
}

// TestMaxDistanceOne verifies the §8 boundary behavior for maxDistance=1.
func TestMaxDistanceOne(t *testing.T) {
	n := New(Profile{Family: Linear, DecayFactor: 0.1, MaxDistance: 1, SelfWeight: 0.42})
	if w, _ := n.Normalize(0); w != 0.42 {
		t.Errorf("normalize(0) = %v, want selfWeight 0.42", w)
	}
	// distance 1 is always full weight, even when maxDistance=1.
	if w, _ := n.Normalize(1); w != 1.0 {
		t.Errorf("normalize(1) = %v, want 1.0", w)
	}
	if w, _ := n.Normalize(2); w != 0.0 {
		t.Errorf("normalize(2) = %v, want 0.0 when maxDistance=1", w)
	}
}

func TestExponentialFamilyClamps(t *testing.T) {
	n := New(Profile{Family: Exponential, DecayFactor: 0.1, MaxDistance: 5, SelfWeight: 1.0})
	if w, _ := n.Normalize(1); w != 1.0 {
		t.Errorf("normalize(1) = %v, want 1.0 (clamped)", w)
	}
	if w, _ := n.Normalize(5); w != 0.0 {
		t.Errorf("normalize(5) = %v, want 0.0 at maxDistance", w)
	}
}
