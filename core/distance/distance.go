// Package distance implements the pure hop-distance-to-weight mapping used
// by the trust calculator (spec §4.1). It holds no state beyond its
// immutable configuration and a registry of named decay profiles.
package distance

import (
	"math"

	"trustwotd/internal/errs"
)

// Unreachable is the sentinel distance meaning "no path found".
const Unreachable = 1000

// Family selects which decay curve a Profile uses for distances >= 2.
type Family string

const (
	// Linear applies max(0, 1 - alpha*(d-1)) for 2 <= d < maxDistance.
	Linear Family = "linear"
	// Exponential applies exp(-alpha*d), clamping d<=1 to 1.0 and d==maxDistance to 0.0.
	Exponential Family = "exponential"
)

// Profile configures one normalization curve.
type Profile struct {
	Name        string
	Family      Family
	DecayFactor float64 // alpha > 0
	MaxDistance int     // M > 0
	SelfWeight  float64 // s in [0,1]
}

// Default is the deployment's chosen family (spec §9 Open Question i:
// linear decay matches the worked examples and boundary tests verbatim).
var Default = Profile{
	Name:        "default",
	Family:      Linear,
	DecayFactor: 0.1,
	MaxDistance: 1000,
	SelfWeight:  1.0,
}

// Named decay profiles selectable by name (§4.1).
var Named = map[string]Profile{
	"default":      Default,
	"conservative": {Name: "conservative", Family: Linear, DecayFactor: 0.2, MaxDistance: 1000, SelfWeight: 1.0},
	"progressive":  {Name: "progressive", Family: Linear, DecayFactor: 0.05, MaxDistance: 1000, SelfWeight: 1.0},
	"strict":       {Name: "strict", Family: Linear, DecayFactor: 0.3, MaxDistance: 1000, SelfWeight: 1.0},
	"extended":     {Name: "extended", Family: Linear, DecayFactor: 0.025, MaxDistance: 1000, SelfWeight: 1.0},
	"balanced":     {Name: "balanced", Family: Linear, DecayFactor: 0.15, MaxDistance: 1000, SelfWeight: 1.0},
	"exponential":  {Name: "exponential", Family: Exponential, DecayFactor: 0.1, MaxDistance: 1000, SelfWeight: 1.0},
}

// Normalizer is a configured DistanceNormalizer (C1).
type Normalizer struct {
	profile Profile
}

// New constructs a Normalizer from a profile. A non-positive DecayFactor or
// MaxDistance and an empty Family are filled with Default's values so
// callers may supply a partial override; SelfWeight and Name are used as
// given.
func New(p Profile) *Normalizer {
	if p.DecayFactor <= 0 {
		p.DecayFactor = Default.DecayFactor
	}
	if p.MaxDistance <= 0 {
		p.MaxDistance = Default.MaxDistance
	}
	if p.Family == "" {
		p.Family = Default.Family
	}
	return &Normalizer{profile: p}
}

// Normalize maps an integer hop distance to a weight in [0,1] (§4.1).
func (n *Normalizer) Normalize(distance int) (float64, error) {
	if distance < 0 {
		return 0, errs.New(errs.InvalidInput, "distance must be non-negative")
	}

	p := n.profile
	switch {
	case distance == 0:
		return p.SelfWeight, nil
	case distance == 1:
		// A direct follow is always full weight, regardless of maxDistance.
		return 1.0, nil
	case distance >= p.MaxDistance:
		return 0.0, nil
	}

	switch p.Family {
	case Exponential:
		w := math.Exp(-p.DecayFactor * float64(distance))
		if w < 0 {
			w = 0
		}
		if w > 1 {
			w = 1
		}
		return w, nil
	default: // Linear
		w := 1 - p.DecayFactor*float64(distance-1)
		if w < 0 {
			w = 0
		}
		return w, nil
	}
}

// ZeroWeightThreshold returns the smallest distance at which the linear
// family reaches exactly zero weight: ceil(1 + 1/alpha).
func (n *Normalizer) ZeroWeightThreshold() int {
	return int(math.Ceil(1 + 1/n.profile.DecayFactor))
}
