// Package weights implements the WeightProfileRegistry (spec §4.2): named
// weight profiles enforcing the sum-to-one invariant, with a single
// atomically-activated current profile.
//
// Grounded on the teacher's core/access_control.go registry shape: a
// mutex-guarded map with Grant/Revoke/Has/List-style operations, adapted
// here to immutable-after-registration profiles.
package weights

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"trustwotd/internal/errs"
)

// Epsilon bounds how far a weight sum may drift from 1.0 and still be
// accepted (spec §3).
const Epsilon = 0.01

// Profile is an immutable named weight assignment (spec §3).
type Profile struct {
	Name             string
	DistanceWeight   float64
	ValidatorWeights map[string]float64
}

// sum returns distanceWeight + sum(validatorWeights).
func (p Profile) sum() float64 {
	total := p.DistanceWeight
	for _, w := range p.ValidatorWeights {
		total += w
	}
	return total
}

// CoverageReport is the diagnostic returned by ValidateCoverage (§4.2).
type CoverageReport struct {
	Missing []string // plugin present, no weight
	Extra   []string // weight present, no plugin
}

// Registry is the WeightProfileRegistry (C2). Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]Profile
	active   string
	log      logrus.FieldLogger
}

// New constructs an empty registry. log may be nil, in which case a
// default logrus logger (writing to stderr) is used.
func New(log logrus.FieldLogger) *Registry {
	if log == nil {
		log = logrus.New()
	}
	return &Registry{profiles: make(map[string]Profile), log: log}
}

// Register admits a profile after validating weight negativity and the
// sum-to-one invariant (§4.2). Sums above 1+Epsilon are normalized in place
// (dividing every weight by the sum) and the normalization is logged; sums
// below 1-Epsilon are rejected. The first profile registered becomes active
// automatically.
func (r *Registry) Register(p Profile) error {
	if p.Name == "" {
		return errs.New(errs.InvalidInput, "weight profile name must not be empty")
	}
	if p.DistanceWeight < 0 {
		return errs.New(errs.InvalidInput, "distanceWeight must be non-negative")
	}
	for name, w := range p.ValidatorWeights {
		if w < 0 {
			return errs.New(errs.InvalidInput, fmt.Sprintf("validator weight %q must be non-negative", name))
		}
	}

	sum := p.sum()
	switch {
	case sum < 1-Epsilon:
		return errs.New(errs.WeightInvariantViolation,
			fmt.Sprintf("profile %q weight sum %.4f is below 1-%.2f", p.Name, sum, Epsilon))
	case sum > 1+Epsilon:
		normalized := make(map[string]float64, len(p.ValidatorWeights))
		for name, w := range p.ValidatorWeights {
			normalized[name] = w / sum
		}
		p.DistanceWeight /= sum
		p.ValidatorWeights = normalized
		r.log.Warnf("weight profile %q summed to %.4f, normalized to 1.0", p.Name, sum)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.Name] = p
	if r.active == "" {
		r.active = p.Name
	}
	return nil
}

// Activate sets the current profile by name.
func (r *Registry) Activate(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.profiles[name]; !ok {
		return errs.New(errs.ProfileNotFound, fmt.Sprintf("weight profile %q is not registered", name))
	}
	r.active = name
	return nil
}

// GetActive returns the currently active profile.
func (r *Registry) GetActive() (Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.active == "" {
		return Profile{}, errs.New(errs.ProfileNotFound, "no weight profile is active")
	}
	return r.profiles[r.active], nil
}

// Get returns a named profile.
func (r *Registry) Get(name string) (Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[name]
	if !ok {
		return Profile{}, errs.New(errs.ProfileNotFound, fmt.Sprintf("weight profile %q is not registered", name))
	}
	return p, nil
}

// ValidateCoverage compares registered plugin names against the active
// profile's weighted validator names and reports mismatches (§4.2). This is
// an observability signal only, never a hard failure.
func (r *Registry) ValidateCoverage(pluginNames []string) (CoverageReport, error) {
	active, err := r.GetActive()
	if err != nil {
		return CoverageReport{}, err
	}

	pluginSet := make(map[string]struct{}, len(pluginNames))
	for _, n := range pluginNames {
		pluginSet[n] = struct{}{}
	}
	weightSet := make(map[string]struct{}, len(active.ValidatorWeights))
	for n := range active.ValidatorWeights {
		weightSet[n] = struct{}{}
	}

	var report CoverageReport
	for n := range pluginSet {
		if _, ok := weightSet[n]; !ok {
			report.Missing = append(report.Missing, n)
		}
	}
	for n := range weightSet {
		if _, ok := pluginSet[n]; !ok {
			report.Extra = append(report.Extra, n)
		}
	}
	sort.Strings(report.Missing)
	sort.Strings(report.Extra)
	return report, nil
}
