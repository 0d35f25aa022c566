// Package validators implements the pluggable validator surface (spec §4.3):
// a registry of named signal plugins, each producing a score in [0,1] for a
// target pubkey, evaluated under a per-call timeout and never propagating a
// failure past a 0.0 degrade.
//
// Grounded on other_examples' wot-scoring use of github.com/nbd-wtf/go-nostr
// (+ nip05) for identifier verification and kind-10002 relay-list semantics,
// and on the teacher's core/access_control.go singleton registry shape
// (sync.Once-guarded package state) adapted here to an injectable,
// non-singleton Registry so multiple weight profiles can share one process.
package validators

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr/nip05"
	"github.com/sirupsen/logrus"

	"trustwotd/core/graph"
	"trustwotd/pkg/pubkey"
)

// DefaultTimeout bounds a single validator's Evaluate call (spec §4.3).
const DefaultTimeout = 5 * time.Second

// Metadata is the subset of a kind-0 profile event relevant to validators.
type Metadata struct {
	Nip05 string
	Lud16 string // lightning address, e.g. "name@domain"
	Lud06 string // LNURL, bech32 "lnurl1..." or an absolute http(s) URL
}

// Source abstracts the Nostr data a validator needs, so validators never
// talk to relays directly (spec Non-goals: no protocol implementation here).
type Source interface {
	FetchMetadata(ctx context.Context, target pubkey.Key) (Metadata, error)
	FetchRelayList(ctx context.Context, target pubkey.Key) ([]string, error)
}

// Input is what a validator is asked to score.
type Input struct {
	Root   pubkey.Key
	Target pubkey.Key
}

// Validator is a single named scoring plugin.
type Validator interface {
	Name() string
	Evaluate(ctx context.Context, in Input) float64
}

// nip05Valid checks that the target's nip05 identifier resolves back to the
// target's own pubkey.
type nip05Valid struct{ source Source }

func NewNip05Valid(source Source) Validator { return nip05Valid{source: source} }

func (v nip05Valid) Name() string { return "nip05Valid" }

func (v nip05Valid) Evaluate(ctx context.Context, in Input) float64 {
	meta, err := v.source.FetchMetadata(ctx, in.Target)
	if err != nil || meta.Nip05 == "" {
		return 0.0
	}
	return scoreNip05(ctx, meta.Nip05, in.Target)
}

// lightningAddress checks that the target's profile carries a syntactically
// valid lud16 lightning address or lud06 LNURL (spec §4.3 item 2).
type lightningAddress struct{ source Source }

func NewLightningAddress(source Source) Validator { return lightningAddress{source: source} }

func (v lightningAddress) Name() string { return "lightningAddress" }

func (v lightningAddress) Evaluate(ctx context.Context, in Input) float64 {
	meta, err := v.source.FetchMetadata(ctx, in.Target)
	if err != nil {
		return 0.0
	}
	if meta.Lud16 != "" && isValidLightningAddress(meta.Lud16) {
		return 1.0
	}
	if meta.Lud06 != "" && isValidLNURL(meta.Lud06) {
		return 1.0
	}
	return 0.0
}

// eventKind10002 checks the target has published a non-empty relay list.
type eventKind10002 struct{ source Source }

func NewEventKind10002(source Source) Validator { return eventKind10002{source: source} }

func (v eventKind10002) Name() string { return "eventKind10002" }

func (v eventKind10002) Evaluate(ctx context.Context, in Input) float64 {
	relays, err := v.source.FetchRelayList(ctx, in.Target)
	if err != nil || len(relays) == 0 {
		return 0.0
	}
	return 1.0
}

// reciprocity checks whether root and target mutually follow each other.
type reciprocity struct{ g *graph.Graph }

func NewReciprocity(g *graph.Graph) Validator { return reciprocity{g: g} }

func (v reciprocity) Name() string { return "reciprocity" }

func (v reciprocity) Evaluate(_ context.Context, in Input) float64 {
	if v.g == nil {
		return 0.0
	}
	if v.g.AreMutualFollows(in.Root, in.Target) {
		return 1.0
	}
	return 0.0
}

// isRootNip05 checks that the TARGET's own nip05 identifier canonicalizes to
// the root-identity form "_@domain" (spec §4.3 item 5) — a pure string
// check, unlike nip05Valid which resolves the identifier over the network.
type isRootNip05 struct{ source Source }

func NewIsRootNip05(source Source) Validator { return isRootNip05{source: source} }

func (v isRootNip05) Name() string { return "isRootNip05" }

func (v isRootNip05) Evaluate(ctx context.Context, in Input) float64 {
	meta, err := v.source.FetchMetadata(ctx, in.Target)
	if err != nil || meta.Nip05 == "" {
		return 0.0
	}
	local, _, ok := canonicalizeNip05(meta.Nip05)
	if !ok || local != "_" {
		return 0.0
	}
	return 1.0
}

// canonicalizeNip05 splits identifier into its local and domain parts per
// NIP-05: an identifier with no "@" is shorthand for local part "_" (the
// root identity of its domain). Returns ok=false for a malformed identifier
// (empty domain, or more than one "@").
func canonicalizeNip05(identifier string) (local, domain string, ok bool) {
	parts := strings.Split(identifier, "@")
	switch len(parts) {
	case 1:
		if parts[0] == "" {
			return "", "", false
		}
		return "_", parts[0], true
	case 2:
		if parts[0] == "" || parts[1] == "" {
			return "", "", false
		}
		return parts[0], parts[1], true
	default:
		return "", "", false
	}
}

func scoreNip05(ctx context.Context, identifier string, owner pubkey.Key) float64 {
	pointer, err := nip05.QueryIdentifier(ctx, identifier)
	if err != nil || pointer == nil {
		return 0.0
	}
	if pubkey.Key(pointer.PublicKey) == owner {
		return 1.0
	}
	return 0.0
}

// Registry is the ValidatorRegistry (C3): an ordered set of validators,
// each evaluated under its own timeout. A validator that panics or exceeds
// its timeout degrades to 0.0 rather than failing the whole batch (spec
// §4.3 "never throw").
type Registry struct {
	mu         sync.RWMutex
	validators []Validator
	timeout    time.Duration
	log        logrus.FieldLogger
}

// New constructs a registry with the given per-validator timeout. A
// non-positive timeout defaults to DefaultTimeout.
func New(timeout time.Duration, log logrus.FieldLogger) *Registry {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = logrus.New()
	}
	return &Registry{timeout: timeout, log: log}
}

// Register appends a validator. Order is preserved for Names() and
// Evaluate()'s deterministic iteration.
func (r *Registry) Register(v Validator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validators = append(r.validators, v)
}

// Names returns the registered validator names in registration order, used
// by weights.Registry.ValidateCoverage.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.validators))
	for i, v := range r.validators {
		names[i] = v.Name()
	}
	return names
}

// Evaluate runs every registered validator against in, each under its own
// timeout derived from ctx, and returns a map keyed by validator name. A
// validator whose call panics, errors, or times out contributes 0.0 and is
// logged, never aborting the other validators.
func (r *Registry) Evaluate(ctx context.Context, in Input) map[string]float64 {
	r.mu.RLock()
	vs := make([]Validator, len(r.validators))
	copy(vs, r.validators)
	r.mu.RUnlock()

	results := make(map[string]float64, len(vs))
	for _, v := range vs {
		results[v.Name()] = r.evaluateOne(ctx, v, in)
	}
	return results
}

func (r *Registry) evaluateOne(ctx context.Context, v Validator, in Input) (score float64) {
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	done := make(chan float64, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.log.WithField("validator", v.Name()).Errorf("validator panicked, degrading to 0.0: %v", rec)
				done <- 0.0
			}
		}()
		done <- v.Evaluate(callCtx, in)
	}()

	select {
	case s := <-done:
		return s
	case <-callCtx.Done():
		r.log.WithField("validator", v.Name()).Warn("validator timed out, degrading to 0.0")
		return 0.0
	}
}
