// Package service implements the ScoreService (spec §4.7): the orchestrator
// that composes the graph, weight registry, validator registry, distance
// normalizer, trust calculator, and cache into the public scoring surface.
//
// Grounded on the teacher's cmd/explorer wiring style (one struct holding
// every subsystem, thin methods delegating to each), and on
// golang.org/x/sync's semaphore package (pack: used across the corpus for
// bounded fan-out) for calculateTrustScoresBatch's concurrency cap.
package service

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/sync/semaphore"

	"trustwotd/core/cache"
	"trustwotd/core/distance"
	"trustwotd/core/graph"
	"trustwotd/core/trust"
	"trustwotd/core/validators"
	"trustwotd/core/weights"
	"trustwotd/internal/errs"
	"trustwotd/pkg/pubkey"
)

// BatchConcurrency bounds how many targets calculateTrustScoresBatch scores
// at once (spec §5).
const BatchConcurrency = 5

// ScoredProfile is the result of scoring a single target (spec §4.7).
type ScoredProfile struct {
	Pubkey    pubkey.Key         `json:"pubkey"`
	Score     float64            `json:"score"`
	Distance  int                `json:"distance"`
	Metrics   map[string]float64 `json:"metrics"`
	FromCache bool               `json:"fromCache"`
}

// Stats aggregates subsystem stats for operators (spec §4.7 getStats).
type Stats struct {
	Graph        graph.Stats `json:"graph"`
	Cache        cache.Stats `json:"cache"`
	CacheEntries int         `json:"cacheEntries"`
}

// ProfileMatch is one searchProfiles result.
type ProfileMatch struct {
	Pubkey pubkey.Key `json:"pubkey"`
	Nip05  string     `json:"nip05"`
}

// Service is the ScoreService (C7).
type Service struct {
	graph      *graph.Graph
	weights    *weights.Registry
	validators *validators.Registry
	normalizer *distance.Normalizer
	calculator *trust.Calculator
	cache      *cache.Cache
	source     validators.Source
}

// New wires the scoring pipeline from its components.
func New(
	g *graph.Graph,
	w *weights.Registry,
	v *validators.Registry,
	n *distance.Normalizer,
	c *cache.Cache,
	source validators.Source,
) *Service {
	return &Service{
		graph:      g,
		weights:    w,
		validators: v,
		normalizer: n,
		calculator: trust.New(),
		cache:      c,
		source:     source,
	}
}

// CalculateTrustScoreParams is the input to CalculateTrustScore (spec §4.7:
// calculateTrustScore({targetPubkey, sourcePubkey?, scheme?, forceRefresh?})).
// SourcePubkey, Scheme, and ForceRefresh are all optional: the zero values
// (empty key, empty scheme, false) reproduce the graph's current root, the
// active weight profile, and normal cache behavior respectively.
type CalculateTrustScoreParams struct {
	TargetPubkey pubkey.Key
	SourcePubkey pubkey.Key
	Scheme       string
	ForceRefresh bool
}

// CalculateTrustScore computes (or returns a cached) trust score for
// params.TargetPubkey (spec §4.7, §4.1).
//
// SourcePubkey, when set and different from the graph's current root, scores
// from that vantage point via graph.GetDistanceBetween rather than mutating
// the graph's shared root — CalculateTrustScoresBatch scores many targets
// concurrently under one Service, so a per-call source override must not
// have a visible side effect on other concurrent callers.
//
// Scheme, when set, selects a weight profile by name instead of the active
// one (resolveProfile). ForceRefresh bypasses the cache read (but the fresh
// result is still written back to the cache, keeping later uncached reads
// warm).
func (s *Service) CalculateTrustScore(ctx context.Context, params CalculateTrustScoreParams) (ScoredProfile, error) {
	target := params.TargetPubkey
	root := s.graph.Root()
	source := root
	if params.SourcePubkey != "" {
		source = params.SourcePubkey
	}

	profile, err := s.resolveProfile(params.Scheme)
	if err != nil {
		return ScoredProfile{}, err
	}

	if !params.ForceRefresh {
		if cached, ok := s.cache.Get(cache.Key{Pubkey: target, SourcePubkey: source}); ok {
			d := s.distanceFrom(source, target)
			score, err := s.scoreFromMetrics(profile, cached.Metrics, d)
			if err != nil {
				return ScoredProfile{}, err
			}
			return ScoredProfile{Pubkey: target, Score: score, Distance: d, Metrics: cached.Metrics, FromCache: true}, nil
		}
	}

	d := s.distanceFrom(source, target)
	normalizedDistance, err := s.normalizer.Normalize(d)
	if err != nil {
		return ScoredProfile{}, errs.Wrap(errs.InvalidInput, err, "normalize distance")
	}

	metrics := s.validators.Evaluate(ctx, validators.Input{Root: source, Target: target})
	breakdown, err := s.calculator.Score(profile, normalizedDistance, metrics, nil)
	if err != nil {
		return ScoredProfile{}, err
	}

	if err := s.cache.Set(cache.Key{Pubkey: target, SourcePubkey: source}, metrics, 0); err != nil {
		return ScoredProfile{}, err
	}

	return ScoredProfile{Pubkey: target, Score: breakdown.Score, Distance: d, Metrics: metrics, FromCache: false}, nil
}

// distanceFrom returns the distance from source to target, using the cheap
// direct lookup when source is already the graph's active root.
func (s *Service) distanceFrom(source, target pubkey.Key) int {
	if source == s.graph.Root() {
		return s.graph.GetDistance(target)
	}
	return s.graph.GetDistanceBetween(source, target)
}

// resolveProfile looks up scheme in the weight registry, or falls back to
// the active profile when scheme is empty (spec §4.7's optional "scheme").
func (s *Service) resolveProfile(scheme string) (weights.Profile, error) {
	if scheme == "" {
		return s.weights.GetActive()
	}
	return s.weights.Get(scheme)
}

func (s *Service) scoreFromMetrics(profile weights.Profile, metrics map[string]float64, d int) (float64, error) {
	normalizedDistance, err := s.normalizer.Normalize(d)
	if err != nil {
		return 0, errs.Wrap(errs.InvalidInput, err, "normalize distance")
	}
	breakdown, err := s.calculator.Score(profile, normalizedDistance, metrics, nil)
	if err != nil {
		return 0, err
	}
	return breakdown.Score, nil
}

// batchResult threads the original index through so ordering survives
// out-of-order completion under bounded concurrency.
type batchResult struct {
	index   int
	profile ScoredProfile
	err     error
}

// CalculateTrustScoresBatch scores every target, preserving input order in
// the returned slice, with at most BatchConcurrency scored concurrently
// (spec §5). A single target's error does not abort the batch; its slot
// carries the zero ScoredProfile and its error sits at the same index of
// the returned error slice.
func (s *Service) CalculateTrustScoresBatch(ctx context.Context, targets []pubkey.Key) ([]ScoredProfile, []error) {
	results := make([]ScoredProfile, len(targets))
	errsOut := make([]error, len(targets))

	sem := semaphore.NewWeighted(BatchConcurrency)
	out := make(chan batchResult, len(targets))

	for i, target := range targets {
		i, target := i, target
		if err := sem.Acquire(ctx, 1); err != nil {
			out <- batchResult{index: i, err: err}
			continue
		}
		go func() {
			defer sem.Release(1)
			profile, err := s.CalculateTrustScore(ctx, CalculateTrustScoreParams{TargetPubkey: target})
			out <- batchResult{index: i, profile: profile, err: err}
		}()
	}

	for range targets {
		r := <-out
		results[r.index] = r.profile
		errsOut[r.index] = r.err
	}
	return results, errsOut
}

// SearchProfiles scans known graph users for a case-insensitive nip05
// substring match, bounded to limit results (spec §4.7).
func (s *Service) SearchProfiles(ctx context.Context, query string, limit int) ([]ProfileMatch, error) {
	if limit <= 0 {
		limit = 20
	}
	query = strings.ToLower(strings.TrimSpace(query))
	users := s.graph.Users()
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })

	var matches []ProfileMatch
	for _, u := range users {
		if len(matches) >= limit {
			break
		}
		meta, err := s.source.FetchMetadata(ctx, u)
		if err != nil {
			continue
		}
		if query == "" || strings.Contains(strings.ToLower(meta.Nip05), query) {
			matches = append(matches, ProfileMatch{Pubkey: u, Nip05: meta.Nip05})
		}
	}
	return matches, nil
}

// Root returns the graph's current root pubkey.
func (s *Service) Root() pubkey.Key {
	return s.graph.Root()
}

// GetStats reports aggregate graph and cache statistics.
func (s *Service) GetStats() Stats {
	return Stats{
		Graph:        s.graph.Stats(),
		Cache:        s.cache.Stats(),
		CacheEntries: s.cache.TotalEntries(),
	}
}
