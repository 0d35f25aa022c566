package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"trustwotd/core/ratelimit"
	"trustwotd/core/service"
	"trustwotd/internal/errs"
	"trustwotd/pkg/pubkey"
)

// TAState is the optional trusted-assertion side-service's persisted
// control surface: the core owns only its enabled flag and relay list,
// never the service's own logic (spec §6 manage_ta).
type TAState struct {
	Enabled bool     `json:"enabled"`
	Relays  []string `json:"relays"`
}

// ToolRouter is the RPC surface (C9): dispatches signed envelopes to the
// five tools exposed in spec §6, rate-limiting every call by clientPubkey.
type ToolRouter struct {
	svc      *service.Service
	limiters *ratelimit.Registry
	log      logrus.FieldLogger

	taMu sync.Mutex
	ta   TAState
}

// NewToolRouter wires a router over an already-constructed Service.
func NewToolRouter(svc *service.Service, limiters *ratelimit.Registry, log logrus.FieldLogger) *ToolRouter {
	if log == nil {
		log = logrus.New()
	}
	return &ToolRouter{svc: svc, limiters: limiters, log: log}
}

// Handle dispatches req to its named tool, enforcing rate limiting first
// (spec §5 "every externally-invoked tool handler is wrapped in acquire").
func (t *ToolRouter) Handle(ctx context.Context, req Request) Response {
	if !t.limiters.For(req.ClientPubkey).Acquire(1) {
		return errorResponse(req.ID, string(errs.RateLimitExceeded), "rate limit exceeded for client")
	}

	start := time.Now()
	switch req.ToolName {
	case "calculate_trust_score":
		return t.handleCalculateTrustScore(ctx, req, start)
	case "calculate_trust_scores":
		return t.handleCalculateTrustScores(ctx, req, start)
	case "stats":
		return t.handleStats(req)
	case "search_profiles":
		return t.handleSearchProfiles(ctx, req, start)
	case "manage_ta":
		return t.handleManageTA(req)
	default:
		return errorResponse(req.ID, string(errs.InvalidInput), fmt.Sprintf("unknown tool %q", req.ToolName))
	}
}

type calculateTrustScoreArgs struct {
	TargetPubkey string `json:"targetPubkey"`
	SourcePubkey string `json:"sourcePubkey,omitempty"`
	Scheme       string `json:"scheme,omitempty"`
	ForceRefresh bool   `json:"forceRefresh,omitempty"`
}

func (t *ToolRouter) handleCalculateTrustScore(ctx context.Context, req Request, start time.Time) Response {
	var args calculateTrustScoreArgs
	if err := json.Unmarshal(req.Args, &args); err != nil {
		return errorResponse(req.ID, string(errs.InvalidInput), "malformed args: "+err.Error())
	}
	target, err := pubkey.Canonicalize(args.TargetPubkey)
	if err != nil {
		return errorResponse(req.ID, string(errs.InvalidInput), "invalid targetPubkey: "+err.Error())
	}
	var source pubkey.Key
	if args.SourcePubkey != "" {
		source, err = pubkey.Canonicalize(args.SourcePubkey)
		if err != nil {
			return errorResponse(req.ID, string(errs.InvalidInput), "invalid sourcePubkey: "+err.Error())
		}
	}

	scored, err := t.svc.CalculateTrustScore(ctx, service.CalculateTrustScoreParams{
		TargetPubkey: target,
		SourcePubkey: source,
		Scheme:       args.Scheme,
		ForceRefresh: args.ForceRefresh,
	})
	if err != nil {
		return errorResponse(req.ID, string(errs.KindOf(err)), err.Error())
	}
	return okResponse(req.ID, map[string]any{
		"trustScore":        scored,
		"computationTimeMs": time.Since(start).Milliseconds(),
	})
}

type calculateTrustScoresArgs struct {
	TargetPubkeys []string `json:"targetPubkeys"`
}

func (t *ToolRouter) handleCalculateTrustScores(ctx context.Context, req Request, start time.Time) Response {
	var args calculateTrustScoresArgs
	if err := json.Unmarshal(req.Args, &args); err != nil {
		return errorResponse(req.ID, string(errs.InvalidInput), "malformed args: "+err.Error())
	}
	if len(args.TargetPubkeys) == 0 {
		return errorResponse(req.ID, string(errs.InvalidInput), "targetPubkeys must be non-empty")
	}

	// Dedup while preserving first-seen order; invalid entries are
	// silently skipped (spec §6).
	seen := make(map[pubkey.Key]struct{}, len(args.TargetPubkeys))
	var targets []pubkey.Key
	for _, raw := range args.TargetPubkeys {
		k, err := pubkey.Canonicalize(raw)
		if err != nil {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		targets = append(targets, k)
	}
	if len(targets) == 0 {
		return errorResponse(req.ID, string(errs.InvalidInput), "no valid targetPubkeys after canonicalization")
	}

	scores, errList := t.svc.CalculateTrustScoresBatch(ctx, targets)
	for i, err := range errList {
		if err != nil {
			t.log.WithError(err).WithField("target", targets[i]).Warn("batch member failed to score")
		}
	}
	return okResponse(req.ID, map[string]any{
		"trustScores":       scores,
		"computationTimeMs": time.Since(start).Milliseconds(),
	})
}

func (t *ToolRouter) handleStats(req Request) Response {
	stats := t.svc.GetStats()
	return okResponse(req.ID, map[string]any{
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
		"sourcePubkey": string(req.ClientPubkey),
		"database": map[string]any{
			"metrics":  map[string]any{"totalEntries": stats.CacheEntries},
			"metadata": map[string]any{"totalEntries": stats.CacheEntries},
		},
		"socialGraph": map[string]any{
			"stats":      map[string]any{"users": stats.Graph.Users, "follows": stats.Graph.Follows},
			"rootPubkey": t.svc.Root(),
		},
	})
}

type searchProfilesArgs struct {
	Query         string `json:"query"`
	Limit         int    `json:"limit"`
	ExtendToNostr bool   `json:"extendToNostr"`
}

func (t *ToolRouter) handleSearchProfiles(ctx context.Context, req Request, start time.Time) Response {
	var args searchProfilesArgs
	if err := json.Unmarshal(req.Args, &args); err != nil {
		return errorResponse(req.ID, string(errs.InvalidInput), "malformed args: "+err.Error())
	}
	if len(args.Query) > 100 {
		return errorResponse(req.ID, string(errs.InvalidInput), "query must be at most 100 characters")
	}
	limit := args.Limit
	if limit == 0 {
		limit = 7
	}
	if limit < 1 || limit > 50 {
		return errorResponse(req.ID, string(errs.InvalidInput), "limit must be in [1,50]")
	}

	matches, err := t.svc.SearchProfiles(ctx, args.Query, limit)
	if err != nil {
		return errorResponse(req.ID, string(errs.KindOf(err)), err.Error())
	}

	type result struct {
		Pubkey     pubkey.Key `json:"pubkey"`
		TrustScore float64    `json:"trustScore"`
		Rank       int        `json:"rank"`
		ExactMatch bool       `json:"exactMatch,omitempty"`
	}
	results := make([]result, 0, len(matches))
	for _, m := range matches {
		scored, err := t.svc.CalculateTrustScore(ctx, service.CalculateTrustScoreParams{TargetPubkey: m.Pubkey})
		if err != nil {
			continue
		}
		results = append(results, result{
			Pubkey:     m.Pubkey,
			TrustScore: scored.Score,
			ExactMatch: m.Nip05 == args.Query,
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].TrustScore > results[j].TrustScore })
	for i := range results {
		results[i].Rank = i + 1
	}

	return okResponse(req.ID, map[string]any{
		"results":      results,
		"totalFound":   len(results),
		"searchTimeMs": time.Since(start).Milliseconds(),
	})
}

type manageTAArgs struct {
	Action       string   `json:"action"`
	CustomRelays []string `json:"customRelays,omitempty"`
}

func (t *ToolRouter) handleManageTA(req Request) Response {
	var args manageTAArgs
	if err := json.Unmarshal(req.Args, &args); err != nil {
		return errorResponse(req.ID, string(errs.InvalidInput), "malformed args: "+err.Error())
	}

	t.taMu.Lock()
	defer t.taMu.Unlock()

	switch args.Action {
	case "get":
		// no-op, fall through to the response below
	case "enable":
		t.ta.Enabled = true
		if len(args.CustomRelays) > 0 {
			t.ta.Relays = args.CustomRelays
		}
	case "disable":
		t.ta.Enabled = false
	default:
		return errorResponse(req.ID, string(errs.InvalidInput), fmt.Sprintf("unknown manage_ta action %q", args.Action))
	}

	return okResponse(req.ID, t.ta)
}
