// Package graph implements the SocialGraph (spec §4.4): an in-memory follow
// graph with a movable root and BFS-derived distances.
//
// Grounded on other_examples' wot-scoring Graph type (RWMutex-guarded
// follows/followers adjacency maps) for the adjacency shape, and on the
// teacher's core/peer_management.go RWMutex-guarded mutable-root pattern.
package graph

import (
	"bytes"
	"encoding/gob"
	"sync"

	"github.com/sirupsen/logrus"

	"trustwotd/internal/errs"
	"trustwotd/pkg/pubkey"
)

// Unreachable is the sentinel distance meaning "no path from root".
const Unreachable = 1000

// Stats summarizes the graph's current size (spec §4.7 getStats).
type Stats struct {
	Users   int
	Follows int
}

// Graph is the SocialGraph (C4). Safe for concurrent use: switchRoot and
// ingest are writers (single-writer/many-reader), getDistance/doesFollow
// are readers.
type Graph struct {
	mu      sync.RWMutex
	follows map[pubkey.Key]map[pubkey.Key]struct{}
	root    pubkey.Key
	dist    map[pubkey.Key]int
	dirty   bool // set on any mutation since the last snapshot
	log     logrus.FieldLogger
}

// New constructs an empty, uninitialized graph. Call Initialize before use.
func New(log logrus.FieldLogger) *Graph {
	if log == nil {
		log = logrus.New()
	}
	return &Graph{
		follows: make(map[pubkey.Key]map[pubkey.Key]struct{}),
		dist:    make(map[pubkey.Key]int),
		log:     log,
	}
}

// Initialize loads a persisted snapshot (if snapshot is non-nil) and sets
// the root, recomputing distances before returning (§4.4).
func (g *Graph) Initialize(root pubkey.Key, snapshotBlob []byte) error {
	if snapshotBlob != nil {
		if err := g.Restore(snapshotBlob); err != nil {
			return errs.Wrap(errs.GraphIO, err, "restore graph snapshot")
		}
	}
	return g.SwitchRoot(root)
}

// GetDistance returns dist[target], or Unreachable if target has no known
// distance from the current root.
func (g *Graph) GetDistance(target pubkey.Key) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if d, ok := g.dist[target]; ok {
		return d
	}
	return Unreachable
}

// DoesFollow reports whether a follows b.
func (g *Graph) DoesFollow(a, b pubkey.Key) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	set, ok := g.follows[a]
	if !ok {
		return false
	}
	_, ok = set[b]
	return ok
}

// AreMutualFollows reports whether a and b follow each other (§8: this must
// be equivalent to DoesFollow(a,b) && DoesFollow(b,a)).
func (g *Graph) AreMutualFollows(a, b pubkey.Key) bool {
	return g.DoesFollow(a, b) && g.DoesFollow(b, a)
}

// Root returns the current root pubkey.
func (g *Graph) Root() pubkey.Key {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.root
}

// SwitchRoot atomically sets the root and recomputes distances by BFS.
// Idempotent if newRoot == current root.
func (g *Graph) SwitchRoot(newRoot pubkey.Key) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.root == newRoot && g.dist != nil {
		return nil
	}
	g.root = newRoot
	g.dist = g.bfsLocked(newRoot)
	g.dirty = true
	return nil
}

// GetDistanceBetween returns the distance from src to dst. If src equals
// the current root, this is a plain lookup; otherwise the graph switches
// root to src, reads, and restores the original root, all under a single
// write lock so readers never observe a partial BFS (§4.4).
func (g *Graph) GetDistanceBetween(src, dst pubkey.Key) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.root == src {
		if d, ok := g.dist[dst]; ok {
			return d
		}
		return Unreachable
	}

	original := g.root
	originalDist := g.dist
	tmp := g.bfsLocked(src)
	d, ok := tmp[dst]
	g.root = original
	g.dist = originalDist
	if !ok {
		return Unreachable
	}
	return d
}

// Ingest replaces follows[author] with the given targets, invalidating
// distances (recomputed eagerly here against the current root).
func (g *Graph) Ingest(author pubkey.Key, targets []pubkey.Key) {
	g.mu.Lock()
	defer g.mu.Unlock()
	set := make(map[pubkey.Key]struct{}, len(targets))
	for _, t := range targets {
		set[t] = struct{}{}
	}
	g.follows[author] = set
	g.dirty = true
	if g.root != "" {
		g.dist = g.bfsLocked(g.root)
	}
}

// Stats returns the current graph size.
func (g *Graph) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()
	users := make(map[pubkey.Key]struct{}, len(g.follows))
	edges := 0
	for from, targets := range g.follows {
		users[from] = struct{}{}
		edges += len(targets)
		for to := range targets {
			users[to] = struct{}{}
		}
	}
	return Stats{Users: len(users), Follows: edges}
}

// Users returns every pubkey known to the graph, whether as a follower or
// as a followed target, in no particular order. Used by the search surface
// to enumerate candidates without a separate profile index.
func (g *Graph) Users() []pubkey.Key {
	g.mu.RLock()
	defer g.mu.RUnlock()
	seen := make(map[pubkey.Key]struct{}, len(g.follows))
	for from, targets := range g.follows {
		seen[from] = struct{}{}
		for to := range targets {
			seen[to] = struct{}{}
		}
	}
	out := make([]pubkey.Key, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	return out
}

// Dirty reports whether the graph has mutated since the last snapshot.
func (g *Graph) Dirty() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.dirty
}

// bfsLocked computes distances from root over the follow graph. Callers
// must hold g.mu for writing. Cycles are legal; BFS visits each node once.
func (g *Graph) bfsLocked(root pubkey.Key) map[pubkey.Key]int {
	dist := map[pubkey.Key]int{root: 0}
	queue := []pubkey.Key{root}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for next := range g.follows[cur] {
			if _, seen := dist[next]; seen {
				continue
			}
			dist[next] = dist[cur] + 1
			queue = append(queue, next)
		}
	}
	return dist
}

// snapshotData is the serializable form of a Graph.
type snapshotData struct {
	Follows map[pubkey.Key][]pubkey.Key
	Root    pubkey.Key
}

// Snapshot serializes the follow map and current root.
func (g *Graph) Snapshot() ([]byte, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	data := snapshotData{Follows: make(map[pubkey.Key][]pubkey.Key, len(g.follows)), Root: g.root}
	for from, set := range g.follows {
		targets := make([]pubkey.Key, 0, len(set))
		for to := range set {
			targets = append(targets, to)
		}
		data.Follows[from] = targets
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(data); err != nil {
		return nil, errs.Wrap(errs.GraphIO, err, "encode graph snapshot")
	}
	return buf.Bytes(), nil
}

// Restore deserializes a snapshot produced by Snapshot. The root is not
// re-activated by Restore; callers should follow with SwitchRoot or rely
// on Initialize to do so.
func (g *Graph) Restore(blob []byte) error {
	var data snapshotData
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&data); err != nil {
		return errs.Wrap(errs.GraphIO, err, "decode graph snapshot")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.follows = make(map[pubkey.Key]map[pubkey.Key]struct{}, len(data.Follows))
	for from, targets := range data.Follows {
		set := make(map[pubkey.Key]struct{}, len(targets))
		for _, to := range targets {
			set[to] = struct{}{}
		}
		g.follows[from] = set
	}
	g.root = data.Root
	g.dist = g.bfsLocked(g.root)
	g.dirty = false
	return nil
}

// ClearDirty resets the dirty flag, called by the maintenance autosave
// loop after a successful persist.
func (g *Graph) ClearDirty() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dirty = false
}
