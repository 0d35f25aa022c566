package maintenance

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"trustwotd/core/cache"
	"trustwotd/core/graph"
	"trustwotd/pkg/pubkey"
)

func TestRunPerformsFinalAutosaveOnShutdown(t *testing.T) {
	dir := t.TempDir()
	snapshotPath := filepath.Join(dir, "graph.snapshot")

	g := graph.New(nil)
	g.Ingest("root", []pubkey.Key{"a"})
	_ = g.SwitchRoot("root")

	c, err := cache.Open(filepath.Join(dir, "m.db"), 10, nil)
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	defer c.Close()

	r := New(c, g, snapshotPath, time.Hour, time.Hour, time.Hour, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return promptly after cancellation")
	}

	if _, err := os.Stat(snapshotPath); err != nil {
		t.Fatalf("expected snapshot file to exist after shutdown autosave: %v", err)
	}
}

func TestAutosaveNoopWhenClean(t *testing.T) {
	dir := t.TempDir()
	snapshotPath := filepath.Join(dir, "graph.snapshot")
	g := graph.New(nil)
	c, err := cache.Open(filepath.Join(dir, "m.db"), 10, nil)
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	defer c.Close()

	r := New(c, g, snapshotPath, time.Hour, time.Hour, time.Hour, nil, nil)
	if err := r.autosave(); err != nil {
		t.Fatalf("autosave: %v", err)
	}
	if _, err := os.Stat(snapshotPath); err == nil {
		t.Fatal("expected no snapshot file for a never-dirtied graph")
	}
}

func TestCleanupTickRemovesExpiredEntries(t *testing.T) {
	dir := t.TempDir()
	c, err := cache.Open(filepath.Join(dir, "m.db"), 10, nil)
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	defer c.Close()
	if err := c.Set(cache.Key{Pubkey: "a"}, map[string]float64{"x": 1}, -time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}

	g := graph.New(nil)
	r := New(c, g, filepath.Join(dir, "graph.snapshot"), 10*time.Millisecond, time.Hour, time.Hour, nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	r.Run(ctx)

	if c.TotalEntries() != 0 {
		t.Fatalf("expected expired entry to be cleaned up, got %d entries", c.TotalEntries())
	}
}

type fakeCrawler struct {
	follows []pubkey.Key
	err     error
}

func (f fakeCrawler) FetchFollows(ctx context.Context, target pubkey.Key) ([]pubkey.Key, error) {
	return f.follows, f.err
}

func TestResyncRootFollowsIngestsCrawledEdges(t *testing.T) {
	dir := t.TempDir()
	g := graph.New(nil)
	_ = g.SwitchRoot("root")
	c, err := cache.Open(filepath.Join(dir, "m.db"), 10, nil)
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	defer c.Close()

	crawler := fakeCrawler{follows: []pubkey.Key{"a", "b"}}
	r := New(c, g, filepath.Join(dir, "graph.snapshot"), time.Hour, time.Hour, time.Hour, crawler, nil)
	if err := r.resyncRootFollows(context.Background()); err != nil {
		t.Fatalf("resyncRootFollows: %v", err)
	}
	if d := g.GetDistance("a"); d != 1 {
		t.Fatalf("expected root to follow a at distance 1, got %d", d)
	}
	if d := g.GetDistance("b"); d != 1 {
		t.Fatalf("expected root to follow b at distance 1, got %d", d)
	}
}

func TestResyncRootFollowsNoopWithoutCrawler(t *testing.T) {
	dir := t.TempDir()
	g := graph.New(nil)
	_ = g.SwitchRoot("root")
	c, err := cache.Open(filepath.Join(dir, "m.db"), 10, nil)
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	defer c.Close()

	r := New(c, g, filepath.Join(dir, "graph.snapshot"), time.Hour, time.Hour, time.Hour, nil, nil)
	if err := r.resyncRootFollows(context.Background()); err != nil {
		t.Fatalf("expected nil-crawler resync to no-op, got %v", err)
	}
}
