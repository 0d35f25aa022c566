package cache

import (
	"path/filepath"
	"testing"
	"time"

	"trustwotd/pkg/pubkey"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	path := filepath.Join(t.TempDir(), "metrics.db")
	c, err := Open(path, 10, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestSetGetRoundTrip(t *testing.T) {
	c := openTestCache(t)
	key := Key{Pubkey: pubkey.Key("abc")}
	metrics := map[string]float64{"nip05Valid": 1.0, "reciprocity": 0.5}

	if err := c.Set(key, metrics, time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok := c.Get(key)
	if !ok {
		t.Fatal("expected hit")
	}
	if got.Metrics["nip05Valid"] != 1.0 || got.Metrics["reciprocity"] != 0.5 {
		t.Fatalf("unexpected metrics: %+v", got.Metrics)
	}
}

func TestGetMissReportsMiss(t *testing.T) {
	c := openTestCache(t)
	_, ok := c.Get(Key{Pubkey: pubkey.Key("nope")})
	if ok {
		t.Fatal("expected miss")
	}
	s := c.Stats()
	if s.Misses != 1 {
		t.Fatalf("expected 1 miss, got %d", s.Misses)
	}
}

func TestExpiredEntryIsMiss(t *testing.T) {
	c := openTestCache(t)
	key := Key{Pubkey: pubkey.Key("abc")}
	if err := c.Set(key, map[string]float64{"x": 1}, -time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}
	_, ok := c.Get(key)
	if ok {
		t.Fatal("expected expired entry to be a miss")
	}
}

func TestInvalidate(t *testing.T) {
	c := openTestCache(t)
	key := Key{Pubkey: pubkey.Key("abc")}
	_ = c.Set(key, map[string]float64{"x": 1}, time.Hour)
	if err := c.Invalidate(key); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, ok := c.Get(key); ok {
		t.Fatal("expected miss after invalidate")
	}
}

func TestCleanupRemovesExpired(t *testing.T) {
	c := openTestCache(t)
	live := Key{Pubkey: pubkey.Key("live")}
	dead := Key{Pubkey: pubkey.Key("dead")}
	_ = c.Set(live, map[string]float64{"x": 1}, time.Hour)
	_ = c.Set(dead, map[string]float64{"x": 1}, -time.Second)

	n, err := c.Cleanup()
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 removed, got %d", n)
	}
	if c.TotalEntries() != 1 {
		t.Fatalf("expected 1 remaining entry, got %d", c.TotalEntries())
	}
}

func TestEvictionRespectsMaxEntries(t *testing.T) {
	c := openTestCache(t) // maxEntries = 10
	for i := 0; i < 15; i++ {
		key := Key{Pubkey: pubkey.Key(rune('a' + i))}
		if err := c.Set(key, map[string]float64{"x": float64(i)}, time.Hour); err != nil {
			t.Fatalf("set %d: %v", i, err)
		}
	}
	if total := c.TotalEntries(); total > 10 {
		t.Fatalf("expected eviction to cap at 10 entries, got %d", total)
	}
}

func TestSourcePubkeyKeysDoNotCollide(t *testing.T) {
	c := openTestCache(t)
	bare := Key{Pubkey: pubkey.Key("a")}
	paired := Key{Pubkey: pubkey.Key("a"), SourcePubkey: pubkey.Key("b")}

	_ = c.Set(bare, map[string]float64{"x": 1}, time.Hour)
	_ = c.Set(paired, map[string]float64{"x": 2}, time.Hour)

	got1, _ := c.Get(bare)
	got2, _ := c.Get(paired)
	if got1.Metrics["x"] == got2.Metrics["x"] {
		t.Fatal("expected distinct records for bare vs paired key")
	}
}

func TestLegacyFlatShapeDecodes(t *testing.T) {
	c := openTestCache(t)
	key := Key{Pubkey: pubkey.Key("legacy")}
	v := 0.75
	rec := record{
		Nip05Valid: &v,
		ComputedAt: time.Now().Unix(),
		ExpiresAt:  time.Now().Add(time.Hour).Unix(),
		UpdatedAt:  time.Now().UnixNano(),
	}
	m := rec.toMetrics()
	if m["nip05Valid"] != 0.75 {
		t.Fatalf("expected legacy decode to populate nip05Valid, got %+v", m)
	}
}
