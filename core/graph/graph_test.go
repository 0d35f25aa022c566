package graph

import (
	"testing"

	"trustwotd/pkg/pubkey"
)

func k(s string) pubkey.Key { return pubkey.Key(s) }

func TestSwitchRootSelfDistanceZero(t *testing.T) {
	g := New(nil)
	root := k("root")
	if err := g.SwitchRoot(root); err != nil {
		t.Fatalf("switchRoot: %v", err)
	}
	if d := g.GetDistance(root); d != 0 {
		t.Fatalf("expected dist[root]=0, got %d", d)
	}
}

func TestBFSDistances(t *testing.T) {
	g := New(nil)
	root, a, b, c := k("root"), k("a"), k("b"), k("c")
	g.Ingest(root, []pubkey.Key{a})
	g.Ingest(a, []pubkey.Key{b})
	g.Ingest(b, []pubkey.Key{c})
	if err := g.SwitchRoot(root); err != nil {
		t.Fatalf("switchRoot: %v", err)
	}
	if d := g.GetDistance(a); d != 1 {
		t.Errorf("dist(a) = %d, want 1", d)
	}
	if d := g.GetDistance(b); d != 2 {
		t.Errorf("dist(b) = %d, want 2", d)
	}
	if d := g.GetDistance(c); d != 3 {
		t.Errorf("dist(c) = %d, want 3", d)
	}
}

func TestUnreachableTarget(t *testing.T) {
	g := New(nil)
	root, stranger := k("root"), k("stranger")
	_ = g.SwitchRoot(root)
	if d := g.GetDistance(stranger); d != Unreachable {
		t.Errorf("dist(stranger) = %d, want %d", d, Unreachable)
	}
}

func TestMutualFollows(t *testing.T) {
	g := New(nil)
	a, b := k("a"), k("b")
	g.Ingest(a, []pubkey.Key{b})
	if g.AreMutualFollows(a, b) {
		t.Fatal("expected not mutual yet")
	}
	g.Ingest(b, []pubkey.Key{a})
	if !g.AreMutualFollows(a, b) {
		t.Fatal("expected mutual follows")
	}
	if !(g.DoesFollow(a, b) && g.DoesFollow(b, a)) {
		t.Fatal("mutual implies both directions follow")
	}
}

func TestCycleTerminatesBFS(t *testing.T) {
	g := New(nil)
	a, b := k("a"), k("b")
	g.Ingest(a, []pubkey.Key{b})
	g.Ingest(b, []pubkey.Key{a})
	_ = g.SwitchRoot(a)
	if d := g.GetDistance(b); d != 1 {
		t.Errorf("dist(b) = %d, want 1", d)
	}
}

func TestGetDistanceBetweenRestoresRoot(t *testing.T) {
	g := New(nil)
	root, other, target := k("root"), k("other"), k("target")
	g.Ingest(other, []pubkey.Key{target})
	_ = g.SwitchRoot(root)

	d := g.GetDistanceBetween(other, target)
	if d != 1 {
		t.Errorf("distanceBetween(other,target) = %d, want 1", d)
	}
	if g.Root() != root {
		t.Errorf("root not restored after GetDistanceBetween, got %s", g.Root())
	}
	if g.GetDistance(root) != 0 {
		t.Error("original distances not restored")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	g := New(nil)
	root, a := k("root"), k("a")
	g.Ingest(root, []pubkey.Key{a})
	_ = g.SwitchRoot(root)

	blob, err := g.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	g2 := New(nil)
	if err := g2.Restore(blob); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if g2.Root() != root {
		t.Errorf("restored root = %s, want %s", g2.Root(), root)
	}
	if !g2.DoesFollow(root, a) {
		t.Error("restored graph missing follow edge")
	}
	if g2.GetDistance(a) != 1 {
		t.Errorf("restored dist(a) = %d, want 1", g2.GetDistance(a))
	}
}

func TestUsers(t *testing.T) {
	g := New(nil)
	g.Ingest(k("a"), []pubkey.Key{k("b"), k("c")})
	users := g.Users()
	if len(users) != 3 {
		t.Fatalf("expected 3 users, got %d: %v", len(users), users)
	}
}

func TestStats(t *testing.T) {
	g := New(nil)
	g.Ingest(k("a"), []pubkey.Key{k("b"), k("c")})
	s := g.Stats()
	if s.Follows != 2 {
		t.Errorf("follows = %d, want 2", s.Follows)
	}
	if s.Users != 3 {
		t.Errorf("users = %d, want 3", s.Users)
	}
}
