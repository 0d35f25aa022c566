package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"trustwotd/core/cache"
	"trustwotd/core/distance"
	"trustwotd/core/graph"
	"trustwotd/core/ratelimit"
	"trustwotd/core/rpc"
	"trustwotd/core/service"
	"trustwotd/core/validators"
	"trustwotd/core/weights"
	"trustwotd/pkg/pubkey"
)

type fakeSource struct{}

func (fakeSource) FetchMetadata(ctx context.Context, target pubkey.Key) (validators.Metadata, error) {
	return validators.Metadata{}, nil
}

func (fakeSource) FetchRelayList(ctx context.Context, target pubkey.Key) ([]string, error) {
	return nil, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	g := graph.New(nil)
	_ = g.SwitchRoot("root")
	w := weights.New(nil)
	_ = w.Register(weights.Profile{Name: "default", DistanceWeight: 1.0})
	vreg := validators.New(time.Second, nil)
	norm := distance.New(distance.Default)
	c, err := cache.Open(filepath.Join(t.TempDir(), "m.db"), 10, nil)
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	svc := service.New(g, w, vreg, norm, c, fakeSource{})
	limiters := ratelimit.NewRegistry(ratelimit.Config{Capacity: 1000, RefillPerSecond: 0})
	router := rpc.NewToolRouter(svc, limiters, nil)
	return NewServer(":0", router, nil)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body %s", rec.Code, rec.Body.String())
	}
}

func TestCalculateTrustScoreEndpointInvalidPubkey(t *testing.T) {
	s := newTestServer(t)
	body := `{"targetPubkey": "not-valid"}`
	req := httptest.NewRequest(http.MethodPost, "/api/calculate-trust-score", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var resp rpc.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp.IsError {
		t.Fatal("expected error response")
	}
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
