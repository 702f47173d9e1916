package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/questlore/questpub/pkg/questpub"
	"github.com/questlore/questpub/pkg/questpub/api"
	"github.com/questlore/questpub/pkg/questpub/config"
	"github.com/questlore/questpub/pkg/questpub/metrics"
	memoryrepo "github.com/questlore/questpub/pkg/questpub/repo/memory"
	memorystorage "github.com/questlore/questpub/pkg/questpub/storage/memory"
)

const questXML = `<quest title="The Lost Crypt" minplayers="2" maxplayers="4"></quest>`

func newTestServer(t *testing.T) *HTTPServer {
	t.Helper()
	reg := prometheus.NewRegistry()
	recorder, err := metrics.New(reg)
	if err != nil {
		t.Fatalf("metrics error: %v", err)
	}
	svc, err := questpub.New(
		questpub.WithRepository(memoryrepo.New()),
		questpub.WithBlobStore("memory", memorystorage.New()),
		questpub.WithMetrics(recorder),
	)
	if err != nil {
		t.Fatalf("service create error: %v", err)
	}
	cfg, err := config.Load(config.WithEnvironment("testing"), config.WithTrustedIdentityHeader(true))
	if err != nil {
		t.Fatalf("config error: %v", err)
	}
	return NewHTTPServer(svc, cfg, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
}

func do(t *testing.T, ts *HTTPServer, method, path, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if userID != "" {
		req.Header.Set(api.UserIDHeader, userID)
	}
	rr := httptest.NewRecorder()
	ts.Routes().ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rr := do(t, ts, http.MethodGet, "/health", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var health HealthResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if health.Status != "healthy" || health.Environment != "testing" {
		t.Errorf("unexpected health: %+v", health)
	}
}

func TestPublishSearchAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	rr := do(t, ts, http.MethodPut, "/api/v1/documents/d1/publication", "u1", questXML)
	if rr.Code != http.StatusOK {
		t.Fatalf("publish: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = do(t, ts, http.MethodGet, "/api/v1/quests?players=3", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("search: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var result questpub.SearchResult
	if err := json.Unmarshal(rr.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(result.Quests) != 1 || result.Quests[0].ID != "u1_d1" {
		t.Errorf("unexpected search result: %+v", result)
	}

	rr = do(t, ts, http.MethodGet, "/metrics", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{`questpub_publish_total{outcome="ok"} 1`, `questpub_search_total{outcome="ok"} 1`} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestCORSInDevelopment(t *testing.T) {
	ts := newTestServer(t)
	ts.config.Environment = "development"

	rr := do(t, ts, http.MethodOptions, "/api/v1/quests", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("expected CORS headers in development")
	}
}
