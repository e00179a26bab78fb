package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ndrandal/perpflow/internal/dryrun"
	"github.com/ndrandal/perpflow/internal/orchestrator"
	"github.com/ndrandal/perpflow/internal/tradesession"
)

// stubProvider is an in-memory SessionProvider backed by real
// tradesession.Session instances.
type stubProvider struct {
	sessions map[string]*tradesession.Session
}

func (p *stubProvider) Session(sym string) (*tradesession.Session, bool) {
	s, ok := p.sessions[sym]
	return s, ok
}

func newTestSession(t *testing.T, sym string) *tradesession.Session {
	t.Helper()
	engineCfg := dryrun.DefaultConfig(dryrun.MainnetHosts())
	orchCfg := orchestrator.DefaultConfig()
	return tradesession.New(sym, tradesession.NewRunID(), engineCfg, orchCfg, tradesession.DefaultConfig())
}

func newTestServer(aiEnabled bool) (*Server, *stubProvider, *stubProvider) {
	dryRun := &stubProvider{sessions: map[string]*tradesession.Session{}}
	var aiDryRun *stubProvider
	var aiProvider SessionProvider
	if aiEnabled {
		aiDryRun = &stubProvider{sessions: map[string]*tradesession.Session{}}
		aiProvider = aiDryRun
	}
	s := NewServer(dryRun, aiProvider, "standard")
	return s, dryRun, aiDryRun
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	s, _, _ := newTestServer(false)
	mux := http.NewServeMux()
	s.Register(mux)

	rec := doJSON(t, mux, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" || resp.DecisionMode != "standard" || resp.AIDryRun {
		t.Fatalf("unexpected health response: %+v", resp)
	}
}

func TestHandleSymbols(t *testing.T) {
	s, _, _ := newTestServer(false)
	mux := http.NewServeMux()
	s.Register(mux)

	rec := doJSON(t, mux, http.MethodGet, "/api/dry-run/symbols", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHandleStartUnknownSymbol404(t *testing.T) {
	s, _, _ := newTestServer(false)
	mux := http.NewServeMux()
	s.Register(mux)

	rec := doJSON(t, mux, http.MethodPost, "/api/dry-run/start", symbolRequest{Symbol: "DOESNOTEXIST"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleStartStopResetRoundTrip(t *testing.T) {
	s, dryRun, _ := newTestServer(false)
	dryRun.sessions["BTCUSDT"] = newTestSession(t, "BTCUSDT")
	mux := http.NewServeMux()
	s.Register(mux)

	rec := doJSON(t, mux, http.MethodPost, "/api/dry-run/start", symbolRequest{Symbol: "BTCUSDT"})
	if rec.Code != http.StatusOK {
		t.Fatalf("start: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, mux, http.MethodGet, "/api/dry-run/status?symbol=BTCUSDT", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: expected 200, got %d", rec.Code)
	}
	var status tradesession.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.State != tradesession.LifecycleRunning {
		t.Fatalf("expected session running, got %v", status.State)
	}

	rec = doJSON(t, mux, http.MethodPost, "/api/dry-run/stop", symbolRequest{Symbol: "BTCUSDT"})
	if rec.Code != http.StatusOK {
		t.Fatalf("stop: expected 200, got %d", rec.Code)
	}

	rec = doJSON(t, mux, http.MethodPost, "/api/dry-run/reset", symbolRequest{Symbol: "BTCUSDT"})
	if rec.Code != http.StatusOK {
		t.Fatalf("reset: expected 200, got %d", rec.Code)
	}
}

func TestHandleTestOrderQueuesManualOrder(t *testing.T) {
	s, dryRun, _ := newTestServer(false)
	sess := newTestSession(t, "BTCUSDT")
	if err := sess.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	dryRun.sessions["BTCUSDT"] = sess
	mux := http.NewServeMux()
	s.Register(mux)

	rec := doJSON(t, mux, http.MethodPost, "/api/dry-run/test-order", testOrderRequest{Symbol: "BTCUSDT", Side: "long"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleTestOrderRejectsInvalidSide(t *testing.T) {
	s, dryRun, _ := newTestServer(false)
	dryRun.sessions["BTCUSDT"] = newTestSession(t, "BTCUSDT")
	mux := http.NewServeMux()
	s.Register(mux)

	rec := doJSON(t, mux, http.MethodPost, "/api/dry-run/test-order", testOrderRequest{Symbol: "BTCUSDT", Side: "sideways"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAIDryRunSurfaceDisabledByDefault(t *testing.T) {
	s, _, _ := newTestServer(false)
	mux := http.NewServeMux()
	s.Register(mux)

	rec := doJSON(t, mux, http.MethodGet, "/api/ai-dry-run/status?symbol=BTCUSDT", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected the ai-dry-run route to be unregistered (404), got %d", rec.Code)
	}
}

func TestAIDryRunSurfaceEnabled(t *testing.T) {
	s, _, aiDryRun := newTestServer(true)
	aiDryRun.sessions["BTCUSDT"] = newTestSession(t, "BTCUSDT")
	mux := http.NewServeMux()
	s.Register(mux)

	rec := doJSON(t, mux, http.MethodPost, "/api/ai-dry-run/test-order", testOrderRequest{
		Symbol: "BTCUSDT", Side: "short", APIKey: "k", Model: "m", LocalOnly: true,
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
}
