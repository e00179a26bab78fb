// Package api implements the HTTP control surface for dry-run and
// ai-dry-run sessions (spec.md §6 "HTTP API surface").
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ndrandal/perpflow/internal/symbol"
	"github.com/ndrandal/perpflow/internal/tradesession"
)

// SessionProvider resolves a symbol to its running tradesession.Session.
// Satisfied by internal/coordinator's Symbol Coordinator; kept as an
// interface here so internal/api has no compile-time dependency on the
// coordinator's wiring.
type SessionProvider interface {
	Session(symbol string) (*tradesession.Session, bool)
}

// Server provides the dry-run and ai-dry-run REST surfaces. The two
// surfaces share request/response shapes (spec.md §6 "Parallel
// /api/ai-dry-run/* surface... semantics identical to dry-run except
// policy source") and differ only in which SessionProvider backs them.
type Server struct {
	dryRun       SessionProvider
	aiDryRun     SessionProvider
	decisionMode string
	startAt      time.Time
}

// NewServer creates a new API server. aiDryRun may be nil if the
// ai-dry-run surface is not enabled for this process.
func NewServer(dryRun, aiDryRun SessionProvider, decisionMode string) *Server {
	return &Server{
		dryRun:       dryRun,
		aiDryRun:     aiDryRun,
		decisionMode: decisionMode,
		startAt:      time.Now(),
	}
}

// Register attaches API routes to the given mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/dry-run/symbols", s.handleSymbols)
	s.registerGroup(mux, "/api/dry-run", s.dryRun)

	if s.aiDryRun != nil {
		s.registerGroup(mux, "/api/ai-dry-run", s.aiDryRun)
	}
}

func (s *Server) registerGroup(mux *http.ServeMux, prefix string, p SessionProvider) {
	mux.HandleFunc("POST "+prefix+"/start", s.handleStart(p))
	mux.HandleFunc("POST "+prefix+"/stop", s.handleStop(p))
	mux.HandleFunc("POST "+prefix+"/reset", s.handleReset(p))
	mux.HandleFunc("POST "+prefix+"/test-order", s.handleTestOrder(p))
	mux.HandleFunc("GET "+prefix+"/status", s.handleStatus(p))
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// resolveSession looks up a session by symbol, writing a 404 if not
// found. Returns false if the symbol was not found (error already
// written).
func resolveSession(w http.ResponseWriter, p SessionProvider, sym string) (*tradesession.Session, bool) {
	sess, ok := p.Session(sym)
	if !ok {
		writeError(w, http.StatusNotFound, "symbol not found: "+sym)
		return nil, false
	}
	return sess, true
}

// handleSymbols returns the permitted instrument set (spec.md §6
// "GET /api/dry-run/symbols").
func (s *Server) handleSymbols(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, symbol.AllSymbols())
}
