package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ndrandal/perpflow/internal/dryrun"
	"github.com/ndrandal/perpflow/internal/fixedpoint"
)

var errInvalidSide = errors.New(`side must be "long" or "short"`)

type healthResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
	DecisionMode  string  `json:"decisionMode"`
	AIDryRun      bool    `json:"aiDryRunEnabled"`
}

// handleHealth returns runtime status, counters, and decision mode
// (spec.md §6 "GET /api/health").
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		UptimeSeconds: time.Since(s.startAt).Seconds(),
		DecisionMode:  s.decisionMode,
		AIDryRun:      s.aiDryRun != nil,
	})
}

type symbolRequest struct {
	Symbol string `json:"symbol"`
}

// handleStart starts (or restarts) a symbol's session and returns its
// status (spec.md §6 "POST /api/dry-run/start|stop|reset").
func (s *Server) handleStart(p SessionProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req symbolRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		sess, ok := resolveSession(w, p, req.Symbol)
		if !ok {
			return
		}
		if err := sess.Start(); err != nil {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, sess.Status())
	}
}

func (s *Server) handleStop(p SessionProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req symbolRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		sess, ok := resolveSession(w, p, req.Symbol)
		if !ok {
			return
		}
		sess.Stop()
		writeJSON(w, http.StatusOK, sess.Status())
	}
}

func (s *Server) handleReset(p SessionProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req symbolRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		sess, ok := resolveSession(w, p, req.Symbol)
		if !ok {
			return
		}
		sess.Reset()
		writeJSON(w, http.StatusOK, sess.Status())
	}
}

// testOrderRequest carries the ai-dry-run surface's extra fields
// (spec.md §6 "{apiKey, model, localOnly}"); the dry-run surface
// simply ignores them.
type testOrderRequest struct {
	Symbol string `json:"symbol"`
	Side   string `json:"side"` // "long" | "short"

	APIKey    string `json:"apiKey,omitempty"`
	Model     string `json:"model,omitempty"`
	LocalOnly bool   `json:"localOnly,omitempty"`
}

// handleTestOrder queues a manual market order on the named session
// (spec.md §6 "POST /api/dry-run/test-order {symbol, side}").
func (s *Server) handleTestOrder(p SessionProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req testOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		sess, ok := resolveSession(w, p, req.Symbol)
		if !ok {
			return
		}

		side, err := parseSide(req.Side)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		sess.QueueManualOrder(dryrun.OrderRequest{
			Kind:       dryrun.KindMarketIOC,
			Side:       side,
			Qty:        fixedpoint.MustToFp(1),
			ReasonCode: "manual_test_order",
			Role:       "taker",
		})
		writeJSON(w, http.StatusAccepted, sess.Status())
	}
}

func parseSide(raw string) (dryrun.Side, error) {
	switch strings.ToLower(raw) {
	case "long":
		return dryrun.SideLong, nil
	case "short":
		return dryrun.SideShort, nil
	default:
		return 0, errInvalidSide
	}
}

// handleStatus returns the full session status object (spec.md §4.9,
// §6 "GET /api/dry-run/status").
func (s *Server) handleStatus(p SessionProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sym := r.URL.Query().Get("symbol")
		sess, ok := resolveSession(w, p, sym)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, sess.Status())
	}
}
