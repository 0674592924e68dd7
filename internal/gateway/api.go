// ABOUTME: HTTP API handlers for session creation, history, exports, and policy
// ABOUTME: Maps the session error taxonomy onto HTTP status codes

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/arkgart/orchestra/internal/policy"
	"github.com/arkgart/orchestra/internal/report"
	"github.com/arkgart/orchestra/internal/session"
	"github.com/arkgart/orchestra/internal/worker"
)

// OrchestrateResponse is the JSON response for POST /api/orchestrate.
type OrchestrateResponse struct {
	SessionID    string   `json:"sessionId"`
	InitialGraph any      `json:"initialGraph"`
	Warnings     []string `json:"warnings,omitempty"`
}

// baseTools are requested for every run; POWER mode adds the browser tool.
var baseTools = []string{"openai:gpt-5-codex", "modal:python"}

// defaultTools fills in the requested toolset when the caller omits one.
func defaultTools(mode policy.Mode) []string {
	tools := append([]string(nil), baseTools...)
	if mode == policy.ModePower {
		tools = append(tools, "browserless")
	}
	return tools
}

// handleOrchestrate starts a new orchestration session.
//
// The call is synchronous from the caller's point of view: it returns
// only once the worker has produced its first graph snapshot, the
// policy guard has denied the run, or the readiness timeout elapsed.
func (g *Gateway) handleOrchestrate(w http.ResponseWriter, r *http.Request) {
	var req worker.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := req.Validate(); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	mode, err := policy.ParseMode(req.Mode)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Mode = string(mode)

	if len(req.RequestedTools) == 0 {
		req.RequestedTools = defaultTools(mode)
	}

	// Pre-flight policy check: a denial here costs nothing, not even a
	// worker process. The worker runs its own guard as well.
	costEstimate := float64(req.VariantCount) * 0.5
	decision := g.policy.Evaluate(mode, req.RequestedTools, costEstimate)
	if !decision.Allowed {
		g.sendJSONError(w, http.StatusForbidden, decision.Reason)
		return
	}

	sess := g.registry.Create()

	stop, err := g.startWorker(sess.ID, &req)
	if err != nil {
		g.logger.Error("worker start failed", "session_id", sess.ID, "error", err)
		_ = g.registry.UpdateStatus(sess.ID, session.StatusError, err.Error())
		g.sendJSONError(w, http.StatusInternalServerError, "failed to start worker")
		return
	}
	g.registry.SetStopper(sess.ID, stop)

	graph, err := g.registry.AwaitReady(r.Context(), sess.ID, g.cfg.Sessions.ReadinessTimeout)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrPolicyDenied):
			// The session stays registered for audit, but the caller
			// never gets a usable identifier.
			g.sendJSONError(w, http.StatusForbidden, err.Error())
		case errors.Is(err, session.ErrReadinessTimeout):
			g.sendJSONError(w, http.StatusGatewayTimeout, err.Error())
		default:
			g.sendJSONError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	g.writeJSON(w, http.StatusOK, OrchestrateResponse{
		SessionID:    sess.ID,
		InitialGraph: graph,
		Warnings:     decision.Warnings,
	})
}

// handleSessionInfo returns session metadata.
func (g *Gateway) handleSessionInfo(w http.ResponseWriter, r *http.Request) {
	snap, err := g.registry.Snapshot(r.PathValue("id"))
	if err != nil {
		g.sendSessionError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, snap)
}

// handleHistory returns the full committed event history as JSON.
func (g *Gateway) handleHistory(w http.ResponseWriter, r *http.Request) {
	history, err := g.registry.History(r.PathValue("id"))
	if err != nil {
		g.sendSessionError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]any{"events": history})
}

// handleCloseSession terminates the worker and evicts the session.
func (g *Gateway) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := g.registry.Close(r.PathValue("id")); err != nil {
		g.sendSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAudit serves the archived copy of a session's events. Available
// only when the archive is enabled.
func (g *Gateway) handleAudit(w http.ResponseWriter, r *http.Request) {
	if g.archive == nil {
		g.sendJSONError(w, http.StatusNotFound, "archive disabled")
		return
	}

	entries, err := g.archive.Events(r.Context(), r.PathValue("id"))
	if err != nil {
		g.sendJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// handleExportBest renders the best-candidate report as a JSON download.
func (g *Gateway) handleExportBest(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	history, err := g.registry.History(sessionID)
	if err != nil {
		g.sendSessionError(w, err)
		return
	}

	best, err := report.BestCandidate(history)
	if err != nil {
		g.sendJSONError(w, http.StatusNotFound, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", sessionID+"-best-version.json"))
	json.NewEncoder(w).Encode(map[string]any{
		"metadata": map[string]any{
			"sessionId":  sessionID,
			"score":      best.Score,
			"exportedAt": time.Now().UTC().Format(time.RFC3339),
		},
		"node": best.Node,
	})
}

// handleExportScoreboard renders the scoreboard as a CSV download.
func (g *Gateway) handleExportScoreboard(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	history, err := g.registry.History(sessionID)
	if err != nil {
		g.sendSessionError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", sessionID+"-scoreboard.csv"))
	fmt.Fprint(w, report.ScoreboardCSV(history))
}

// handlePolicyPreview evaluates the default toolset under a given mode.
func (g *Gateway) handlePolicyPreview(w http.ResponseWriter, r *http.Request) {
	modeParam := r.URL.Query().Get("mode")
	if modeParam == "" {
		g.sendJSONError(w, http.StatusBadRequest, "mode is required")
		return
	}

	mode, err := policy.ParseMode(modeParam)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	tools := defaultTools(policy.ModePower) // preview the full toolset
	g.writeJSON(w, http.StatusOK, g.policy.Evaluate(mode, tools, 0))
}

// handleHealth reports process liveness and session count.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": g.registry.Len(),
	})
}

// sendSessionError maps registry errors onto HTTP statuses.
func (g *Gateway) sendSessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, session.ErrNotFound) {
		g.sendJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	g.sendJSONError(w, http.StatusInternalServerError, err.Error())
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeJSON writes a JSON response with the given status.
func (g *Gateway) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		g.logger.Error("failed to encode response", "error", err)
	}
}
