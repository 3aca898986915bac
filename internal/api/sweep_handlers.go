// Package api provides the tip sweep and operational handlers.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/healthtipsdaily/tipline/internal/delivery"
	"github.com/healthtipsdaily/tipline/internal/models"
)

// sweepHandler triggers a tip delivery sweep. The empty body runs a normal
// due-schedule pass; SendToAll broadcasts regardless of preferred time, Force
// ignores the 24-hour resend guard, Limit caps a broadcast.
func (s *Server) sweepHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req models.SweepRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			slog.Warn("Server.sweepHandler: failed to decode JSON", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
	}
	if req.Limit < 0 {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Limit must not be negative"))
		return
	}

	opts := delivery.SweepOptions{SendToAll: req.SendToAll, Limit: req.Limit, Force: req.Force}
	result, err := s.dispatcher.Sweep(r.Context(), nowUTC(), opts)
	if err != nil {
		slog.Error("Server.sweepHandler: sweep failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Sweep failed"))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Sweep completed", result))
}

// healthHandler is a liveness probe.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("ok", nil))
}

// statsHandler reports store counters.
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	stats, err := s.st.Stats()
	if err != nil {
		slog.Error("Server.statsHandler: failed to read stats", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to read stats"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(stats))
}
