// Package httpapi exposes the orchestrator over HTTP: a single
// POST /v1/coach endpoint that authenticates, admits, and dispatches a
// request, returning the wire-level domain.Response.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"chatcoach/internal/collab"
	"chatcoach/internal/domain"
	"chatcoach/internal/monitor"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// dispatcher is the subset of *dispatch.Dispatcher the handler needs,
// narrowed to an interface so tests can substitute a fake.
type dispatcher interface {
	Dispatch(ctx context.Context, req domain.Request) (*domain.Response, error)
}

// Handler wires the HTTP surface to the dispatcher and its entry-point
// collaborators (auth, quota).
type Handler struct {
	Dispatcher    dispatcher
	Authenticator collab.Authenticator
	Quota         collab.QuotaChecker
	Telemetry     collab.TelemetrySink
}

// Mux builds the ServeMux the caller hands to http.Server.
func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/coach", h.handleCoach)
	return mux
}

func (h *Handler) handleCoach(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	reqID := monitor.NewRequestID()
	ctx := monitor.WithRequestID(r.Context(), reqID)

	var req domain.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if h.Authenticator != nil {
		if err := h.Authenticator.Verify(ctx, req.UserID, req.Sign); err != nil {
			slog.WarnContext(ctx, "authentication rejected", "user_id", req.UserID, "error", err)
			writeError(w, http.StatusUnauthorized, "authentication failed")
			return
		}
	}

	if h.Quota != nil {
		if err := h.Quota.Admit(ctx, req.UserID); err != nil {
			writeError(w, http.StatusTooManyRequests, "quota exceeded")
			return
		}
	}

	resp, err := h.Dispatcher.Dispatch(ctx, req)
	if err != nil {
		kind, ok := domain.KindOf(err)
		status := http.StatusInternalServerError
		if ok {
			status = domain.HTTPStatus(kind)
		}
		slog.ErrorContext(ctx, "dispatch failed", "error", err, "kind", kind)
		h.record(reqID, "dispatch_error", map[string]any{"error": err.Error()})
		writeError(w, status, err.Error())
		return
	}

	h.record(reqID, "dispatch_ok", map[string]any{"results": len(resp.Results)})
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) record(reqID, kind string, fields map[string]any) {
	if h.Telemetry == nil {
		return
	}
	h.Telemetry.Record(collab.TraceEvent{RequestID: reqID, Kind: kind, Fields: fields})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, domain.Response{Success: false, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
