package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"brokerlink/internal/domain/connection"
	"brokerlink/internal/domain/refresh"
	"brokerlink/internal/interfaces/scheduler"
)

const defaultRunLimit = 20

// Refresher is the part of refresh.Service the admin endpoints use.
type Refresher interface {
	RefreshUser(ctx context.Context, userID int64) (refresh.Outcome, error)
	RecentRuns(ctx context.Context, limit int) ([]*refresh.Run, error)
}

// ConnectionManager is the part of connection.StateMachine the admin
// endpoints use.
type ConnectionManager interface {
	ListAll(ctx context.Context) ([]*connection.Connection, error)
	ListByUser(ctx context.Context, userID int64) ([]*connection.Connection, error)
	Disconnect(ctx context.Context, userID int64, id string) error
}

// AdminHandler serves operator endpoints guarded by the admin token.
type AdminHandler struct {
	refresher   Refresher
	connections ConnectionManager
	// triggerFull starts a full refresh in the background.
	triggerFull func() error
	logger      *slog.Logger
}

func NewAdminHandler(refresher Refresher, connections ConnectionManager, triggerFull func() error, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{
		refresher:   refresher,
		connections: connections,
		triggerFull: triggerFull,
		logger:      logger.With("component", "admin_handler"),
	}
}

type RefreshRequest struct {
	UserID *int64 `json:"userId"`
}

// HandleRefresh refreshes one user synchronously when userId is given and
// otherwise starts a full refresh in the background.
func (h *AdminHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "Invalid request body"})
		return
	}

	if req.UserID != nil {
		h.refreshUser(w, r, *req.UserID)
		return
	}

	err := h.triggerFull()
	switch {
	case err == nil:
		h.logger.InfoContext(r.Context(), "full refresh triggered")
		writeJSON(w, http.StatusAccepted, messageResponse{Success: true, Message: "Full refresh started"})
	case errors.Is(err, scheduler.ErrAlreadyRunning):
		writeJSON(w, http.StatusConflict, messageResponse{Message: "A full refresh is already running"})
	default:
		h.logger.ErrorContext(r.Context(), "failed to trigger full refresh", "error", err)
		writeJSON(w, http.StatusInternalServerError, messageResponse{Message: "Failed to start refresh"})
	}
}

func (h *AdminHandler) refreshUser(w http.ResponseWriter, r *http.Request, userID int64) {
	if userID <= 0 {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "userId must be positive"})
		return
	}

	out, err := h.refresher.RefreshUser(r.Context(), userID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "manual refresh failed", "user_id", userID, "error", err)
		writeJSON(w, http.StatusInternalServerError, messageResponse{Message: "Failed to refresh user"})
		return
	}

	h.logger.InfoContext(r.Context(), "manual refresh finished", "user_id", userID, "success", out.Success)
	writeJSON(w, http.StatusOK, out)
}

// HandleListConnections returns materialized connection rows, optionally
// filtered by ?userId=.
func (h *AdminHandler) HandleListConnections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var (
		conns []*connection.Connection
		err   error
	)
	if raw := r.URL.Query().Get("userId"); raw != "" {
		userID, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil || userID <= 0 {
			http.Error(w, "Invalid userId", http.StatusBadRequest)
			return
		}
		conns, err = h.connections.ListByUser(r.Context(), userID)
	} else {
		conns, err = h.connections.ListAll(r.Context())
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list connections", "error", err)
		http.Error(w, "Failed to list connections", http.StatusInternalServerError)
		return
	}
	if conns == nil {
		conns = []*connection.Connection{}
	}

	writeJSON(w, http.StatusOK, conns)
}

// HandleDisconnect deletes a connection on behalf of its owner.
func (h *AdminHandler) HandleDisconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, err := strconv.ParseInt(r.PathValue("userId"), 10, 64)
	if err != nil || userID <= 0 {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "Connection ID is required", http.StatusBadRequest)
		return
	}

	err = h.connections.Disconnect(r.Context(), userID, id)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, connection.ErrConnectionNotFound):
		http.Error(w, "Connection not found", http.StatusNotFound)
	case errors.Is(err, connection.ErrOwnerMismatch):
		http.Error(w, "Forbidden", http.StatusForbidden)
	default:
		h.logger.ErrorContext(r.Context(), "failed to disconnect", "connection_id", id, "error", err)
		http.Error(w, "Failed to disconnect", http.StatusInternalServerError)
	}
}

// HandleListRuns returns the latest refresh run summaries.
func (h *AdminHandler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit, ok := parseLimit(r, defaultRunLimit)
	if !ok {
		http.Error(w, "Invalid limit", http.StatusBadRequest)
		return
	}

	runs, err := h.refresher.RecentRuns(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list refresh runs", "error", err)
		http.Error(w, "Failed to list runs", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, runs)
}
