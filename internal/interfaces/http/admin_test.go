package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"brokerlink/internal/domain/connection"
	"brokerlink/internal/domain/providererr"
	"brokerlink/internal/domain/refresh"
	"brokerlink/internal/interfaces/scheduler"
)

type MockRefresher struct {
	RefreshUserFunc func(ctx context.Context, userID int64) (refresh.Outcome, error)
	RecentRunsFunc  func(ctx context.Context, limit int) ([]*refresh.Run, error)
}

func (m *MockRefresher) RefreshUser(ctx context.Context, userID int64) (refresh.Outcome, error) {
	if m.RefreshUserFunc != nil {
		return m.RefreshUserFunc(ctx, userID)
	}
	return refresh.Outcome{}, nil
}

func (m *MockRefresher) RecentRuns(ctx context.Context, limit int) ([]*refresh.Run, error) {
	if m.RecentRunsFunc != nil {
		return m.RecentRunsFunc(ctx, limit)
	}
	return nil, nil
}

type MockConnections struct {
	ListAllFunc    func(ctx context.Context) ([]*connection.Connection, error)
	ListByUserFunc func(ctx context.Context, userID int64) ([]*connection.Connection, error)
	DisconnectFunc func(ctx context.Context, userID int64, id string) error
}

func (m *MockConnections) ListAll(ctx context.Context) ([]*connection.Connection, error) {
	if m.ListAllFunc != nil {
		return m.ListAllFunc(ctx)
	}
	return nil, nil
}

func (m *MockConnections) ListByUser(ctx context.Context, userID int64) ([]*connection.Connection, error) {
	if m.ListByUserFunc != nil {
		return m.ListByUserFunc(ctx, userID)
	}
	return nil, nil
}

func (m *MockConnections) Disconnect(ctx context.Context, userID int64, id string) error {
	if m.DisconnectFunc != nil {
		return m.DisconnectFunc(ctx, userID, id)
	}
	return nil
}

func noTrigger() error { return nil }

func TestHandleRefresh_SingleUser(t *testing.T) {
	expired := providererr.Describe(providererr.KindAuthExpired)
	tests := []struct {
		name        string
		outcome     refresh.Outcome
		err         error
		wantStatus  int
		wantSuccess bool
	}{
		{"success", refresh.Outcome{Success: true, Message: "Refreshed 2 of 2 accounts"}, nil, http.StatusOK, true},
		{"classified failure", refresh.Outcome{Success: false, Message: expired.Message, Error: &expired}, nil, http.StatusOK, false},
		{"store error", refresh.Outcome{}, errors.New("db down"), http.StatusInternalServerError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUser int64
			refresher := &MockRefresher{
				RefreshUserFunc: func(ctx context.Context, userID int64) (refresh.Outcome, error) {
					gotUser = userID
					return tt.outcome, tt.err
				},
			}
			h := NewAdminHandler(refresher, &MockConnections{}, noTrigger, discardLogger())

			req := httptest.NewRequest(http.MethodPost, "/api/admin/refresh", bytes.NewBufferString(`{"userId":42}`))
			w := httptest.NewRecorder()
			h.HandleRefresh(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
			if gotUser != 42 {
				t.Errorf("expected user 42, got %d", gotUser)
			}

			var body map[string]any
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if body["success"] != tt.wantSuccess {
				t.Errorf("expected success=%v, got %v", tt.wantSuccess, body["success"])
			}
			if tt.outcome.Error != nil && body["error"] == nil {
				t.Error("expected classified error in response")
			}
		})
	}
}

func TestHandleRefresh_FullBatch(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		triggerErr error
		wantStatus int
	}{
		{"empty body", "", nil, http.StatusAccepted},
		{"empty object", "{}", nil, http.StatusAccepted},
		{"already running", "{}", scheduler.ErrAlreadyRunning, http.StatusConflict},
		{"lease error", "{}", fmt.Errorf("failed to acquire lease: %w", errors.New("db down")), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			triggered := 0
			trigger := func() error {
				triggered++
				return tt.triggerErr
			}
			h := NewAdminHandler(&MockRefresher{}, &MockConnections{}, trigger, discardLogger())

			w := httptest.NewRecorder()
			h.HandleRefresh(w, httptest.NewRequest(http.MethodPost, "/api/admin/refresh", bytes.NewBufferString(tt.body)))

			if w.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
			if triggered != 1 {
				t.Errorf("expected one trigger, got %d", triggered)
			}
		})
	}
}

func TestHandleRefresh_BadRequests(t *testing.T) {
	tests := []struct {
		name   string
		method string
		body   string
		want   int
	}{
		{"wrong method", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"invalid json", http.MethodPost, "{", http.StatusBadRequest},
		{"non-positive user", http.MethodPost, `{"userId":0}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewAdminHandler(&MockRefresher{}, &MockConnections{}, noTrigger, discardLogger())

			w := httptest.NewRecorder()
			h.HandleRefresh(w, httptest.NewRequest(tt.method, "/api/admin/refresh", bytes.NewBufferString(tt.body)))

			if w.Code != tt.want {
				t.Errorf("expected status %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestHandleListConnections(t *testing.T) {
	conns := &MockConnections{
		ListAllFunc: func(ctx context.Context) ([]*connection.Connection, error) {
			return []*connection.Connection{
				{ID: "auth_1", UserID: 1, Status: connection.StatusActive},
				{ID: "auth_2", UserID: 2, Status: connection.StatusBroken, Disabled: true},
			}, nil
		},
		ListByUserFunc: func(ctx context.Context, userID int64) ([]*connection.Connection, error) {
			if userID != 2 {
				t.Errorf("expected user 2, got %d", userID)
			}
			return nil, nil
		},
	}
	h := NewAdminHandler(&MockRefresher{}, conns, noTrigger, discardLogger())

	w := httptest.NewRecorder()
	h.HandleListConnections(w, httptest.NewRequest(http.MethodGet, "/api/admin/connections", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var all []connection.Connection
	if err := json.NewDecoder(w.Body).Decode(&all); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(all) != 2 || !all[1].Disabled {
		t.Errorf("unexpected connections: %+v", all)
	}

	w = httptest.NewRecorder()
	h.HandleListConnections(w, httptest.NewRequest(http.MethodGet, "/api/admin/connections?userId=2", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if got := bytes.TrimSpace(w.Body.Bytes()); string(got) != "[]" {
		t.Errorf("expected empty list, got %s", got)
	}

	w = httptest.NewRecorder()
	h.HandleListConnections(w, httptest.NewRequest(http.MethodGet, "/api/admin/connections?userId=abc", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestHandleDisconnect(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"deleted", nil, http.StatusNoContent},
		{"not found", connection.ErrConnectionNotFound, http.StatusNotFound},
		{"other owner", connection.ErrOwnerMismatch, http.StatusForbidden},
		{"store error", errors.New("db down"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conns := &MockConnections{
				DisconnectFunc: func(ctx context.Context, userID int64, id string) error {
					if userID != 7 || id != "auth_1" {
						t.Errorf("unexpected disconnect(%d, %q)", userID, id)
					}
					return tt.err
				},
			}
			h := NewAdminHandler(&MockRefresher{}, conns, noTrigger, discardLogger())
			mux := http.NewServeMux()
			mux.HandleFunc("/api/admin/users/{userId}/connections/{id}", h.HandleDisconnect)

			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/admin/users/7/connections/auth_1", nil))

			if w.Code != tt.want {
				t.Errorf("expected status %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestHandleListRuns(t *testing.T) {
	var gotLimit int
	refresher := &MockRefresher{
		RecentRunsFunc: func(ctx context.Context, limit int) ([]*refresh.Run, error) {
			gotLimit = limit
			return []*refresh.Run{refresh.NewRun(refresh.TriggerSchedule, refreshStart)}, nil
		},
	}
	h := NewAdminHandler(refresher, &MockConnections{}, noTrigger, discardLogger())

	w := httptest.NewRecorder()
	h.HandleListRuns(w, httptest.NewRequest(http.MethodGet, "/api/admin/runs", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if gotLimit != defaultRunLimit {
		t.Errorf("expected default limit %d, got %d", defaultRunLimit, gotLimit)
	}

	w = httptest.NewRecorder()
	h.HandleListRuns(w, httptest.NewRequest(http.MethodGet, "/api/admin/runs?limit=5", nil))
	if gotLimit != 5 {
		t.Errorf("expected limit 5, got %d", gotLimit)
	}

	w = httptest.NewRecorder()
	h.HandleListRuns(w, httptest.NewRequest(http.MethodGet, "/api/admin/runs?limit=-1", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}
