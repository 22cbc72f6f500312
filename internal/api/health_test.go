package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ashureev/agentdesk/internal/store"
)

type pingRepo struct {
	store.Repository
	err error
}

func (p pingRepo) Ping(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantDB   string
	}{
		{name: "healthy", wantCode: http.StatusOK, wantDB: "ok"},
		{name: "database down", err: errors.New("closed"), wantCode: http.StatusServiceUnavailable, wantDB: "unreachable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(pingRepo{err: tt.err}, 0)
			w := httptest.NewRecorder()
			h.Health(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			if w.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, w.Code)
			}
			got := decodeBody[struct {
				Status string            `json:"status"`
				Checks map[string]string `json:"checks"`
			}](t, w)
			if got.Checks["database"] != tt.wantDB {
				t.Fatalf("expected database=%s, got %+v", tt.wantDB, got)
			}
		})
	}
}
