package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/agentdesk/internal/domain"
	"github.com/ashureev/agentdesk/internal/store"
)

// GetWidget handles GET /widget/{clientId}. A client without settings gets
// the defaults, which are stored on first read.
func (h *Handler) GetWidget(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientId")
	doc, err := h.repo.GetWidget(r.Context(), clientID)
	if err == nil {
		JSON(w, http.StatusOK, doc)
		return
	}
	if !errors.Is(err, store.ErrNotFound) {
		slog.Error("Failed to load widget settings", "error", err, "client_id", clientID)
		Error(w, http.StatusInternalServerError, "failed to load widget settings")
		return
	}

	def := domain.WidgetDocument{ClientID: clientID, WidgetSettings: domain.DefaultWidgetSettings()}
	if err := h.repo.PutWidget(r.Context(), def); err != nil {
		slog.Warn("Failed to store default widget settings", "error", err, "client_id", clientID)
	}
	JSON(w, http.StatusOK, def)
}

// UpdateWidget handles POST /widget/{clientId}. Fields missing from the body
// keep their default values.
func (h *Handler) UpdateWidget(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientId")
	settings := domain.DefaultWidgetSettings()
	if !decode(w, r, &settings) {
		return
	}
	if err := settings.Validate(); err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidLogoURL):
			Error(w, http.StatusBadRequest, "Invalid logo URL")
		case errors.Is(err, domain.ErrInvalidReadyQuestions):
			Error(w, http.StatusBadRequest, "Invalid ready questions format")
		default:
			Error(w, http.StatusBadRequest, err.Error())
		}
		return
	}
	if err := h.repo.PutWidget(r.Context(), domain.WidgetDocument{ClientID: clientID, WidgetSettings: settings}); err != nil {
		slog.Error("Failed to store widget settings", "error", err, "client_id", clientID)
		Error(w, http.StatusInternalServerError, "failed to store widget settings")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "Widget settings updated"})
}
