package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/ashureev/agentdesk/internal/classifier"
	"github.com/ashureev/agentdesk/internal/identity"
)

// minReportedConfidence is the threshold an intent must exceed to be reported.
const minReportedConfidence = 0.5

type classifyRequest struct {
	Text string `json:"text"`
}

type classifyResponse struct {
	Intents []classifier.Intent `json:"intents"`
	Params  map[string]any      `json:"params"`
}

// ClassifyIntent handles POST /classify-intent. Backend failures yield the
// default search result rather than an error.
func (h *Handler) ClassifyIntent(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if !decode(w, r, &req) {
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		Error(w, http.StatusBadRequest, "text is required")
		return
	}

	res, err := h.classifier.Classify(r.Context(), text, classifier.Context{})
	if err != nil {
		slog.Warn("Intent classification failed, using fallback", "error", err)
		res = classifier.DefaultFallback()
	}

	intents := make([]classifier.Intent, 0, len(res.Intents))
	for _, in := range res.Intents {
		if in.Confidence > minReportedConfidence {
			intents = append(intents, in)
		}
	}
	JSON(w, http.StatusOK, classifyResponse{
		Intents: intents,
		Params:  classifier.WithDefaults(res.Params),
	})
}

// Identity handles GET /identity and returns the caller's anonymous id.
func (h *Handler) Identity(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"userId": identity.UserIDFromContext(r.Context())})
}
