package handlers

import (
	"io"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scrutor/internal/services/webhook"
)

// Deliveries larger than this are rejected before JSON parsing.
const maxWebhookBody = 32 << 20 // 32 MB

// WebhookHandler receives scraping results pushed back by the provider
type WebhookHandler struct {
	gateway *webhook.Gateway
	logger  arbor.ILogger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(gateway *webhook.Gateway, logger arbor.ILogger) *WebhookHandler {
	return &WebhookHandler{
		gateway: gateway,
		logger:  logger,
	}
}

// ProviderWebhookHandler accepts the provider's result delivery, stores the
// raw payload and queues the analysis phase
// POST /api/webhooks/provider?job-id={id}
func (h *WebhookHandler) ProviderWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	jobID := r.URL.Query().Get("job-id")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to read webhook body")
		WriteError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	if err := h.gateway.Handle(r.Context(), r.Header.Get("Authorization"), jobID, body); err != nil {
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"status": "accepted",
		"job_id": jobID,
	})
}
