package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/webhook-indexer/internal/models"
	"github.com/webhook-indexer/internal/storage"
)

// handleHeliusWebhook handles inbound account-activity notifications.
// Helius posts an array of events; a bare object is tolerated as a batch of
// one. Once the payload parses the response is always 200: dispatch outcomes
// are recorded in logs, never surfaced to the provider, so a tenant-side
// failure cannot make the provider retry or disable the webhook.
func (s *Server) handleHeliusWebhook(w http.ResponseWriter, r *http.Request) {
	logger := s.logger

	body, err := io.ReadAll(r.Body)
	if err != nil {
		logger.WithError(err).Warn("Failed to read webhook body")
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Failed to read body")
		return
	}
	defer r.Body.Close()

	var events []*models.WebhookEvent
	if err := json.Unmarshal(body, &events); err != nil {
		var single models.WebhookEvent
		if err := json.Unmarshal(body, &single); err != nil {
			logger.WithError(err).Warn("Failed to parse webhook payload")
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid JSON")
			return
		}
		events = []*models.WebhookEvent{&single}
	}

	ctx := r.Context()

	for _, event := range events {
		s.archiveEvent(ctx, event, body)

		summary := s.dispatcher.Dispatch(ctx, event)
		logger.WithFields(map[string]interface{}{
			"signature": event.Signature,
			"matched":   summary.Matched,
			"ingested":  summary.Ingested(),
			"suspended": summary.Suspended(),
			"skipped":   summary.Skipped(),
			"failed":    summary.Failed(),
		}).Info("Event dispatched")
	}

	w.WriteHeader(http.StatusOK)
}

// archiveEvent stores the raw payload. Best effort: the archive is for
// replay and debugging, never in the ack path.
func (s *Server) archiveEvent(ctx context.Context, event *models.WebhookEvent, body []byte) {
	if s.archive == nil {
		return
	}

	err := s.archive.Insert(ctx, &storage.ArchivedEvent{
		Signature:  event.Signature,
		Slot:       event.Slot,
		FeePayer:   event.FeePayer,
		Payload:    string(body),
		ReceivedAt: time.Now(),
	})
	if err != nil {
		s.logger.WithError(err).WithField("signature", event.Signature).
			Warn("Failed to archive raw event")
	}
}
