package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/sheetsmith/sheetsmith/internal/apperr"
	"github.com/sheetsmith/sheetsmith/internal/events"
	"github.com/sheetsmith/sheetsmith/internal/handler/dto"
)

// EventPublisher queues installation events for the worker.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Payload) (string, error)
}

// EventsHandler accepts add-on lifecycle events from the installation
// tracker. Routes run behind the TrackingKey middleware.
type EventsHandler struct {
	publisher EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewEventsHandler creates a new EventsHandler.
func NewEventsHandler(publisher EventPublisher, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{
		publisher: publisher,
		logger:    logger.With("component", "handler.events"),
		now:       time.Now,
	}
}

// TrackInstallation handles POST /api/v1/events/installations. The event is
// queued and stored asynchronously; 202 means queued, not persisted.
func (h *EventsHandler) TrackInstallation(w http.ResponseWriter, r *http.Request) {
	var req dto.InstallationEventRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, err)
		return
	}

	occurred := h.now()
	if req.OccurredAt != nil {
		occurred = *req.OccurredAt
	}

	id, err := h.publisher.Publish(r.Context(), events.Payload{
		InstallID:    req.InstallID,
		ProfileID:    req.UserID,
		Event:        req.Event,
		AddonVersion: req.AddonVersion,
		Domain:       req.Domain,
		OccurredAt:   occurred.UnixMilli(),
	})
	if err != nil {
		if errors.Is(err, events.ErrInvalidEvent) {
			writeError(w, apperr.Wrap(apperr.KindValidation, "INVALID_EVENT", err.Error(), err))
			return
		}
		fail(w, r, h.logger, "queue installation event failed",
			apperr.Upstream("EVENT_QUEUE_UNAVAILABLE", "event queue unavailable", err))
		return
	}

	writeJSON(w, http.StatusAccepted, dto.InstallationEventResponse{Accepted: true, EventID: id})
}
