// Package events carries add-on installation events from the tracking
// endpoint to Postgres through a Redis stream.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sheetsmith/sheetsmith/internal/metrics"
	"github.com/sheetsmith/sheetsmith/internal/model"
)

const (
	// StreamKey is the Redis stream for installation events.
	StreamKey = "stream:installation_events"

	// DeadLetterStreamKey holds messages the worker could not decode.
	DeadLetterStreamKey = "stream:installation_events:dlq"

	// MaxStreamLen is the approximate max length of the stream.
	MaxStreamLen = 100000

	// PublishTimeout bounds a fire-and-forget publish.
	PublishTimeout = 250 * time.Millisecond
)

// Payload is the compact stream encoding of an installation event.
type Payload struct {
	InstallID    string `json:"iid"`
	ProfileID    string `json:"pid,omitempty"`
	Event        string `json:"ev"`
	AddonVersion string `json:"v,omitempty"`
	Domain       string `json:"d,omitempty"`
	OccurredAt   int64  `json:"t"` // Unix milliseconds
}

// Installation converts the payload into a row for the given stream message.
func (p Payload) Installation(id, eventID string) *model.Installation {
	return &model.Installation{
		ID:           id,
		EventID:      eventID,
		InstallID:    p.InstallID,
		ProfileID:    p.ProfileID,
		Event:        p.Event,
		AddonVersion: p.AddonVersion,
		Domain:       p.Domain,
		OccurredAt:   time.UnixMilli(p.OccurredAt).UTC(),
	}
}

// Publisher appends installation events to the stream.
type Publisher struct {
	redis   *redis.Client
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewPublisher creates an installation event publisher.
func NewPublisher(client *redis.Client, logger *slog.Logger, recorder metrics.Recorder) *Publisher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Publisher{
		redis:   client,
		logger:  logger.With("component", "events.publisher"),
		metrics: recorder,
	}
}

// Publish validates and appends an event, returning its stream ID.
func (p *Publisher) Publish(ctx context.Context, event Payload) (string, error) {
	if err := Validate(event); err != nil {
		return "", err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	id, err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: MaxStreamLen,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{"payload": string(data)},
	}).Result()
	if err != nil {
		p.metrics.IncInstallEventPublished(metrics.StatusFailed)
		return "", fmt.Errorf("xadd: %w", err)
	}

	p.metrics.IncInstallEventPublished(metrics.StatusSuccess)
	p.logger.Debug("installation event published",
		"install_id", event.InstallID,
		"event", event.Event,
		"stream_id", id,
	)
	return id, nil
}

// PublishAsync publishes without blocking the caller. Failures are logged
// and counted as dropped.
func (p *Publisher) PublishAsync(event Payload) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), PublishTimeout)
		defer cancel()

		if _, err := p.Publish(ctx, event); err != nil {
			p.logger.Warn("dropped installation event",
				"install_id", event.InstallID,
				"error", err,
			)
			p.metrics.IncInstallEventPublished(metrics.StatusDropped)
		}
	}()
}
