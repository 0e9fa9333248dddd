package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/sheetsmith/sheetsmith/internal/metrics"
	"github.com/sheetsmith/sheetsmith/internal/model"
)

const (
	// ConsumerGroup is the Redis consumer group shared by all API replicas.
	ConsumerGroup = "installation_workers"

	DefaultBatchSize       = 200
	DefaultBlockTimeout    = 5 * time.Second
	DefaultMaxRetries      = 3
	DefaultClaimInterval   = 10 * time.Second
	DefaultClaimIdle       = 30 * time.Second
	DefaultMetricsInterval = 5 * time.Second

	deadLetterMaxLen = 10000
)

// Store persists decoded installation events.
type Store interface {
	BulkInsertInstallations(ctx context.Context, events []*model.Installation) error
}

// Worker drains the installation stream into the store.
type Worker struct {
	redis      *redis.Client
	store      Store
	logger     *slog.Logger
	metrics    metrics.Recorder
	consumerID string

	batchSize       int
	blockTimeout    time.Duration
	maxRetries      int
	claimInterval   time.Duration
	claimIdle       time.Duration
	metricsInterval time.Duration
	backoff         func(attempt int) time.Duration

	claimStartID string
	lastClaim    time.Time
	lastMetrics  time.Time

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewWorker creates a worker reading as consumerID.
func NewWorker(client *redis.Client, store Store, logger *slog.Logger, consumerID string, recorder metrics.Recorder) *Worker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Worker{
		redis:           client,
		store:           store,
		logger:          logger.With("component", "events.worker", "consumer_id", consumerID),
		metrics:         recorder,
		consumerID:      consumerID,
		batchSize:       DefaultBatchSize,
		blockTimeout:    DefaultBlockTimeout,
		maxRetries:      DefaultMaxRetries,
		claimInterval:   DefaultClaimInterval,
		claimIdle:       DefaultClaimIdle,
		metricsInterval: DefaultMetricsInterval,
		backoff:         func(attempt int) time.Duration { return time.Duration(1<<attempt) * time.Second },
		claimStartID:    "0-0",
	}
}

// SetBatchSize overrides the number of messages read per round.
func (w *Worker) SetBatchSize(n int) {
	if n > 0 {
		w.batchSize = n
	}
}

// SetBlockTimeout overrides how long XREADGROUP blocks.
func (w *Worker) SetBlockTimeout(d time.Duration) {
	if d > 0 {
		w.blockTimeout = d
	}
}

// SetClaimIdle overrides the idle time after which pending messages are reclaimed.
func (w *Worker) SetClaimIdle(d time.Duration) {
	if d > 0 {
		w.claimIdle = d
	}
}

// SetClaimInterval overrides how often pending messages are scanned.
func (w *Worker) SetClaimInterval(d time.Duration) {
	if d > 0 {
		w.claimInterval = d
	}
}

// Run consumes until ctx is cancelled or Shutdown is called.
func (w *Worker) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return errors.New("events worker already started")
	}
	w.started = true
	w.done = make(chan struct{})
	ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()
	defer close(w.done)

	if err := w.ensureGroup(ctx); err != nil {
		return fmt.Errorf("ensure consumer group: %w", err)
	}
	w.logger.Info("events worker started")

	for {
		if ctx.Err() != nil {
			w.logger.Info("events worker stopped")
			return nil
		}
		if err := w.processOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				continue
			}
			w.logger.Error("process error", "error", err)
			sleep(ctx, time.Second)
		}
	}
}

// Shutdown stops the loop and waits for the in-flight batch. It has the
// server.ShutdownFunc signature.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil
	}
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		w.logger.Warn("events worker shutdown timed out")
		return ctx.Err()
	}
}

func (w *Worker) ensureGroup(ctx context.Context) error {
	err := w.redis.XGroupCreateMkStream(ctx, StreamKey, ConsumerGroup, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

func (w *Worker) processOnce(ctx context.Context) error {
	w.maybeUpdateQueueDepth(ctx)

	messages, err := w.maybeClaimPending(ctx)
	if err != nil {
		w.logger.Warn("failed to claim pending messages", "error", err)
	}
	if len(messages) == 0 {
		if messages, err = w.readBatch(ctx); err != nil {
			return err
		}
	}
	if len(messages) == 0 {
		return nil
	}

	batch := make([]*model.Installation, 0, len(messages))
	ids := make([]string, 0, len(messages))
	for _, msg := range messages {
		ids = append(ids, msg.ID)
		inst, reason, err := decode(msg)
		if err != nil {
			w.deadLetter(ctx, msg, reason, err.Error())
			continue
		}
		batch = append(batch, inst)
	}

	if len(batch) > 0 {
		// Unacked messages stay pending and are reclaimed later.
		if err := w.insertWithRetry(ctx, batch); err != nil {
			return err
		}
	}
	return w.ack(ctx, ids)
}

// decode turns a stream message into an installation row. The stream ID
// becomes the idempotency key.
func decode(msg redis.XMessage) (*model.Installation, string, error) {
	raw, ok := msg.Values["payload"].(string)
	if !ok {
		return nil, "invalid_format", errors.New("payload field missing or not a string")
	}
	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, "unmarshal_error", err
	}
	if err := Validate(p); err != nil {
		return nil, "validation_error", err
	}
	return p.Installation(ulid.Make().String(), msg.ID), "", nil
}

func (w *Worker) readBatch(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := w.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    ConsumerGroup,
		Consumer: w.consumerID,
		Streams:  []string{StreamKey, ">"},
		Count:    int64(w.batchSize),
		Block:    w.blockTimeout,
	}).Result()
	if errors.Is(err, redis.Nil) || len(streams) == 0 {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}
	return streams[0].Messages, nil
}

func (w *Worker) maybeClaimPending(ctx context.Context) ([]redis.XMessage, error) {
	if !w.lastClaim.IsZero() && time.Since(w.lastClaim) < w.claimInterval {
		return nil, nil
	}
	w.lastClaim = time.Now()

	messages, next, err := w.redis.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   StreamKey,
		Group:    ConsumerGroup,
		Consumer: w.consumerID,
		MinIdle:  w.claimIdle,
		Start:    w.claimStartID,
		Count:    int64(w.batchSize),
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("xautoclaim: %w", err)
	}
	if next != "" {
		w.claimStartID = next
	}
	return messages, nil
}

func (w *Worker) maybeUpdateQueueDepth(ctx context.Context) {
	if !w.lastMetrics.IsZero() && time.Since(w.lastMetrics) < w.metricsInterval {
		return
	}
	w.lastMetrics = time.Now()

	groups, err := w.redis.XInfoGroups(ctx, StreamKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			w.logger.Warn("failed to read stream group info", "error", err)
		}
		return
	}
	for _, g := range groups {
		if g.Name == ConsumerGroup {
			w.metrics.SetInstallQueueDepth(g.Pending + g.Lag)
			return
		}
	}
}

func (w *Worker) deadLetter(ctx context.Context, msg redis.XMessage, reason, detail string) {
	w.logger.Warn("dead-lettering installation event",
		"message_id", msg.ID,
		"reason", reason,
		"detail", detail,
	)
	err := w.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: DeadLetterStreamKey,
		MaxLen: deadLetterMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"original_id":      msg.ID,
			"reason":           reason,
			"detail":           detail,
			"payload":          fmt.Sprint(msg.Values["payload"]),
			"dead_lettered_at": time.Now().UTC().Format(time.RFC3339),
		},
	}).Err()
	if err != nil {
		w.logger.Error("failed to write dead-letter entry", "message_id", msg.ID, "error", err)
	}
	w.metrics.IncInstallEventProcessed(metrics.StatusSkipped)
}

func (w *Worker) insertWithRetry(ctx context.Context, batch []*model.Installation) error {
	var lastErr error
	for attempt := 1; attempt <= w.maxRetries; attempt++ {
		start := time.Now()
		lastErr = w.store.BulkInsertInstallations(ctx, batch)
		if lastErr == nil {
			w.metrics.ObserveInstallBatchSize(len(batch))
			w.metrics.ObserveInstallBatchDuration(time.Since(start))
			for range batch {
				w.metrics.IncInstallEventProcessed(metrics.StatusSuccess)
			}
			w.logger.Debug("installation batch stored", "events", len(batch), "duration", time.Since(start))
			return nil
		}
		if attempt == w.maxRetries {
			break
		}
		wait := w.backoff(attempt)
		w.logger.Warn("installation batch failed, retrying",
			"attempt", attempt,
			"backoff", wait,
			"error", lastErr,
		)
		if !sleep(ctx, wait) {
			return ctx.Err()
		}
	}
	for range batch {
		w.metrics.IncInstallEventProcessed(metrics.StatusFailed)
	}
	return fmt.Errorf("bulk insert installations: %w", lastErr)
}

func (w *Worker) ack(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := w.redis.XAck(ctx, StreamKey, ConsumerGroup, ids...).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	return nil
}

// sleep waits for d and reports whether ctx was still live.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
