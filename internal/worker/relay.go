package worker

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"staybook/internal/config"
	"staybook/internal/domain"
	"staybook/internal/metrics"
	"staybook/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// OutboxStore is the part of the database the relay needs.
type OutboxStore interface {
	GetPendingEvents(ctx context.Context, now time.Time, limit int) ([]models.OutboxEvent, error)
	UpdateEventStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
}

// Broker delivers one serialized event.
type Broker interface {
	Publish(ctx context.Context, eventType string, messageID string, body []byte) error
}

// OutboxRelay forwards events written in booking transactions to the broker.
// Delivery is at-least-once; the outbox row id is the message id.
type OutboxRelay struct {
	store         OutboxStore
	broker        Broker
	redis         *redis.Client
	retryPolicy   RetryPolicy
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	clock         domain.Clock
	logger        *zerolog.Logger
}

func NewOutboxRelay(store OutboxStore, broker Broker, redisClient *redis.Client, cfg config.EventsConfig, clock domain.Clock, logger *zerolog.Logger) *OutboxRelay {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = models.DefaultRelayMaxRetries
	}
	if cfg.DeadLetterQueue == "" {
		cfg.DeadLetterQueue = "staybook:events:deadletter"
	}
	if clock == nil {
		clock = domain.SystemClock{}
	}

	return &OutboxRelay{
		store:         store,
		broker:        broker,
		redis:         redisClient,
		retryPolicy:   RetryPolicy{MaxRetries: cfg.MaxRetries},
		deadLetterKey: cfg.DeadLetterQueue,
		pollInterval:  cfg.PollInterval,
		batchSize:     cfg.BatchSize,
		clock:         clock,
		logger:        logger,
	}
}

// Start polls the outbox until ctx is done.
func (w *OutboxRelay) Start(ctx context.Context) {
	w.logger.Info().Msg("Outbox relay started")
	defer w.logger.Info().Msg("Outbox relay stopped")

	for {
		n, err := w.RelayOnce(ctx)
		if err != nil && ctx.Err() == nil {
			w.logger.Error().Err(err).Msg("Failed to fetch pending events")
		}

		// полный батч означает, что в очереди, вероятно, есть еще события
		if n == w.batchSize {
			if ctx.Err() != nil {
				return
			}
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.pollInterval):
		}
	}
}

// RelayOnce delivers one batch and returns how many events it attempted.
func (w *OutboxRelay) RelayOnce(ctx context.Context) (int, error) {
	events, err := w.store.GetPendingEvents(ctx, w.clock.Now(), w.batchSize)
	if err != nil {
		return 0, err
	}
	for i := range events {
		if ctx.Err() != nil {
			return i, ctx.Err()
		}
		w.deliver(ctx, &events[i])
	}
	return len(events), nil
}

func (w *OutboxRelay) deliver(ctx context.Context, e *models.OutboxEvent) {
	err := w.broker.Publish(ctx, e.EventType, strconv.FormatInt(e.ID, 10), []byte(e.Payload))
	if err != nil {
		w.retryOrFail(ctx, e, err)
		return
	}

	metrics.IncRelayed("delivered")
	if err := w.store.UpdateEventStatus(ctx, e.ID, models.OutboxCompleted, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("event_id", e.ID).Msg("Failed to mark event delivered")
	}
}

func (w *OutboxRelay) retryOrFail(ctx context.Context, e *models.OutboxEvent, cause error) {
	attempt := e.RetryCount + 1
	if w.retryPolicy.Exhausted(attempt) {
		metrics.IncRelayed("dead_letter")
		w.logger.Error().Err(cause).Int64("event_id", e.ID).Str("event_type", e.EventType).Int("attempts", attempt).
			Msg("Event delivery failed permanently")
		if err := w.store.UpdateEventStatus(ctx, e.ID, models.OutboxFailed, cause.Error(), nil); err != nil {
			w.logger.Error().Err(err).Int64("event_id", e.ID).Msg("Failed to mark event failed")
		}
		w.pushDeadLetter(ctx, e, cause)
		return
	}

	metrics.IncRelayed("retry")
	next := w.clock.Now().Add(w.retryPolicy.NextDelay(attempt))
	w.logger.Warn().Err(cause).Int64("event_id", e.ID).Int("attempt", attempt).Time("next_retry_at", next).
		Msg("Event delivery failed, will retry")
	if err := w.store.UpdateEventStatus(ctx, e.ID, models.OutboxRetry, cause.Error(), &next); err != nil {
		w.logger.Error().Err(err).Int64("event_id", e.ID).Msg("Failed to schedule event retry")
	}
}

type deadLetter struct {
	models.OutboxEvent
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

func (w *OutboxRelay) pushDeadLetter(ctx context.Context, e *models.OutboxEvent, cause error) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(deadLetter{OutboxEvent: *e, Error: cause.Error(), FailedAt: w.clock.Now()})
	if err != nil {
		w.logger.Error().Err(err).Int64("event_id", e.ID).Msg("Failed to encode dead letter")
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("event_id", e.ID).Msg("Failed to push dead letter")
	}
}
