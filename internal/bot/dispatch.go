package bot

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xaenox/bridge-bot/internal/metrics"
	"github.com/xaenox/bridge-bot/internal/models"
	"github.com/xaenox/bridge-bot/internal/relay"
)

// MessageHandler consumes message-created events.
type MessageHandler interface {
	HandleMessage(ctx context.Context, m *models.InboundMessage) models.Outcome
}

// ReactionHandler consumes reaction-added events.
type ReactionHandler interface {
	HandleReaction(ctx context.Context, r *models.ReactionEvent) models.Outcome
}

// Dispatcher is the error boundary between a listener and the relay. Every
// event runs through Dispatch, which logs failures and recovers panics so
// the listener keeps going. After Close no new events are accepted.
type Dispatcher struct {
	platform string
	logger   *zap.Logger

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

func NewDispatcher(platform string, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		platform: platform,
		logger:   logger.With(zap.String("platform", platform)),
	}
}

// Decoder turns a raw platform payload into a validated event.
type Decoder func(ctx context.Context) (models.Event, error)

// Dispatch decodes one event and routes it to the matching handler.
func (d *Dispatcher) Dispatch(ctx context.Context, decode Decoder, messages MessageHandler, reactions ReactionHandler) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		metrics.DroppedEvents.WithLabelValues(d.platform, "shutdown").Inc()
		return
	}
	d.inflight.Add(1)
	d.mu.Unlock()
	defer d.inflight.Done()

	logger := d.logger.With(zap.String("event_id", uuid.New().String()))
	ctx = relay.WithLogger(ctx, logger)

	defer func() {
		if r := recover(); r != nil {
			metrics.DroppedEvents.WithLabelValues(d.platform, "panic").Inc()
			logger.Error("Recovered from panic in event handler", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()

	evt, err := decode(ctx)
	if err != nil {
		metrics.DroppedEvents.WithLabelValues(d.platform, "invalid").Inc()
		logger.Warn("Dropping event", zap.Error(err))
		return
	}
	if evt == nil {
		return
	}
	if err := evt.Validate(); err != nil {
		metrics.DroppedEvents.WithLabelValues(d.platform, "invalid").Inc()
		logger.Warn("Dropping invalid event", zap.Error(err), zap.String("kind", string(evt.Kind())))
		return
	}

	var outcome models.Outcome
	switch e := evt.(type) {
	case *models.InboundMessage:
		if messages == nil {
			return
		}
		outcome = messages.HandleMessage(ctx, e)
	case *models.ReactionEvent:
		if reactions == nil {
			return
		}
		outcome = reactions.HandleReaction(ctx, e)
	default:
		logger.Warn("Unhandled event type", zap.String("type", fmt.Sprintf("%T", evt)))
		return
	}

	logger.Debug("Event handled",
		zap.String("kind", string(evt.Kind())),
		zap.String("outcome", string(outcome)))
}

// Close stops accepting new events. In-flight events keep running.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
}

// Wait blocks until in-flight events finish or ctx expires.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
