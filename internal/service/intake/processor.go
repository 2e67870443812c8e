// Package intake drains raw bid submissions from the active item's intake
// queue, validates them and hands survivors to the forwarding publisher.
// The processor only runs while an auction is live; the scheduler starts
// it on activation and cancels it on deactivation.
package intake

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/davidleathers/auction-bid-gateway/internal/domain/bid"
	"github.com/davidleathers/auction-bid-gateway/internal/infrastructure/messaging"
	"github.com/davidleathers/auction-bid-gateway/internal/metrics"
	"github.com/davidleathers/auction-bid-gateway/internal/service/validation"
)

// QueueConsumer is the broker surface the processor needs.
type QueueConsumer interface {
	Consume(ctx context.Context, queue string) (<-chan messaging.Delivery, error)
}

// RegistryReader resolves the intake queue at loop start, not at process
// start, since the active item changes daily.
type RegistryReader interface {
	IntakeQueue() (string, bool)
}

// Validator answers whether an item is currently auctionable.
type Validator interface {
	Validate(ctx context.Context, itemID string) validation.Outcome
}

// Publisher forwards a validated bid.
type Publisher interface {
	Publish(ctx context.Context, b *bid.Bid) bool
}

type Processor struct {
	broker    QueueConsumer
	registry  RegistryReader
	validator Validator
	publisher Publisher
	logger    *zap.Logger
}

func NewProcessor(broker QueueConsumer, registry RegistryReader, validator Validator, publisher Publisher, logger *zap.Logger) *Processor {
	return &Processor{
		broker:    broker,
		registry:  registry,
		validator: validator,
		publisher: publisher,
		logger:    logger,
	}
}

// Run consumes the active intake queue until ctx is canceled or the
// delivery stream closes. Messages are handled one at a time, preserving
// intake order through to the forwarding queue.
func (p *Processor) Run(ctx context.Context) error {
	queue, ok := p.registry.IntakeQueue()
	if !ok {
		p.logger.Warn("intake processor started with no active auction")
		return nil
	}

	deliveries, err := p.broker.Consume(ctx, queue)
	if err != nil {
		p.logger.Error("failed to start consuming intake queue",
			zap.String("queue", queue), zap.Error(err))
		return err
	}

	p.logger.Info("listening for bids", zap.String("queue", queue))

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("intake processor stopped", zap.String("queue", queue))
			return nil
		case d, open := <-deliveries:
			if !open {
				p.logger.Info("intake delivery stream closed", zap.String("queue", queue))
				return nil
			}
			p.handle(ctx, d)
		}
	}
}

// handle processes a single delivery. Failures drop the message; broker
// delivery is at-most-once here and stale or malformed bids are discarded
// rather than retried.
func (p *Processor) handle(ctx context.Context, d messaging.Delivery) {
	metrics.BidsConsumed.Inc()

	var b bid.Bid
	if err := json.Unmarshal(d.Body, &b); err != nil {
		metrics.BidsDropped.WithLabelValues(metrics.DropReasonMalformed).Inc()
		p.logger.Warn("dropping undeserializable bid message", zap.Error(err))
		return
	}
	if b.ItemID == "" {
		metrics.BidsDropped.WithLabelValues(metrics.DropReasonMalformed).Inc()
		p.logger.Warn("dropping bid without item ID", zap.String("bid_id", b.ID))
		return
	}

	outcome := p.validator.Validate(ctx, b.ItemID)
	if !outcome.Valid {
		metrics.BidsDropped.WithLabelValues(metrics.DropReasonNotAuctionable).Inc()
		p.logger.Warn("dropping bid for item that is not auctionable",
			zap.String("bid_id", b.ID),
			zap.String("item_id", b.ItemID))
		return
	}

	if !p.publisher.Publish(ctx, &b) {
		metrics.BidsDropped.WithLabelValues(metrics.DropReasonPublishFailed).Inc()
	}
}
