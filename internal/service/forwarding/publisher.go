// Package forwarding publishes validated bids onto the active auction's
// forwarding queue. It is the last gate against cross-auction leakage: a
// bid whose item does not derive to the active forwarding queue is
// refused no matter how it reached the pipeline.
package forwarding

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/davidleathers/auction-bid-gateway/internal/domain/auction"
	"github.com/davidleathers/auction-bid-gateway/internal/domain/bid"
	"github.com/davidleathers/auction-bid-gateway/internal/metrics"
)

// QueuePublisher is the broker surface the publisher needs.
type QueuePublisher interface {
	DeclareQueue(ctx context.Context, name string) error
	Publish(ctx context.Context, queue string, body []byte) error
}

// RegistryReader resolves the active forwarding queue at publish time.
type RegistryReader interface {
	ForwardingQueue() (string, bool)
}

type Publisher struct {
	broker   QueuePublisher
	registry RegistryReader
	logger   *zap.Logger
}

func NewPublisher(broker QueuePublisher, registry RegistryReader, logger *zap.Logger) *Publisher {
	return &Publisher{broker: broker, registry: registry, logger: logger}
}

// Publish forwards a validated bid. It returns false, with no partial
// effect, when any precondition fails or the broker call errors.
func (p *Publisher) Publish(ctx context.Context, b *bid.Bid) bool {
	if b == nil || b.ItemID == "" {
		p.logger.Error("refusing to publish bid without item ID")
		return false
	}

	activeQueue, ok := p.registry.ForwardingQueue()
	if !ok {
		p.logger.Error("refusing to publish bid, no active auction",
			zap.String("bid_id", b.ID),
			zap.String("item_id", b.ItemID))
		return false
	}

	if auction.ForwardingQueueName(b.ItemID) != activeQueue {
		p.logger.Error("refusing to publish bid for inactive item",
			zap.String("bid_id", b.ID),
			zap.String("item_id", b.ItemID),
			zap.String("active_queue", activeQueue))
		return false
	}

	body, err := json.Marshal(b)
	if err != nil {
		p.logger.Error("failed to serialize bid",
			zap.String("bid_id", b.ID), zap.Error(err))
		return false
	}

	if err := p.broker.DeclareQueue(ctx, activeQueue); err != nil {
		p.logger.Error("failed to declare forwarding queue",
			zap.String("queue", activeQueue), zap.Error(err))
		return false
	}

	if err := p.broker.Publish(ctx, activeQueue, body); err != nil {
		p.logger.Error("failed to publish bid",
			zap.String("bid_id", b.ID),
			zap.String("queue", activeQueue),
			zap.Error(err))
		return false
	}

	metrics.BidsPublished.Inc()
	p.logger.Info("published bid",
		zap.String("bid_id", b.ID),
		zap.String("item_id", b.ItemID),
		zap.String("queue", activeQueue),
		zap.String("amount", b.Amount.String()))
	return true
}
