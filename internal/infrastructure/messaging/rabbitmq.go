package messaging

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// rabbitClient implements QueueClient on a single AMQP connection. Queue
// management and publishing share one channel behind a mutex; each Consume
// call opens its own channel so a blocking consumer never starves the
// control path.
type rabbitClient struct {
	conn   *amqp.Connection
	logger *zap.Logger

	mu sync.Mutex
	ch *amqp.Channel
}

// NewRabbitClient dials the broker and opens the control channel.
func NewRabbitClient(url string, logger *zap.Logger) (QueueClient, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial failed: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel open failed: %w", err)
	}

	logger.Info("rabbitmq client connected", zap.String("url", url))

	return &rabbitClient{conn: conn, ch: ch, logger: logger}, nil
}

// Queues are non-durable, non-exclusive and never auto-deleted, matching
// the declaration style of the surrounding auction services.
func (c *rabbitClient) DeclareQueue(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.ch.QueueDeclare(name, false, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", name, err)
	}
	return nil
}

func (c *rabbitClient) DeleteQueue(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.ch.QueueDelete(name, false, false, false); err != nil {
		return fmt.Errorf("delete queue %s: %w", name, err)
	}
	return nil
}

func (c *rabbitClient) Get(ctx context.Context, queue string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg, ok, err := c.ch.Get(queue, true)
	if err != nil {
		return nil, false, fmt.Errorf("get from queue %s: %w", queue, err)
	}
	if !ok {
		return nil, false, nil
	}
	return msg.Body, true, nil
}

func (c *rabbitClient) Publish(ctx context.Context, queue string, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("publish to queue %s: %w", queue, err)
	}
	return nil
}

func (c *rabbitClient) Consume(ctx context.Context, queue string) (<-chan Delivery, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("consumer channel open failed: %w", err)
	}

	deliveries, err := ch.ConsumeWithContext(ctx, queue, "", true, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("consume from queue %s: %w", queue, err)
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)
		defer ch.Close()
		for d := range deliveries {
			select {
			case out <- Delivery{Body: d.Body}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func (c *rabbitClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ch != nil {
		_ = c.ch.Close()
	}
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("rabbitmq close failed: %w", err)
	}
	c.logger.Info("rabbitmq client closed")
	return nil
}
