package messaging

import "context"

// Delivery is a single message taken off a queue.
type Delivery struct {
	Body []byte
}

// QueueClient is the broker surface the pipeline depends on: named FIFO
// queues with idempotent declaration. Implemented by the RabbitMQ client
// and by the in-memory broker used in tests.
type QueueClient interface {
	// DeclareQueue creates the queue if it does not exist. Idempotent.
	DeclareQueue(ctx context.Context, name string) error
	// DeleteQueue removes the queue and drops its messages.
	DeleteQueue(ctx context.Context, name string) error
	// Get fetches a single message without blocking. ok is false when the
	// queue is empty.
	Get(ctx context.Context, queue string) (body []byte, ok bool, err error)
	// Publish appends a message to the named queue.
	Publish(ctx context.Context, queue string, body []byte) error
	// Consume delivers messages from the queue until ctx is canceled.
	Consume(ctx context.Context, queue string) (<-chan Delivery, error)
	// Close releases the broker connection.
	Close() error
}
