// Package brokertest provides an in-memory QueueClient for exercising the
// activation and forwarding pipeline without a running broker.
package brokertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/davidleathers/auction-bid-gateway/internal/infrastructure/messaging"
)

const subscriberBuffer = 256

type queue struct {
	backlog [][]byte
	sub     chan messaging.Delivery
}

// Broker is a process-local broker with the same declaration semantics as
// the RabbitMQ client: operations on undeclared queues fail, declares are
// idempotent, messages are FIFO per queue.
type Broker struct {
	mu     sync.Mutex
	queues map[string]*queue
	closed bool
}

func New() *Broker {
	return &Broker{queues: make(map[string]*queue)}
}

func (b *Broker) DeclareQueue(ctx context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("broker closed")
	}
	if _, ok := b.queues[name]; !ok {
		b.queues[name] = &queue{}
	}
	return nil
}

func (b *Broker) DeleteQueue(ctx context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[name]
	if !ok {
		return fmt.Errorf("queue %s does not exist", name)
	}
	if q.sub != nil {
		close(q.sub)
	}
	delete(b.queues, name)
	return nil
}

func (b *Broker) Get(ctx context.Context, name string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[name]
	if !ok {
		return nil, false, fmt.Errorf("queue %s does not exist", name)
	}
	if len(q.backlog) == 0 {
		return nil, false, nil
	}
	body := q.backlog[0]
	q.backlog = q.backlog[1:]
	return body, true, nil
}

func (b *Broker) Publish(ctx context.Context, name string, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[name]
	if !ok {
		return fmt.Errorf("queue %s does not exist", name)
	}
	if q.sub != nil {
		select {
		case q.sub <- messaging.Delivery{Body: body}:
			return nil
		default:
			return fmt.Errorf("queue %s subscriber buffer full", name)
		}
	}
	q.backlog = append(q.backlog, body)
	return nil
}

func (b *Broker) Consume(ctx context.Context, name string) (<-chan messaging.Delivery, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[name]
	if !ok {
		return nil, fmt.Errorf("queue %s does not exist", name)
	}
	if q.sub != nil {
		return nil, fmt.Errorf("queue %s already has a consumer", name)
	}

	q.sub = make(chan messaging.Delivery, subscriberBuffer)
	for _, body := range q.backlog {
		q.sub <- messaging.Delivery{Body: body}
	}
	q.backlog = nil
	return q.sub, nil
}

func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, q := range b.queues {
		if q.sub != nil {
			close(q.sub)
			q.sub = nil
		}
	}
	b.closed = true
	return nil
}

// HasQueue reports whether a queue is currently declared.
func (b *Broker) HasQueue(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.queues[name]
	return ok
}

// Backlog returns the undelivered messages sitting on a queue.
func (b *Broker) Backlog(name string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[name]
	if !ok {
		return nil
	}
	out := make([][]byte, len(q.backlog))
	copy(out, q.backlog)
	return out
}
