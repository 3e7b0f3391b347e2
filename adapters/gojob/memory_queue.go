package gojob

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
)

const defaultMemoryQueueCapacity = 128

// MemoryQueue is an in-process go-job queue for single-node deployments and
// tests. Messages sharing an idempotency key are dropped while one is pending.
type MemoryQueue struct {
	deliveries chan *memoryDelivery

	mu          sync.Mutex
	pending     map[string]struct{}
	deadLetters []*job.ExecutionMessage
	closed      bool
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = defaultMemoryQueueCapacity
	}
	return &MemoryQueue{
		deliveries: make(chan *memoryDelivery, capacity),
		pending:    map[string]struct{}{},
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, msg *job.ExecutionMessage) error {
	if q == nil {
		return fmt.Errorf("gojob: memory queue is not configured")
	}
	if msg == nil {
		return fmt.Errorf("gojob: execution message is required")
	}
	key := strings.TrimSpace(msg.IdempotencyKey)

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return fmt.Errorf("gojob: memory queue is closed")
	}
	if key != "" {
		if _, exists := q.pending[key]; exists {
			q.mu.Unlock()
			return nil
		}
		q.pending[key] = struct{}{}
	}
	q.mu.Unlock()

	return q.push(ctx, &memoryDelivery{queue: q, msg: msg, attempt: 1})
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (queue.Delivery, error) {
	if q == nil {
		return nil, fmt.Errorf("gojob: memory queue is not configured")
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case delivery, ok := <-q.deliveries:
		if !ok {
			return nil, fmt.Errorf("gojob: memory queue is closed")
		}
		return delivery, nil
	}
}

// DeadLetters returns the messages nacked to the dead letter queue.
func (q *MemoryQueue) DeadLetters() []*job.ExecutionMessage {
	if q == nil {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*job.ExecutionMessage(nil), q.deadLetters...)
}

func (q *MemoryQueue) Close() {
	if q == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.deliveries)
}

func (q *MemoryQueue) push(ctx context.Context, delivery *memoryDelivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return fmt.Errorf("gojob: memory queue is closed")
	}
	select {
	case q.deliveries <- delivery:
		return nil
	case <-ctx.Done():
		q.release(delivery.msg)
		return ctx.Err()
	default:
		q.release(delivery.msg)
		return fmt.Errorf("gojob: memory queue is full")
	}
}

// release must be called with mu held.
func (q *MemoryQueue) release(msg *job.ExecutionMessage) {
	if msg == nil {
		return
	}
	if key := strings.TrimSpace(msg.IdempotencyKey); key != "" {
		delete(q.pending, key)
	}
}

type memoryDelivery struct {
	queue   *MemoryQueue
	msg     *job.ExecutionMessage
	attempt int
}

func (d *memoryDelivery) Message() *job.ExecutionMessage {
	return d.msg
}

func (d *memoryDelivery) Attempt() int {
	return d.attempt
}

func (d *memoryDelivery) Ack(context.Context) error {
	d.queue.mu.Lock()
	defer d.queue.mu.Unlock()
	d.queue.release(d.msg)
	return nil
}

func (d *memoryDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	q := d.queue
	if opts.Requeue && !opts.DeadLetter {
		next := &memoryDelivery{queue: q, msg: d.msg, attempt: d.attempt + 1}
		if opts.Delay <= 0 {
			return q.push(context.Background(), next)
		}
		time.AfterFunc(opts.Delay, func() {
			_ = q.push(context.Background(), next)
		})
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.release(d.msg)
	if opts.DeadLetter {
		q.deadLetters = append(q.deadLetters, d.msg)
	}
	return nil
}

var (
	_ queue.Enqueuer = (*MemoryQueue)(nil)
	_ queue.Dequeuer = (*MemoryQueue)(nil)
	_ queue.Delivery = (*memoryDelivery)(nil)
)
