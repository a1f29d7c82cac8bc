// Package memqueue is an in-memory queue.Consumer/Producer pair, grounded
// on the teacher's MemoryQueue slice+mutex shape but generalized from a
// priority job queue down to a plain FIFO of queue.Message.
package memqueue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/arcfin/planner/internal/queue"
)

// ErrEmpty reports an empty queue. No method of Queue returns it:
// Receive polls until a message arrives or ctx is done.
var ErrEmpty = errors.New("memqueue: empty")

// DeadLetter records one message sent to the dead-letter sink.
type DeadLetter struct {
	Message queue.Message
	Reason  string
	At      time.Time
}

// Queue is a FIFO in-memory implementation suitable for tests and
// single-process/dev runs.
type Queue struct {
	mu          sync.Mutex
	pending     []queue.Message
	deadLetters []DeadLetter
	pollEvery   time.Duration
}

// New creates an empty queue. pollEvery controls how often a blocked
// Receive rechecks for new messages; tests typically use a few
// milliseconds.
func New(pollEvery time.Duration) *Queue {
	if pollEvery <= 0 {
		pollEvery = 10 * time.Millisecond
	}
	return &Queue{pollEvery: pollEvery}
}

// Enqueue appends a new job at attempt 1.
func (q *Queue) Enqueue(ctx context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, queue.Message{JobID: jobID, Attempt: 1})
	return nil
}

// Receive blocks (polling on an interval) until a message is available or
// ctx is cancelled.
func (q *Queue) Receive(ctx context.Context) (*queue.Message, error) {
	ticker := time.NewTicker(q.pollEvery)
	defer ticker.Stop()

	for {
		if msg, ok := q.tryPop(); ok {
			return msg, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (q *Queue) tryPop() (*queue.Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil, false
	}
	msg := q.pending[0]
	q.pending = q.pending[1:]
	return &msg, true
}

// Ack is a no-op: the message was already removed from pending by Receive.
func (q *Queue) Ack(ctx context.Context, msg *queue.Message) error {
	return nil
}

// Nack re-enqueues the message with Attempt incremented, modeling
// redelivery.
func (q *Queue) Nack(ctx context.Context, msg *queue.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, queue.Message{JobID: msg.JobID, Attempt: msg.Attempt + 1})
	return nil
}

// DeadLetter records the message in the dead-letter sink instead of
// requeuing it.
func (q *Queue) DeadLetter(ctx context.Context, msg *queue.Message, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deadLetters = append(q.deadLetters, DeadLetter{Message: *msg, Reason: reason, At: time.Now()})
	return nil
}

// DeadLetters returns a copy of everything sent to the dead-letter sink,
// for test assertions.
func (q *Queue) DeadLetters() []DeadLetter {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]DeadLetter, len(q.deadLetters))
	copy(out, q.deadLetters)
	return out
}

// Size reports the number of messages currently pending (not dead-lettered).
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
