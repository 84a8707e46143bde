// Package queue is an in-process, at-least-once message queue. A consumer acknowledges every
// message it takes; a negative acknowledgement puts the message back after a delay until its
// retry budget runs out, after which it is parked in a dead-letter list.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAlreadyProcessed = errors.New("message already processed")
	ErrClosed           = errors.New("queue closed")
)

type Config struct {
	MaxRetries  int
	RetryDelay  time.Duration
	DeadLetter  bool
	QueueBuffer int
}

func DefaultConfig() Config {
	return Config{
		MaxRetries:  3,
		RetryDelay:  100 * time.Millisecond,
		DeadLetter:  true,
		QueueBuffer: 256,
	}
}

// Message is one delivery attempt of a payload.
type Message[T any] struct {
	id        string
	payload   T
	queue     *Queue[T]
	attempt   int
	lastErr   error
	mu        sync.Mutex
	processed bool
}

func (m *Message[T]) ID() string {
	return m.id
}

// Payload returns a pointer to the message payload.
func (m *Message[T]) Payload() *T {
	return &m.payload
}

// Attempt is 1 for the first delivery and grows with every retry.
func (m *Message[T]) Attempt() int {
	return m.attempt
}

func (m *Message[T]) Ack() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.processed {
		return ErrAlreadyProcessed
	}
	m.processed = true
	return nil
}

// Nack reports a failed attempt. The payload is redelivered after RetryDelay while retries
// remain, otherwise it goes to the dead-letter list (when enabled) or is dropped.
func (m *Message[T]) Nack(cause error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.processed {
		return ErrAlreadyProcessed
	}
	m.processed = true
	m.lastErr = cause

	if m.attempt <= m.queue.config.MaxRetries {
		retry := &Message[T]{id: m.id, payload: m.payload, queue: m.queue, attempt: m.attempt + 1}
		m.queue.wg.Add(1)
		go m.queue.redeliver(retry)
		return nil
	}
	if m.queue.config.DeadLetter {
		m.queue.dlqMu.Lock()
		m.queue.dlq = append(m.queue.dlq, DeadLetter[T]{ID: m.id, Payload: m.payload, Attempts: m.attempt, Err: cause})
		m.queue.dlqMu.Unlock()
	}
	return nil
}

// DeadLetter is a payload that exhausted its retries.
type DeadLetter[T any] struct {
	ID       string
	Payload  T
	Attempts int
	Err      error
}

type Queue[T any] struct {
	messages chan *Message[T]
	config   Config
	done     chan struct{}
	once     sync.Once
	wg       sync.WaitGroup

	dlqMu sync.Mutex
	dlq   []DeadLetter[T]
}

func New[T any](config Config) *Queue[T] {
	if config.QueueBuffer <= 0 {
		config.QueueBuffer = DefaultConfig().QueueBuffer
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	return &Queue[T]{
		messages: make(chan *Message[T], config.QueueBuffer),
		config:   config,
		done:     make(chan struct{}),
	}
}

// Publish enqueues a copy of t. It blocks while the buffer is full.
func (q *Queue[T]) Publish(ctx context.Context, t *T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := &Message[T]{id: uuid.New().String(), payload: *t, queue: q, attempt: 1}
	select {
	case <-q.done:
		return ErrClosed
	default:
	}
	select {
	case q.messages <- msg:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume blocks until a message is available, the context ends or the queue is closed.
func (q *Queue[T]) Consume(ctx context.Context) (*Message[T], error) {
	select {
	case msg := <-q.messages:
		return msg, nil
	case <-q.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *Queue[T]) redeliver(msg *Message[T]) {
	defer q.wg.Done()

	timer := time.NewTimer(q.config.RetryDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-q.done:
		return
	}
	select {
	case q.messages <- msg:
	case <-q.done:
	}
}

// Close stops consumers and pending retries. Messages still buffered are discarded.
func (q *Queue[T]) Close() {
	q.once.Do(func() { close(q.done) })
	q.wg.Wait()
}

func (q *Queue[T]) Size() int {
	return len(q.messages)
}

func (q *Queue[T]) DLQSize() int {
	q.dlqMu.Lock()
	defer q.dlqMu.Unlock()
	return len(q.dlq)
}

// DeadLetters returns a snapshot of the dead-letter list.
func (q *Queue[T]) DeadLetters() []DeadLetter[T] {
	q.dlqMu.Lock()
	defer q.dlqMu.Unlock()
	out := make([]DeadLetter[T], len(q.dlq))
	copy(out, q.dlq)
	return out
}
