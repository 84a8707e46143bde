package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type job struct {
	ID    string
	Count int
}

func fastConfig() Config {
	config := DefaultConfig()
	config.RetryDelay = 5 * time.Millisecond
	return config
}

func consumeWithin(t *testing.T, q *Queue[job]) *Message[job] {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, err := q.Consume(ctx)
	require.NoError(t, err)
	return msg
}

func TestPublishConsumeAck(t *testing.T) {
	q := New[job](fastConfig())
	defer q.Close()
	ctx := context.Background()

	require.NoError(t, q.Publish(ctx, &job{ID: "a", Count: 1}))
	assert.Equal(t, 1, q.Size())

	msg := consumeWithin(t, q)
	assert.Equal(t, 0, q.Size())
	assert.Equal(t, "a", msg.Payload().ID)
	assert.Equal(t, 1, msg.Attempt())
	assert.NotEmpty(t, msg.ID())

	require.NoError(t, msg.Ack())
	assert.ErrorIs(t, msg.Ack(), ErrAlreadyProcessed)
	assert.ErrorIs(t, msg.Nack(nil), ErrAlreadyProcessed)
}

func TestNackRedeliversThenDeadLetters(t *testing.T) {
	config := fastConfig()
	config.MaxRetries = 2
	q := New[job](config)
	defer q.Close()

	require.NoError(t, q.Publish(context.Background(), &job{ID: "retry"}))

	var id string
	for attempt := 1; attempt <= 3; attempt++ {
		msg := consumeWithin(t, q)
		assert.Equal(t, attempt, msg.Attempt())
		if id == "" {
			id = msg.ID()
		}
		assert.Equal(t, id, msg.ID(), "redelivery keeps the message id")
		require.NoError(t, msg.Nack(errors.New("boom")))
	}

	require.Eventually(t, func() bool { return q.DLQSize() == 1 }, time.Second, 5*time.Millisecond)
	letters := q.DeadLetters()
	assert.Equal(t, "retry", letters[0].Payload.ID)
	assert.Equal(t, 3, letters[0].Attempts)
	assert.EqualError(t, letters[0].Err, "boom")
	assert.Equal(t, 0, q.Size())
}

func TestNackWithoutDeadLetterDrops(t *testing.T) {
	config := fastConfig()
	config.MaxRetries = 0
	config.DeadLetter = false
	q := New[job](config)
	defer q.Close()

	require.NoError(t, q.Publish(context.Background(), &job{ID: "x"}))
	require.NoError(t, consumeWithin(t, q).Nack(nil))

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, q.Size())
	assert.Equal(t, 0, q.DLQSize())
}

func TestConcurrentProducersAndConsumers(t *testing.T) {
	q := New[job](fastConfig())
	defer q.Close()
	ctx := context.Background()

	const producers, perProducer = 8, 25
	seen := make(map[string]int)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < producers; i++ {
		wg.Add(2)
		go func(p int) {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				assert.NoError(t, q.Publish(ctx, &job{ID: fmt.Sprintf("p%d-m%d", p, j)}))
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				msg, err := q.Consume(ctx)
				if !assert.NoError(t, err) {
					return
				}
				assert.NoError(t, msg.Ack())
				mu.Lock()
				seen[msg.Payload().ID]++
				mu.Unlock()
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
	}

	assert.Len(t, seen, producers*perProducer)
	for id, n := range seen {
		assert.Equal(t, 1, n, id)
	}
}

func TestContextAndClose(t *testing.T) {
	q := New[job](fastConfig())

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, q.Publish(cancelled, &job{}), context.Canceled)

	short, cancelShort := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancelShort()
	_, err := q.Consume(short)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	q.Close()
	_, err = q.Consume(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, q.Publish(context.Background(), &job{}), ErrClosed)
}
