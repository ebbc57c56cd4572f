package queue_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/absmach/swamp/pkg/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReceiveTimeout(t *testing.T) {
	q := queue.NewUnbounded[int]()

	start := time.Now()
	_, err := q.Receive(context.Background(), 20*time.Millisecond)
	assert.ErrorIs(t, err, queue.ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestReceiveContextCancelled(t *testing.T) {
	q := queue.NewUnbounded[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Receive(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCloseDrainsThenReportsClosed(t *testing.T) {
	q := queue.NewUnbounded[string]()
	require.NoError(t, q.Send("a"))
	require.NoError(t, q.Send("b"))
	q.Close()
	q.Close()

	assert.ErrorIs(t, q.Send("c"), queue.ErrClosed)

	for _, want := range []string{"a", "b"} {
		got, err := q.Receive(context.Background(), time.Second)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := q.Receive(context.Background(), time.Second)
	assert.ErrorIs(t, err, queue.ErrClosed)
}

func TestReceiveWakesOnSend(t *testing.T) {
	q := queue.NewUnbounded[int]()

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = q.Send(7)
	}()

	got, err := q.Receive(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 7, got)
}

// Every item sent by concurrent producers is received exactly once, and each
// producer's items arrive in the order it sent them.
func TestConcurrentProducersExactlyOnce(t *testing.T) {
	const (
		producers = 8
		perSender = 500
	)

	q := queue.NewUnbounded[string]()

	var wg sync.WaitGroup
	for p := range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perSender {
				assert.NoError(t, q.Send(fmt.Sprintf("%d:%d", p, i)))
			}
		}()
	}
	go func() {
		wg.Wait()
		q.Close()
	}()

	seen := make(map[string]int)
	next := make([]int, producers)
	for {
		v, err := q.Receive(context.Background(), 5*time.Second)
		if err != nil {
			require.ErrorIs(t, err, queue.ErrClosed)

			break
		}
		seen[v]++

		var p, i int
		_, err = fmt.Sscanf(v, "%d:%d", &p, &i)
		require.NoError(t, err)
		assert.Equal(t, next[p], i, "producer %d out of order", p)
		next[p] = i + 1
	}

	assert.Len(t, seen, producers*perSender)
	for v, n := range seen {
		assert.Equal(t, 1, n, "item %s received %d times", v, n)
	}
	assert.Equal(t, 0, q.Len())
}
