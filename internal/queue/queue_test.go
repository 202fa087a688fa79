package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sweeney/bat-detector/internal/logic"
	"github.com/sweeney/bat-detector/internal/tick"
)

// TestMain provides goleak verification to detect goroutine leaks
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func rec(pin int, tk tick.Tick) logic.Record {
	return logic.Record{Pin: pin, Tick: tk}
}

func TestTryPopEmpty(t *testing.T) {
	q := New(0)
	_, ok := q.TryPop()
	assert.False(t, ok)
	assert.Equal(t, 0, q.Len())
}

func TestFIFOSingleProducer(t *testing.T) {
	q := New(0)
	const n = 1000
	for i := 0; i < n; i++ {
		require.True(t, q.Push(rec(17, tick.Tick(i))))
	}
	assert.Equal(t, n, q.Len())

	ctx := context.Background()
	for i := 0; i < n; i++ {
		r, err := q.Pop(ctx)
		require.NoError(t, err)
		require.Equal(t, tick.Tick(i), r.Tick, "record %d out of order", i)
	}
	assert.Equal(t, 0, q.Len())
}

func TestFIFOAcrossGrowthWithWrappedHead(t *testing.T) {
	q := New(0)
	var next, want tick.Tick

	// Move the head into the middle of the ring before forcing a resize.
	for i := 0; i < initialSize; i++ {
		q.Push(rec(1, next))
		next++
	}
	for i := 0; i < initialSize/2; i++ {
		r, ok := q.TryPop()
		require.True(t, ok)
		require.Equal(t, want, r.Tick)
		want++
	}
	for i := 0; i < initialSize*3; i++ {
		q.Push(rec(1, next))
		next++
	}

	for want < next {
		r, ok := q.TryPop()
		require.True(t, ok)
		require.Equal(t, want, r.Tick)
		want++
	}
	_, ok := q.TryPop()
	assert.False(t, ok)
}

func TestBoundedDropsIncoming(t *testing.T) {
	q := New(3)
	assert.Equal(t, 3, q.Capacity())

	for i := 0; i < 3; i++ {
		require.True(t, q.Push(rec(17, tick.Tick(i))))
	}
	assert.False(t, q.Push(rec(17, 99)))
	assert.False(t, q.Push(rec(17, 100)))
	assert.Equal(t, uint64(2), q.Dropped())
	assert.Equal(t, 3, q.Len())

	// The queued records are the oldest three, untouched by the drops.
	for i := 0; i < 3; i++ {
		r, ok := q.TryPop()
		require.True(t, ok)
		assert.Equal(t, tick.Tick(i), r.Tick)
	}

	// Space is available again after draining.
	assert.True(t, q.Push(rec(17, 5)))
	assert.Equal(t, uint64(2), q.Dropped())
}

func TestBoundedGrowsUpToCapacity(t *testing.T) {
	q := New(initialSize + 10)
	for i := 0; i < initialSize+10; i++ {
		require.True(t, q.Push(rec(17, tick.Tick(i))), "push %d", i)
	}
	assert.False(t, q.Push(rec(17, 0)))
	assert.Equal(t, uint64(1), q.Dropped())
}

func TestNegativeCapacityIsUnbounded(t *testing.T) {
	q := New(-5)
	assert.Equal(t, 0, q.Capacity())
	for i := 0; i < initialSize*2; i++ {
		require.True(t, q.Push(rec(17, tick.Tick(i))))
	}
	assert.Zero(t, q.Dropped())
}

func TestPopBlocksUntilPush(t *testing.T) {
	q := New(0)
	got := make(chan logic.Record, 1)

	go func() {
		r, err := q.Pop(context.Background())
		if err == nil {
			got <- r
		}
		close(got)
	}()

	select {
	case <-got:
		t.Fatal("Pop returned before any push")
	case <-time.After(20 * time.Millisecond):
	}

	q.Push(rec(27, 42))

	select {
	case r := <-got:
		assert.Equal(t, 27, r.Pin)
		assert.Equal(t, tick.Tick(42), r.Tick)
	case <-time.After(time.Second):
		t.Fatal("Pop did not return after push")
	}
}

func TestPopCancelled(t *testing.T) {
	q := New(0)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := q.Pop(ctx)
		errCh <- err
	}()

	cancel()

	select {
	case err := <-errCh:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(time.Second):
		t.Fatal("Pop did not return after cancel")
	}
}

func TestConcurrentProducersPreservePerPinOrder(t *testing.T) {
	q := New(0)
	pins := []int{17, 27, 22}
	const perPin = 2000

	var wg sync.WaitGroup
	for _, pin := range pins {
		wg.Add(1)
		go func(pin int) {
			defer wg.Done()
			for i := 0; i < perPin; i++ {
				q.Push(rec(pin, tick.Tick(i)))
			}
		}(pin)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	next := map[int]tick.Tick{}
	for i := 0; i < perPin*len(pins); i++ {
		r, err := q.Pop(ctx)
		require.NoError(t, err)
		require.Equal(t, next[r.Pin], r.Tick, "pin %d out of order", r.Pin)
		next[r.Pin]++
	}
	wg.Wait()

	for _, pin := range pins {
		assert.Equal(t, tick.Tick(perPin), next[pin])
	}
	assert.Zero(t, q.Dropped())
}
