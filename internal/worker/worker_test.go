package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"igharvest/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapKeepsInputOrder(t *testing.T) {
	items := []int{5, 1, 4, 2, 3}

	got := Map(context.Background(), 3, items, func(ctx context.Context, _ int, n int) int {
		// later items finish first
		time.Sleep(time.Duration(n) * time.Millisecond)
		return n * 10
	}, logger.NewTestLogger())

	assert.Equal(t, []int{50, 10, 40, 20, 30}, got)
}

func TestMapPassesIndex(t *testing.T) {
	got := Map(context.Background(), 2, []string{"a", "b", "c"}, func(ctx context.Context, i int, s string) int {
		return i
	}, logger.NewTestLogger())

	assert.Equal(t, []int{0, 1, 2}, got)
}

func TestMapSingleWorkerIsSequential(t *testing.T) {
	var (
		mu      sync.Mutex
		order   []string
		running int32
		overlap bool
	)

	items := []string{"a", "b", "c", "d"}
	Map(context.Background(), 1, items, func(ctx context.Context, _ int, s string) struct{} {
		if atomic.AddInt32(&running, 1) > 1 {
			overlap = true
		}
		time.Sleep(2 * time.Millisecond)
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
		atomic.AddInt32(&running, -1)
		return struct{}{}
	}, logger.NewTestLogger())

	assert.False(t, overlap)
	assert.Equal(t, items, order)
}

func TestMapZeroLimitIsSequential(t *testing.T) {
	var running, peak int32

	Map(context.Background(), 0, make([]int, 5), func(ctx context.Context, _ int, _ int) int {
		n := atomic.AddInt32(&running, 1)
		if n > atomic.LoadInt32(&peak) {
			atomic.StoreInt32(&peak, n)
		}
		time.Sleep(time.Millisecond)
		atomic.AddInt32(&running, -1)
		return 0
	}, nil)

	assert.Equal(t, int32(1), atomic.LoadInt32(&peak))
}

func TestMapBoundsConcurrency(t *testing.T) {
	var running, peak int32

	items := make([]int, 20)
	Map(context.Background(), 4, items, func(ctx context.Context, _ int, _ int) int {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return 0
	}, logger.NewTestLogger())

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(4))
}

func TestMapCancelledContextStillReturnsAllResults(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := Map(ctx, 2, []int{1, 2, 3}, func(ctx context.Context, _ int, n int) error {
		return ctx.Err()
	}, logger.NewTestLogger())

	require.Len(t, got, 3)
	for _, err := range got {
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestMapEmpty(t *testing.T) {
	got := Map(context.Background(), 2, []int(nil), func(ctx context.Context, _ int, n int) int {
		t.Fatal("handler must not run")
		return 0
	}, nil)
	assert.Empty(t, got)
}
