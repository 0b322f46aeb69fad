package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitForSlot_LimitOne_SerializesAtLeastSixtySeconds(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping real-time 60s boundary test in short mode")
	}
	l := New()
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, l.WaitForSlot(ctx, "p1", 1))
	first := time.Since(start)
	assert.Less(t, first, 1*time.Second, "first call should not wait")

	start2 := time.Now()
	require.NoError(t, l.WaitForSlot(ctx, "p1", 1))
	second := time.Since(start2)
	assert.GreaterOrEqual(t, second, 59*time.Second, "second call on a limit=1 project must wait ~60s")
}

func TestWaitForSlot_IndependentProjectsDoNotBlockEachOther(t *testing.T) {
	l := New()
	ctx := context.Background()

	var wg sync.WaitGroup
	durations := make([]time.Duration, 2)
	projects := []string{"a", "b"}

	for i, p := range projects {
		wg.Add(1)
		go func(idx int, project string) {
			defer wg.Done()
			start := time.Now()
			_ = l.WaitForSlot(ctx, project, 5)
			durations[idx] = time.Since(start)
		}(i, p)
	}
	wg.Wait()

	for _, d := range durations {
		assert.Less(t, d, 500*time.Millisecond)
	}
}

func TestWaitForSlot_WithinLimitDoesNotBlock(t *testing.T) {
	l := New()
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, l.WaitForSlot(ctx, "p2", 5))
	}
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestWaitForSlot_ContextCancellation(t *testing.T) {
	l := New()
	ctx, cancel := context.Background(), func() {}
	_ = cancel
	require.NoError(t, l.WaitForSlot(ctx, "p3", 1))

	cctx, ccancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer ccancel()
	err := l.WaitForSlot(cctx, "p3", 1)
	assert.Error(t, err)
}
