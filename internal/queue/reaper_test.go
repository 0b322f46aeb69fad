package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/revivalist/lorecard/internal/interfaces"
)

// recoverOnlyStore satisfies interfaces.Store by embedding the (nil) interface
// and overriding only RecoverStaleState, the single method the Reaper calls.
type recoverOnlyStore struct {
	interfaces.Store
	calls chan struct{}
}

func (s *recoverOnlyStore) RecoverStaleState(ctx context.Context) error {
	s.calls <- struct{}{}
	return nil
}

func TestReaper_RunsRecoverStaleStateOnSchedule(t *testing.T) {
	store := &recoverOnlyStore{calls: make(chan struct{}, 8)}
	reaper := NewReaper(store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, reaper.Start(ctx, "@every 20ms"))
	defer reaper.Stop()

	select {
	case <-store.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("reaper never ran a stale-state sweep")
	}
}

func TestReaper_Stop_WaitsForCronToFinish(t *testing.T) {
	store := &recoverOnlyStore{calls: make(chan struct{}, 8)}
	reaper := NewReaper(store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, reaper.Start(ctx, "@every 1h"))
	// Stop must return without blocking forever even when the schedule
	// never fires within the test.
	done := make(chan struct{})
	go func() {
		reaper.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
