package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revivalist/lorecard/internal/models"
)

func TestRequestCancellation_RejectsTerminalJob(t *testing.T) {
	store := newFakeJobStore()
	job := &models.BackgroundJob{
		ID: "job1", ProjectID: "proj1", TaskKind: models.TaskConfirmLinks,
		Status: models.JobStatusCompleted, CreatedAt: time.Now(),
	}
	require.NoError(t, store.CreateJob(context.Background(), job))

	err := RequestCancellation(context.Background(), store, "job1")
	assert.ErrorIs(t, err, ErrJobAlreadyTerminal)
}

func TestRequestCancellation_SetsDurableFlagOnInProgressJob(t *testing.T) {
	store := newFakeJobStore()
	job := &models.BackgroundJob{
		ID: "job1", ProjectID: "proj1", TaskKind: models.TaskConfirmLinks,
		Status: models.JobStatusInProgress, CreatedAt: time.Now(),
	}
	require.NoError(t, store.CreateJob(context.Background(), job))

	require.NoError(t, RequestCancellation(context.Background(), store, "job1"))

	requested, err := store.IsCancellationRequested(context.Background(), "job1")
	require.NoError(t, err)
	assert.True(t, requested)

	got, err := store.GetJob(context.Background(), "job1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelling, got.Status, "a client polling mid-cancel must see cancelling, not the stale in_progress")
}

func TestCancelSidecar_PropagatesDurableFlagToInProcessCancellable(t *testing.T) {
	store := newFakeJobStore()
	job := &models.BackgroundJob{
		ID: "job1", ProjectID: "proj1", TaskKind: models.TaskConfirmLinks,
		Status: models.JobStatusPending, Payload: []byte(`{}`), CreatedAt: time.Now(),
	}
	require.NoError(t, store.CreateJob(context.Background(), job))

	releaseHandler := make(chan struct{})
	observed := make(chan bool, 1)

	pool := newTestPool(store)
	pool.RegisterHandler(models.TaskConfirmLinks, func(ctx context.Context, j *models.BackgroundJob, c Cancellable) (interface{}, error) {
		for {
			select {
			case <-releaseHandler:
				observed <- c.CancelRequested()
				return nil, nil
			default:
				if c.CancelRequested() {
					observed <- true
					return nil, nil
				}
				time.Sleep(5 * time.Millisecond)
			}
		}
	})
	pool.Start()
	defer pool.Stop()

	require.Eventually(t, func() bool {
		got, err := store.GetJob(context.Background(), "job1")
		return err == nil && got.Status == models.JobStatusInProgress
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, store.RequestJobCancellation(context.Background(), "job1"))

	sidecar := NewCancelSidecar(store, pool, 10*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go sidecar.Run(ctx)
	defer cancel()

	select {
	case ok := <-observed:
		assert.True(t, ok, "handler must observe cancellation propagated by the sidecar's sweep")
	case <-time.After(2 * time.Second):
		close(releaseHandler)
		t.Fatal("sidecar never propagated the durable cancellation flag")
	}
}
