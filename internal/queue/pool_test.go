package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revivalist/lorecard/internal/interfaces"
	"github.com/revivalist/lorecard/internal/models"
)

// fakeJobStore is an in-memory interfaces.JobStore good enough to drive the
// Pool's poll/claim/dispatch loop without a real database.
type fakeJobStore struct {
	mu        sync.Mutex
	jobs      map[string]*models.BackgroundJob
	cancelled map[string]bool
	claims    map[string]int
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{
		jobs:      make(map[string]*models.BackgroundJob),
		cancelled: make(map[string]bool),
		claims:    make(map[string]int),
	}
}

func (f *fakeJobStore) CreateJob(_ context.Context, j *models.BackgroundJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *j
	f.jobs[j.ID] = &cp
	return nil
}

func (f *fakeJobStore) GetJob(_ context.Context, id string) (*models.BackgroundJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return nil, assert.AnError
	}
	cp := *j
	return &cp, nil
}

func (f *fakeJobStore) UpdateJob(_ context.Context, j *models.BackgroundJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *j
	f.jobs[j.ID] = &cp
	return nil
}

func (f *fakeJobStore) ListJobs(_ context.Context, limit, _ int) ([]*models.BackgroundJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.BackgroundJob, 0, len(f.jobs))
	for _, j := range f.jobs {
		cp := *j
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeJobStore) ClaimNextPendingJob(_ context.Context) (*models.BackgroundJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var oldest *models.BackgroundJob
	for _, j := range f.jobs {
		if j.Status != models.JobStatusPending {
			continue
		}
		if oldest == nil || j.CreatedAt.Before(oldest.CreatedAt) {
			oldest = j
		}
	}
	if oldest == nil {
		return nil, nil
	}
	oldest.Status = models.JobStatusInProgress
	f.claims[oldest.ID]++
	cp := *oldest
	return &cp, nil
}

func (f *fakeJobStore) CountInProgressByKind(_ context.Context, kind models.TaskKind) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, j := range f.jobs {
		if j.TaskKind == kind && j.Status == models.JobStatusInProgress {
			n++
		}
	}
	return n, nil
}

func (f *fakeJobStore) InsertApiRequestLog(_ context.Context, _ *models.ApiRequestLog) error {
	return nil
}

func (f *fakeJobStore) RequestJobCancellation(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.jobs[id]; !ok {
		return assert.AnError
	}
	f.cancelled[id] = true
	return nil
}

func (f *fakeJobStore) IsCancellationRequested(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.jobs[id]; !ok {
		return false, assert.AnError
	}
	return f.cancelled[id], nil
}

var _ interfaces.JobStore = (*fakeJobStore)(nil)

func newTestPool(store *fakeJobStore) *Pool {
	return New(store, nil, 10*time.Millisecond, nil)
}

func TestPool_DispatchesRegisteredHandlerAndCompletesJob(t *testing.T) {
	store := newFakeJobStore()
	job := &models.BackgroundJob{
		ID: "job1", ProjectID: "proj1", TaskKind: models.TaskGenerateSearchParams,
		Status: models.JobStatusPending, Payload: []byte(`{}`), CreatedAt: time.Now(),
	}
	require.NoError(t, store.CreateJob(context.Background(), job))

	pool := newTestPool(store)
	done := make(chan struct{})
	pool.RegisterHandler(models.TaskGenerateSearchParams, func(ctx context.Context, j *models.BackgroundJob, c Cancellable) (interface{}, error) {
		close(done)
		return map[string]string{"ok": "yes"}, nil
	})
	pool.Start()
	defer pool.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler was never dispatched")
	}

	// give the pool goroutine a moment to persist the completed status
	require.Eventually(t, func() bool {
		got, err := store.GetJob(context.Background(), "job1")
		return err == nil && got.Status == models.JobStatusCompleted
	}, time.Second, 10*time.Millisecond)
}

func TestPool_RevertsJobWhenKindAtParallelismCap(t *testing.T) {
	store := newFakeJobStore()
	blockFirst := make(chan struct{})
	releaseFirst := make(chan struct{})

	first := &models.BackgroundJob{
		ID: "job1", ProjectID: "proj1", TaskKind: models.TaskConfirmLinks,
		Status: models.JobStatusPending, Payload: []byte(`{}`), CreatedAt: time.Now().Add(-time.Second),
	}
	second := &models.BackgroundJob{
		ID: "job2", ProjectID: "proj1", TaskKind: models.TaskConfirmLinks,
		Status: models.JobStatusPending, Payload: []byte(`{}`), CreatedAt: time.Now(),
	}
	require.NoError(t, store.CreateJob(context.Background(), first))
	require.NoError(t, store.CreateJob(context.Background(), second))

	pool := newTestPool(store)
	pool.RegisterHandler(models.TaskConfirmLinks, func(ctx context.Context, j *models.BackgroundJob, c Cancellable) (interface{}, error) {
		close(blockFirst)
		<-releaseFirst
		return map[string]string{}, nil
	})
	pool.Start()
	defer pool.Stop()

	select {
	case <-blockFirst:
	case <-time.After(time.Second):
		t.Fatal("first job never started")
	}

	// job2 should have been claimed and reverted back to pending at least
	// once while job1 (same TaskKind, at cap) is still in flight.
	require.Eventually(t, func() bool {
		store.mu.Lock()
		claimed := store.claims["job2"]
		store.mu.Unlock()
		got, err := store.GetJob(context.Background(), "job2")
		return err == nil && claimed > 0 && got.Status == models.JobStatusPending
	}, time.Second, 10*time.Millisecond)

	close(releaseFirst)
}

func TestPool_FailsJobWhenNoHandlerRegistered(t *testing.T) {
	store := newFakeJobStore()
	job := &models.BackgroundJob{
		ID: "job1", ProjectID: "proj1", TaskKind: models.TaskFetchSourceContent,
		Status: models.JobStatusPending, Payload: []byte(`{}`), CreatedAt: time.Now(),
	}
	require.NoError(t, store.CreateJob(context.Background(), job))

	pool := newTestPool(store)
	pool.Start()
	defer pool.Stop()

	require.Eventually(t, func() bool {
		got, err := store.GetJob(context.Background(), "job1")
		return err == nil && got.Status == models.JobStatusFailed
	}, time.Second, 10*time.Millisecond)
}

func TestPool_HandlerThatSetsCanceledStatusIsNotOverwritten(t *testing.T) {
	store := newFakeJobStore()
	job := &models.BackgroundJob{
		ID: "job1", ProjectID: "proj1", TaskKind: models.TaskRescanLinks,
		Status: models.JobStatusPending, Payload: []byte(`{}`), CreatedAt: time.Now(),
	}
	require.NoError(t, store.CreateJob(context.Background(), job))

	pool := newTestPool(store)
	pool.RegisterHandler(models.TaskRescanLinks, func(ctx context.Context, j *models.BackgroundJob, c Cancellable) (interface{}, error) {
		// Like pipeline.Deps.finishCanceled, the handler persists the
		// terminal canceled status itself.
		j.Status = models.JobStatusCanceled
		return nil, store.UpdateJob(ctx, j)
	})
	pool.Start()
	defer pool.Stop()

	require.Eventually(t, func() bool {
		got, err := store.GetJob(context.Background(), "job1")
		return err == nil && got.Status == models.JobStatusCanceled
	}, time.Second, 10*time.Millisecond)

	// It must not have been flipped on to "completed" by the pool's own
	// success path after the handler already finalized it as canceled.
	got, err := store.GetJob(context.Background(), "job1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCanceled, got.Status)
}

func TestPool_MarkCancelled_SetsFlagObservableByRunningHandler(t *testing.T) {
	store := newFakeJobStore()
	job := &models.BackgroundJob{
		ID: "job1", ProjectID: "proj1", TaskKind: models.TaskAIEditSourceContent,
		Status: models.JobStatusPending, Payload: []byte(`{}`), CreatedAt: time.Now(),
	}
	require.NoError(t, store.CreateJob(context.Background(), job))

	observed := make(chan bool, 1)
	pool := newTestPool(store)
	pool.RegisterHandler(models.TaskAIEditSourceContent, func(ctx context.Context, j *models.BackgroundJob, c Cancellable) (interface{}, error) {
		deadline := time.Now().Add(time.Second)
		for time.Now().Before(deadline) {
			if c.CancelRequested() {
				observed <- true
				return nil, nil
			}
			time.Sleep(5 * time.Millisecond)
		}
		observed <- false
		return nil, nil
	})
	pool.Start()
	defer pool.Stop()

	require.Eventually(t, func() bool {
		pool.mu.Lock()
		_, ok := pool.cancelFlag["job1"]
		pool.mu.Unlock()
		return ok
	}, time.Second, 5*time.Millisecond)

	pool.MarkCancelled("job1")

	select {
	case ok := <-observed:
		assert.True(t, ok, "handler must observe CancelRequested() after MarkCancelled")
	case <-time.After(2 * time.Second):
		t.Fatal("handler never observed cancellation")
	}
}
