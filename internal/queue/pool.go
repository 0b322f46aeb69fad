// Package queue implements C7: a bounded-parallelism worker pool over the
// durable job queue of C1, a cancellation polling sidecar, a periodic
// stale-job safety sweep, and payload validation before enqueue. The main
// loop shape (ticker-driven poll -> claim -> dispatch, context-cancelable)
// is adapted from the donor's WorkerPool/worker()/processMessage().
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/revivalist/lorecard/internal/events"
	"github.com/revivalist/lorecard/internal/interfaces"
	"github.com/revivalist/lorecard/internal/models"
)

// Handler processes one claimed job and returns its result or an error.
// Handlers are responsible for polling cancellation at well-defined
// checkpoints (§4.7) via the Cancellable passed to them.
type Handler func(ctx context.Context, job *models.BackgroundJob, cancellable Cancellable) (result interface{}, err error)

// Cancellable lets a running handler check whether the operator has asked
// to cancel its job, without coupling the handler to the storage layer.
type Cancellable interface {
	CancelRequested() bool
}

// Pool runs one poller goroutine that claims and dispatches jobs,
// honoring a per-TaskKind parallelism cap (§4.7: every kind caps at one
// concurrent in-flight job).
type Pool struct {
	store        interfaces.JobStore
	broadcaster  *events.Broadcaster
	handlers     map[models.TaskKind]Handler
	pollInterval time.Duration
	logger       arbor.ILogger

	mu         sync.Mutex
	inFlight   map[models.TaskKind]int
	cancelFlag map[string]*cancellableJob

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type cancellableJob struct {
	mu        sync.RWMutex
	requested bool
}

func (c *cancellableJob) CancelRequested() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.requested
}

func (c *cancellableJob) setCancelled() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requested = true
}

// New constructs a Pool. pollInterval governs how often the poller tries
// to claim a new job when none is currently runnable under the caps.
func New(store interfaces.JobStore, broadcaster *events.Broadcaster, pollInterval time.Duration, logger arbor.ILogger) *Pool {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		store:        store,
		broadcaster:  broadcaster,
		handlers:     make(map[models.TaskKind]Handler),
		pollInterval: pollInterval,
		logger:       logger,
		inFlight:     make(map[models.TaskKind]int),
		cancelFlag:   make(map[string]*cancellableJob),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// RegisterHandler registers the handler for one task kind.
func (p *Pool) RegisterHandler(kind models.TaskKind, handler Handler) {
	p.handlers[kind] = handler
}

// Start launches the poller goroutine.
func (p *Pool) Start() {
	p.wg.Add(1)
	go p.poll()
}

// Stop cancels the poller and waits for in-flight handlers to observe
// cancellation and return.
func (p *Pool) Stop() {
	p.cancel()
	p.wg.Wait()
}

func (p *Pool) poll() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.tryClaimAndDispatch()
		}
	}
}

// tryClaimAndDispatch claims the oldest pending job and, if its kind is
// under its parallelism cap, spawns a handler goroutine for it. If the
// kind is already at cap, the job is reverted to pending immediately so
// another poll tick (possibly after another kind drains) can pick it up —
// this is the "claim-if-under-cap-or-revert" step the worker pool uses in
// place of a per-kind wait queue.
func (p *Pool) tryClaimAndDispatch() {
	job, err := p.store.ClaimNextPendingJob(p.ctx)
	if err != nil {
		p.logger.Warn().Err(err).Msg("failed to claim next pending job")
		return
	}
	if job == nil {
		return
	}

	p.mu.Lock()
	if p.inFlight[job.TaskKind] >= models.ParallelismCap {
		p.mu.Unlock()
		p.revertToPending(job)
		return
	}
	p.inFlight[job.TaskKind]++
	cj := &cancellableJob{}
	p.cancelFlag[job.ID] = cj
	p.mu.Unlock()

	p.wg.Add(1)
	go p.run(job, cj)
}

func (p *Pool) revertToPending(job *models.BackgroundJob) {
	job.Status = models.JobStatusPending
	if err := p.store.UpdateJob(p.ctx, job); err != nil {
		p.logger.Warn().Err(err).Str("job_id", job.ID).Msg("failed to revert job to pending after cap check")
	}
}

func (p *Pool) run(job *models.BackgroundJob, cj *cancellableJob) {
	defer p.wg.Done()
	defer func() {
		p.mu.Lock()
		p.inFlight[job.TaskKind]--
		delete(p.cancelFlag, job.ID)
		p.mu.Unlock()
	}()
	defer func() {
		if r := recover(); r != nil {
			p.fail(job, fmt.Errorf("handler panic: %v", r))
		}
	}()

	handler, ok := p.handlers[job.TaskKind]
	if !ok {
		p.fail(job, fmt.Errorf("no handler registered for task kind %q", job.TaskKind))
		return
	}

	p.broadcastJobStatus(job)

	result, err := handler(p.ctx, job, cj)
	if job.Status == models.JobStatusCanceled {
		// The handler observed cancellation mid-run and already persisted
		// the terminal canceled state itself (§4.7): nothing left to do
		// but announce it, regardless of what it returned.
		p.broadcastJobStatus(job)
		return
	}
	if err != nil {
		p.fail(job, err)
		return
	}
	p.complete(job, result)
}

func (p *Pool) complete(job *models.BackgroundJob, result interface{}) {
	if err := job.EncodeResult(result); err != nil {
		p.fail(job, err)
		return
	}
	job.Status = models.JobStatusCompleted
	job.Progress = 100
	if err := p.store.UpdateJob(p.ctx, job); err != nil {
		p.logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to persist completed job")
		return
	}
	p.broadcastJobStatus(job)
}

func (p *Pool) fail(job *models.BackgroundJob, err error) {
	msg := err.Error()
	job.ErrorMessage = &msg
	job.Status = models.JobStatusFailed
	if updateErr := p.store.UpdateJob(p.ctx, job); updateErr != nil {
		p.logger.Error().Err(updateErr).Str("job_id", job.ID).Msg("failed to persist failed job")
		return
	}
	p.broadcastJobStatus(job)
}

func (p *Pool) broadcastJobStatus(job *models.BackgroundJob) {
	if p.broadcaster == nil {
		return
	}
	p.broadcaster.Publish(job.ProjectID, interfaces.EventJobStatusUpdate, map[string]any{
		"job_id":   job.ID,
		"status":   string(job.Status),
		"progress": job.Progress,
	})
}

// MarkCancelled flips the in-memory cancellable flag for a running job, so
// its handler observes CancelRequested() at its next checkpoint. It is the
// in-process half of the cancellation protocol; the durable half
// (cancel_requested column) is set by RequestCancellation in cancel.go and
// read by the CancelSidecar, which calls this method.
func (p *Pool) MarkCancelled(jobID string) {
	p.mu.Lock()
	cj, ok := p.cancelFlag[jobID]
	p.mu.Unlock()
	if ok {
		cj.setCancelled()
	}
}
