package queue

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/revivalist/lorecard/internal/interfaces"
	"github.com/revivalist/lorecard/internal/models"
)

// ErrJobAlreadyTerminal is returned when a cancel request targets a job
// already in a terminal state (§7: Conflict, 400).
var ErrJobAlreadyTerminal = errors.New("job is already in a terminal state")

// CancelSidecar polls every job's durable cancel_requested flag and, on
// observing it set, marks the in-process Cancellable so the running
// handler sees CancelRequested() at its next checkpoint (§4.7's
// cancellation protocol). It does not itself stop the handler — handlers
// are cooperative and must check the flag themselves.
type CancelSidecar struct {
	jobs         interfaces.JobStore
	pool         *Pool
	pollInterval time.Duration
	logger       arbor.ILogger
}

func NewCancelSidecar(jobs interfaces.JobStore, pool *Pool, pollInterval time.Duration, logger arbor.ILogger) *CancelSidecar {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &CancelSidecar{jobs: jobs, pool: pool, pollInterval: pollInterval, logger: logger}
}

// Run blocks polling in-progress and cancelling jobs for a cancellation
// request until ctx is cancelled.
func (s *CancelSidecar) Run(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *CancelSidecar) sweep(ctx context.Context) {
	jobs, err := s.jobs.ListJobs(ctx, 200, 0)
	if err != nil {
		s.logger.Warn().Err(err).Msg("cancel sidecar failed to list jobs")
		return
	}
	for _, job := range jobs {
		if job.Status != models.JobStatusInProgress && job.Status != models.JobStatusCancelling {
			continue
		}
		requested, err := s.jobs.IsCancellationRequested(ctx, job.ID)
		if err != nil || !requested {
			continue
		}
		s.pool.MarkCancelled(job.ID)
	}
}

// RequestCancellation is called by the external collaborator handling the
// cancel API request (§6): it rejects terminal jobs, sets the durable flag,
// and moves the job to the cancelling status so a client polling
// GET /api/jobs/{id} mid-cancel sees it rather than a stale in_progress,
// relying on this sidecar to propagate the flag in-process. The handler
// itself still owns the final cancelling->canceled transition.
func RequestCancellation(ctx context.Context, jobs interfaces.JobStore, jobID string) error {
	job, err := jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return ErrJobAlreadyTerminal
	}
	if err := jobs.RequestJobCancellation(ctx, jobID); err != nil {
		return err
	}
	job.Status = models.JobStatusCancelling
	return jobs.UpdateJob(ctx, job)
}
