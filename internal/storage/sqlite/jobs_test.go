package sqlite

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revivalist/lorecard/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedProject(t *testing.T, db *DB, id string) {
	t.Helper()
	now := time.Unix(1000, 0)
	err := db.CreateProject(context.Background(), &models.Project{
		ID:        id,
		Name:      "p",
		Prompt:    "prompt",
		Model:     "claude-3",
		Status:    models.ProjectStatusDraft,
		Kind:      models.ProjectKindLorebook,
		CreatedAt: now,
		UpdatedAt: now,
	})
	require.NoError(t, err)
}

func newTestJob(id, projectID string, kind models.TaskKind) *models.BackgroundJob {
	now := time.Unix(1000, 0)
	return &models.BackgroundJob{
		ID:        id,
		ProjectID: projectID,
		TaskKind:  kind,
		Status:    models.JobStatusPending,
		Payload:   []byte(`{}`),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestClaimNextPendingJob_ReturnsNilWhenQueueEmpty(t *testing.T) {
	db := newTestDB(t)
	job, err := db.ClaimNextPendingJob(context.Background())
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestClaimNextPendingJob_ClaimsOldestFirstAndFlipsStatus(t *testing.T) {
	db := newTestDB(t)
	seedProject(t, db, "proj1")

	older := newTestJob("job-a", "proj1", models.TaskProcessProjectEntries)
	older.CreatedAt = time.Unix(100, 0)
	newer := newTestJob("job-b", "proj1", models.TaskProcessProjectEntries)
	newer.CreatedAt = time.Unix(200, 0)

	require.NoError(t, db.CreateJob(context.Background(), newer))
	require.NoError(t, db.CreateJob(context.Background(), older))

	claimed, err := db.ClaimNextPendingJob(context.Background())
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, "job-a", claimed.ID)
	assert.Equal(t, models.JobStatusInProgress, claimed.Status)

	stored, err := db.GetJob(context.Background(), "job-a")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusInProgress, stored.Status)
}

// TestClaimNextPendingJob_IsRaceSafeUnderConcurrentClaimers exercises the
// atomic UPDATE...RETURNING claim with many concurrent callers against a
// single pending job; exactly one caller may observe it.
func TestClaimNextPendingJob_IsRaceSafeUnderConcurrentClaimers(t *testing.T) {
	db := newTestDB(t)
	seedProject(t, db, "proj1")
	require.NoError(t, db.CreateJob(context.Background(), newTestJob("only-job", "proj1", models.TaskProcessProjectEntries)))

	const callers = 16
	var wg sync.WaitGroup
	claims := make(chan string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job, err := db.ClaimNextPendingJob(context.Background())
			assert.NoError(t, err)
			if job != nil {
				claims <- job.ID
			}
		}()
	}
	wg.Wait()
	close(claims)

	var ids []string
	for id := range claims {
		ids = append(ids, id)
	}
	require.Len(t, ids, 1, "exactly one caller may claim the single pending job")
	assert.Equal(t, "only-job", ids[0])
}

func TestRecoverStaleState_ResetsInProgressJobsAndProcessingLinks(t *testing.T) {
	db := newTestDB(t)
	seedProject(t, db, "proj1")

	stuck := newTestJob("stuck-job", "proj1", models.TaskProcessProjectEntries)
	stuck.Status = models.JobStatusInProgress
	require.NoError(t, db.CreateJob(context.Background(), stuck))

	ok, err := db.UpsertLink(context.Background(), &models.Link{
		ID: "link1", ProjectID: "proj1", URL: "https://example.com/a",
		Status: models.LinkStatusProcessing, CreatedAt: time.Unix(1000, 0),
	})
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, db.RecoverStaleState(context.Background()))

	job, err := db.GetJob(context.Background(), "stuck-job")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, job.Status)

	link, err := db.GetLink(context.Background(), "link1")
	require.NoError(t, err)
	assert.Equal(t, models.LinkStatusPending, link.Status)
}
