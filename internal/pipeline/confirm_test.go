package pipeline

import (
	"encoding/json"
	"testing"

	"context"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revivalist/lorecard/internal/models"
)

func confirmLinksJob(projectID string, urls []string) *models.BackgroundJob {
	payload, _ := json.Marshal(models.ConfirmLinksPayload{URLs: urls})
	return &models.BackgroundJob{
		ID: "job1", ProjectID: projectID, TaskKind: models.TaskConfirmLinks, Payload: payload,
	}
}

func TestConfirmLinks_InsertsPendingLinksAndAdvancesStatus(t *testing.T) {
	store := newFakeProjectStore()
	store.projects["proj1"] = &models.Project{ID: "proj1", Status: models.ProjectStatusSelectorGenerated}

	deps := newTestDeps(&fakeProvider{name: "claude"}, store)
	job := confirmLinksJob("proj1", []string{"https://example.com/a", "https://example.com/b"})

	result, err := deps.ConfirmLinks(context.Background(), job, noopCancellable{})
	require.NoError(t, err)

	out := result.(models.ConfirmLinksResult)
	assert.Equal(t, 2, out.LinksCreated)
	assert.Equal(t, models.ProjectStatusLinksExtracted, store.projects["proj1"].Status)
	assert.Len(t, store.links, 2)
}

func TestConfirmLinks_IsIdempotentOnRepeatedURLs(t *testing.T) {
	store := newFakeProjectStore()
	store.projects["proj1"] = &models.Project{ID: "proj1", Status: models.ProjectStatusSelectorGenerated}
	deps := newTestDeps(&fakeProvider{name: "claude"}, store)

	first := confirmLinksJob("proj1", []string{"https://example.com/a"})
	result, err := deps.ConfirmLinks(context.Background(), first, noopCancellable{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.(models.ConfirmLinksResult).LinksCreated)

	second := confirmLinksJob("proj1", []string{"https://example.com/a", "https://example.com/c"})
	result, err = deps.ConfirmLinks(context.Background(), second, noopCancellable{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.(models.ConfirmLinksResult).LinksCreated, "the already-seen URL must not recount")
	assert.Len(t, store.links, 2)
}

func TestConfirmLinks_DoesNotRegressAnAlreadyAdvancedStatus(t *testing.T) {
	store := newFakeProjectStore()
	store.projects["proj1"] = &models.Project{ID: "proj1", Status: models.ProjectStatusProcessing}
	deps := newTestDeps(&fakeProvider{name: "claude"}, store)

	job := confirmLinksJob("proj1", []string{"https://example.com/a"})
	_, err := deps.ConfirmLinks(context.Background(), job, noopCancellable{})
	require.NoError(t, err)

	assert.Equal(t, models.ProjectStatusProcessing, store.projects["proj1"].Status,
		"CanTransitionTo must refuse to move a later status backward")
}
