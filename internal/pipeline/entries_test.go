package pipeline

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revivalist/lorecard/internal/events"
	"github.com/revivalist/lorecard/internal/interfaces"
	"github.com/revivalist/lorecard/internal/models"
)

type alwaysCancelled struct{}

func (alwaysCancelled) CancelRequested() bool { return true }

func newEntriesDeps(provider interfaces.Provider, store *fakeProjectStore) *Deps {
	deps := newTestDeps(provider, store)
	deps.Broadcaster = events.New(32, time.Hour, nil)
	return deps
}

func seedLinkWithContent(store *fakeProjectStore, id, projectID, url, content string) {
	store.links[projectID+"\x00"+url] = &models.Link{
		ID: id, ProjectID: projectID, URL: url, Status: models.LinkStatusPending,
		RawContent: &content, CreatedAt: time.Unix(1000, 0),
	}
}

func TestProcessProjectEntries_NoLinksCompletesProjectImmediately(t *testing.T) {
	store := newFakeProjectStore()
	store.projects["proj1"] = &models.Project{ID: "proj1", Status: models.ProjectStatusLinksExtracted}
	deps := newEntriesDeps(&fakeProvider{name: "claude"}, store)

	job := &models.BackgroundJob{ID: "job1", ProjectID: "proj1", TaskKind: models.TaskProcessProjectEntries, Payload: []byte(`{}`)}
	result, err := deps.ProcessProjectEntries(context.Background(), job, noopCancellable{})
	require.NoError(t, err)
	assert.Equal(t, models.ProcessProjectEntriesResult{}, result)
	assert.Equal(t, models.ProjectStatusCompleted, store.projects["proj1"].Status)
}

func TestProcessProjectEntries_ClassifiesSuccessSkipAndFailureOutcomes(t *testing.T) {
	store := newFakeProjectStore()
	store.projects["proj1"] = &models.Project{ID: "proj1", Status: models.ProjectStatusLinksExtracted, RequestsPerMinute: 1000}
	seedLinkWithContent(store, "l-ok", "proj1", "https://example.com/ok", "some scraped content")
	seedLinkWithContent(store, "l-skip", "proj1", "https://example.com/skip", "irrelevant content")
	seedLinkWithContent(store, "l-fail", "proj1", "https://example.com/fail", "broken content")

	provider := &scriptedEntryProvider{
		byContent: map[string]string{
			"some scraped content": `{"valid":true,"entry":{"title":"T","content":"C","keywords":["k"]}}`,
			"irrelevant content":   `{"valid":false,"reason":"not lore-relevant"}`,
		},
	}
	deps := newEntriesDeps(provider, store)

	job := &models.BackgroundJob{ID: "job1", ProjectID: "proj1", TaskKind: models.TaskProcessProjectEntries, Payload: []byte(`{}`)}
	result, err := deps.ProcessProjectEntries(context.Background(), job, noopCancellable{})
	require.NoError(t, err)

	out := result.(models.ProcessProjectEntriesResult)
	assert.Equal(t, 1, out.EntriesCreated)
	assert.Equal(t, 1, out.EntriesSkipped)
	assert.Equal(t, 1, out.EntriesFailed)

	assert.Equal(t, models.LinkStatusCompleted, store.links["proj1\x00https://example.com/ok"].Status)
	assert.Equal(t, models.LinkStatusSkipped, store.links["proj1\x00https://example.com/skip"].Status)
	assert.Equal(t, models.LinkStatusFailed, store.links["proj1\x00https://example.com/fail"].Status)

	assert.Equal(t, models.ProjectStatusFailed, store.projects["proj1"].Status, "any failure must mark the project failed")
}

func TestProcessProjectEntries_AllSuccessCompletesProject(t *testing.T) {
	store := newFakeProjectStore()
	store.projects["proj1"] = &models.Project{ID: "proj1", Status: models.ProjectStatusLinksExtracted, RequestsPerMinute: 1000}
	seedLinkWithContent(store, "l-ok", "proj1", "https://example.com/ok", "some scraped content")

	provider := &scriptedEntryProvider{
		byContent: map[string]string{
			"some scraped content": `{"valid":true,"entry":{"title":"T","content":"C","keywords":["k"]}}`,
		},
	}
	deps := newEntriesDeps(provider, store)

	job := &models.BackgroundJob{ID: "job1", ProjectID: "proj1", TaskKind: models.TaskProcessProjectEntries, Payload: []byte(`{}`)}
	_, err := deps.ProcessProjectEntries(context.Background(), job, noopCancellable{})
	require.NoError(t, err)
	assert.Equal(t, models.ProjectStatusCompleted, store.projects["proj1"].Status)
}

func TestProcessProjectEntries_CancellationRevertsUnfinishedLinksAndFinishesCanceled(t *testing.T) {
	store := newFakeProjectStore()
	store.projects["proj1"] = &models.Project{ID: "proj1", Status: models.ProjectStatusLinksExtracted, RequestsPerMinute: 1000}
	seedLinkWithContent(store, "l1", "proj1", "https://example.com/1", "content")

	provider := &scriptedEntryProvider{byContent: map[string]string{
		"content": `{"valid":true,"entry":{"title":"T","content":"C","keywords":["k"]}}`,
	}}
	deps := newEntriesDeps(provider, store)
	deps.Logger = nil

	job := &models.BackgroundJob{ID: "job1", ProjectID: "proj1", TaskKind: models.TaskProcessProjectEntries, Payload: []byte(`{}`)}
	alreadyCancelled := alwaysCancelled{}
	_, err := deps.ProcessProjectEntries(context.Background(), job, alreadyCancelled)
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusCanceled, job.Status, "the handler must own the terminal canceled transition")
	assert.Equal(t, models.LinkStatusPending, store.links["proj1\x00https://example.com/1"].Status,
		"a link never dispatched under cancellation must be reverted, not left processing")
}

// scriptedEntryProvider returns a canned entry_creation response keyed by
// a substring of the rendered link content it's asked to summarize — the
// entry_creation template always inlines {{link.content}} verbatim into
// its user message.
type scriptedEntryProvider struct {
	byContent map[string]string
}

func (p *scriptedEntryProvider) Name() string { return "claude" }

func (p *scriptedEntryProvider) ListModels(_ context.Context) ([]interfaces.ModelInfo, error) {
	return nil, nil
}

func (p *scriptedEntryProvider) Generate(_ context.Context, req *interfaces.GenerateRequest) (*interfaces.GenerateResponse, *interfaces.GenerateError) {
	var body string
	for _, m := range req.Messages {
		body += m.Content
	}
	for needle, response := range p.byContent {
		if strings.Contains(body, needle) {
			return &interfaces.GenerateResponse{Text: response}, nil
		}
	}
	return nil, &interfaces.GenerateError{Message: "no scripted response matched: " + body}
}

func (p *scriptedEntryProvider) CalculateCost(_ string, _, _ int) float64 { return 0.0 }
