package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revivalist/lorecard/internal/common"
	"github.com/revivalist/lorecard/internal/interfaces"
	"github.com/revivalist/lorecard/internal/models"
	"github.com/revivalist/lorecard/internal/providers"
	"github.com/revivalist/lorecard/internal/queue"
	"github.com/revivalist/lorecard/internal/ratelimit"
	"github.com/revivalist/lorecard/internal/templates"
)

// fakeProjectStore satisfies interfaces.Store for handler tests by
// embedding the (nil) interface and overriding only the methods the
// handlers under test actually call.
type fakeProjectStore struct {
	interfaces.Store
	projects map[string]*models.Project
	logs     []*models.ApiRequestLog
	links    map[string]*models.Link // keyed by project_id + "\x00" + url
}

func newFakeProjectStore() *fakeProjectStore {
	return &fakeProjectStore{
		projects: make(map[string]*models.Project),
		links:    make(map[string]*models.Link),
	}
}

func (s *fakeProjectStore) UpsertLink(_ context.Context, l *models.Link) (bool, error) {
	key := l.ProjectID + "\x00" + l.URL
	if _, exists := s.links[key]; exists {
		return false, nil
	}
	cp := *l
	s.links[key] = &cp
	return true, nil
}

func (s *fakeProjectStore) ListLinksByStatus(_ context.Context, projectID string, statuses []models.LinkStatus) ([]*models.Link, error) {
	want := make(map[models.LinkStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	var out []*models.Link
	for _, l := range s.links {
		if l.ProjectID != projectID {
			continue
		}
		if len(want) > 0 && !want[l.Status] {
			continue
		}
		cp := *l
		out = append(out, &cp)
	}
	return out, nil
}

func (s *fakeProjectStore) MarkLinksProcessing(_ context.Context, ids []string) error {
	for _, l := range s.links {
		for _, id := range ids {
			if l.ID == id {
				l.Status = models.LinkStatusProcessing
			}
		}
	}
	return nil
}

func (s *fakeProjectStore) RevertProcessingLinks(_ context.Context, ids []string) error {
	for _, l := range s.links {
		if l.Status != models.LinkStatusProcessing {
			continue
		}
		for _, id := range ids {
			if l.ID == id {
				l.Status = models.LinkStatusPending
			}
		}
	}
	return nil
}

func (s *fakeProjectStore) WriteEntryBatch(_ context.Context, items []models.EntryBatchItem) error {
	for _, item := range items {
		var link *models.Link
		for _, l := range s.links {
			if l.ID == item.LinkID {
				link = l
				break
			}
		}
		if link == nil {
			continue
		}
		switch {
		case item.Entry != nil:
			link.Status = models.LinkStatusCompleted
			link.LorebookEntryID = &item.Entry.ID
		case item.SkipReason != nil:
			link.Status = models.LinkStatusSkipped
			link.SkipReason = item.SkipReason
		default:
			link.Status = models.LinkStatusFailed
			link.ErrorMessage = item.ErrorMessage
		}
		if item.Log != nil {
			s.logs = append(s.logs, item.Log)
		}
	}
	return nil
}

func (s *fakeProjectStore) UpdateJob(_ context.Context, _ *models.BackgroundJob) error {
	return nil
}

func (s *fakeProjectStore) GetProject(_ context.Context, id string) (*models.Project, error) {
	p, ok := s.projects[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *fakeProjectStore) UpdateProject(_ context.Context, p *models.Project) error {
	cp := *p
	s.projects[p.ID] = &cp
	return nil
}

func (s *fakeProjectStore) InsertApiRequestLog(_ context.Context, l *models.ApiRequestLog) error {
	s.logs = append(s.logs, l)
	return nil
}

// fakeTemplateStore always misses the global_templates tier, forcing
// Resolve to fall through to the embedded default — sufficient for
// handler tests that don't exercise project- or global-level overrides.
type fakeTemplateStore struct {
	interfaces.TemplateStore
}

func (fakeTemplateStore) GetGlobalTemplate(_ context.Context, _ string) (*models.GlobalTemplate, error) {
	return nil, common.ErrNotFound
}

// fakeProvider is a scripted interfaces.Provider standing in for a real LLM
// backend; it just returns a canned JSON body.
type fakeProvider struct {
	name     string
	response string
	err      *interfaces.GenerateError
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) ListModels(_ context.Context) ([]interfaces.ModelInfo, error) {
	return nil, nil
}

func (p *fakeProvider) Generate(_ context.Context, _ *interfaces.GenerateRequest) (*interfaces.GenerateResponse, *interfaces.GenerateError) {
	if p.err != nil {
		return nil, p.err
	}
	return &interfaces.GenerateResponse{Text: p.response}, nil
}

func (p *fakeProvider) CalculateCost(_ string, _, _ int) float64 { return 0.01 }

func newTestDeps(provider interfaces.Provider, store *fakeProjectStore) *Deps {
	registry := providers.NewRegistry("claude")
	registry.Register(provider)
	return &Deps{
		Store:     store,
		Registry:  registry,
		Templates: templates.NewStore(fakeTemplateStore{}),
		Limiter:   ratelimit.New(),
		Logger:    nil,
	}
}

func TestGenerateSearchParams_RejectsEmptyPrompt(t *testing.T) {
	store := newFakeProjectStore()
	store.projects["proj1"] = &models.Project{ID: "proj1", Prompt: "", Model: "claude-3", Status: models.ProjectStatusDraft}

	deps := newTestDeps(&fakeProvider{name: "claude"}, store)
	job := &models.BackgroundJob{ID: "job1", ProjectID: "proj1", TaskKind: models.TaskGenerateSearchParams}

	_, err := deps.GenerateSearchParams(context.Background(), job, noopCancellable{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrConflict))
}

func TestGenerateSearchParams_PersistsResultAndAdvancesStatus(t *testing.T) {
	store := newFakeProjectStore()
	store.projects["proj1"] = &models.Project{
		ID: "proj1", Prompt: "a fantasy setting", Model: "claude-3",
		Status: models.ProjectStatusDraft, RequestsPerMinute: 60,
	}

	provider := &fakeProvider{
		name:     "claude",
		response: `{"purpose":"lorebook","extraction_notes":"focus on locations","criteria":"must mention geography"}`,
	}
	deps := newTestDeps(provider, store)
	job := &models.BackgroundJob{ID: "job1", ProjectID: "proj1", TaskKind: models.TaskGenerateSearchParams}

	result, err := deps.GenerateSearchParams(context.Background(), job, noopCancellable{})
	require.NoError(t, err)

	out, ok := result.(models.GenerateSearchParamsResult)
	require.True(t, ok)
	assert.Equal(t, "lorebook", out.SearchParams.Purpose)

	updated := store.projects["proj1"]
	require.NotNil(t, updated.SearchParams)
	assert.Equal(t, "must mention geography", updated.SearchParams.Criteria)
	assert.Equal(t, models.ProjectStatusSearchParamsGenerated, updated.Status)

	require.Len(t, store.logs, 1)
	assert.Equal(t, "claude", store.logs[0].Provider)
}

func TestGenerateSearchParams_ProviderErrorIsPropagatedWithoutAdvancingStatus(t *testing.T) {
	store := newFakeProjectStore()
	store.projects["proj1"] = &models.Project{
		ID: "proj1", Prompt: "a fantasy setting", Model: "claude-3",
		Status: models.ProjectStatusDraft, RequestsPerMinute: 60,
	}

	provider := &fakeProvider{name: "claude", err: &interfaces.GenerateError{Message: "upstream rejected the request"}}
	deps := newTestDeps(provider, store)
	job := &models.BackgroundJob{ID: "job1", ProjectID: "proj1", TaskKind: models.TaskGenerateSearchParams}

	_, err := deps.GenerateSearchParams(context.Background(), job, noopCancellable{})
	require.Error(t, err)

	assert.Equal(t, models.ProjectStatusDraft, store.projects["proj1"].Status)
	require.Len(t, store.logs, 1, "a failed call must still be logged")
	assert.True(t, store.logs[0].Error)
}

type noopCancellable struct{}

func (noopCancellable) CancelRequested() bool { return false }

var _ queue.Cancellable = noopCancellable{}
