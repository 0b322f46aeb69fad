// Package pipeline implements C8: the nine background_jobs task handlers
// that drive the lorebook and character pipelines, wiring together the
// storage abstraction (C1), rate limiter (C2), event broadcaster (C3),
// provider registry (C4), scraper (C5), and template layer (C6) built in
// the sibling packages.
package pipeline

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/revivalist/lorecard/internal/events"
	"github.com/revivalist/lorecard/internal/interfaces"
	"github.com/revivalist/lorecard/internal/models"
	"github.com/revivalist/lorecard/internal/providers"
	"github.com/revivalist/lorecard/internal/queue"
	"github.com/revivalist/lorecard/internal/ratelimit"
	"github.com/revivalist/lorecard/internal/scraper"
	"github.com/revivalist/lorecard/internal/templates"
)

// Deps bundles every collaborator a task handler needs. It is the
// top-level service container §9 ("Process-wide mutable state") calls
// for: constructed once at startup, passed by reference into every
// handler, holding no hidden globals.
type Deps struct {
	Store       interfaces.Store
	Registry    *providers.Registry
	Templates   *templates.Store
	Scraper     *scraper.Scraper
	Limiter     *ratelimit.Limiter
	Broadcaster *events.Broadcaster
	Logger      arbor.ILogger
}

// RegisterHandlers wires every TaskKind to its handler method on pool.
func (d *Deps) RegisterHandlers(pool *queue.Pool) {
	pool.RegisterHandler(models.TaskGenerateSearchParams, d.GenerateSearchParams)
	pool.RegisterHandler(models.TaskDiscoverAndCrawlSources, d.DiscoverAndCrawlSources)
	pool.RegisterHandler(models.TaskRescanLinks, d.RescanLinks)
	pool.RegisterHandler(models.TaskConfirmLinks, d.ConfirmLinks)
	pool.RegisterHandler(models.TaskProcessProjectEntries, d.ProcessProjectEntries)
	pool.RegisterHandler(models.TaskFetchSourceContent, d.FetchSourceContent)
	pool.RegisterHandler(models.TaskGenerateCharacterCard, d.GenerateCharacterCard)
	pool.RegisterHandler(models.TaskRegenerateCharacterField, d.RegenerateCharacterField)
	pool.RegisterHandler(models.TaskAIEditSourceContent, d.AIEditSourceContent)
}

// finishCanceled persists job as terminally canceled with result already
// attached, the pattern every long-running handler uses to short-circuit
// out of Pool.run's default complete/fail handling (§4.7's cancellation
// protocol: "on cancellation it sets the job to canceled").
func (d *Deps) finishCanceled(ctx context.Context, job *models.BackgroundJob, result interface{}) (interface{}, error) {
	if err := job.EncodeResult(result); err != nil {
		d.Logger.Warn().Err(err).Str("job_id", job.ID).Msg("failed to encode result for canceled job")
	}
	job.Status = models.JobStatusCanceled
	if err := d.Store.UpdateJob(ctx, job); err != nil {
		d.Logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to persist canceled job")
	}
	return result, nil
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func ptr(s string) *string { return &s }
