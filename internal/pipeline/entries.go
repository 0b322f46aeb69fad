package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/revivalist/lorecard/internal/common"
	"github.com/revivalist/lorecard/internal/interfaces"
	"github.com/revivalist/lorecard/internal/models"
	"github.com/revivalist/lorecard/internal/queue"
	"github.com/revivalist/lorecard/internal/templates"
)

const (
	linkConcurrency = 10 // Phase 1 semaphore cap (§4.8.5, §5)
	writeBatchSize  = 10 // Phase 2 flush threshold (§4.8.5)
)

// ProcessProjectEntries implements §4.8.5, the hardest stage: mark every
// pending/failed link processing up front, run Phase 1's semaphore-bounded
// concurrent scrape+summarize, then harvest results into Phase 2's
// batched transactional writes.
func (d *Deps) ProcessProjectEntries(ctx context.Context, job *models.BackgroundJob, cancellable queue.Cancellable) (interface{}, error) {
	project, err := d.Store.GetProject(ctx, job.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}

	links, err := d.Store.ListLinksByStatus(ctx, project.ID, []models.LinkStatus{models.LinkStatusPending, models.LinkStatusFailed})
	if err != nil {
		return nil, fmt.Errorf("list pending links: %w", err)
	}

	if len(links) == 0 {
		project.Status = models.ProjectStatusCompleted
		if err := d.Store.UpdateProject(ctx, project); err != nil {
			return nil, fmt.Errorf("finalize empty project: %w", err)
		}
		return models.ProcessProjectEntriesResult{}, nil
	}

	ids := make([]string, len(links))
	for i, l := range links {
		ids[i] = l.ID
	}
	if err := d.Store.MarkLinksProcessing(ctx, ids); err != nil {
		return nil, fmt.Errorf("mark links processing: %w", err)
	}
	for _, id := range ids {
		d.Broadcaster.Publish(project.ID, interfaces.EventLinkUpdated, map[string]any{
			"link_id": id, "status": string(models.LinkStatusProcessing),
		})
	}

	job.TotalItems = len(links)
	job.ProcessedItems = 0
	if err := d.Store.UpdateJob(ctx, job); err != nil {
		d.Logger.Warn().Err(err).Str("job_id", job.ID).Msg("failed to persist initial entry-processing progress")
	}

	sem := make(chan struct{}, linkConcurrency)
	resultsCh := make(chan models.EntryBatchItem, len(links))
	var wg sync.WaitGroup
	canceled := false

spawnLoop:
	for _, link := range links {
		// Checkpoint (a): before acquiring the semaphore.
		if cancellable.CancelRequested() {
			canceled = true
			break spawnLoop
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			canceled = true
			break spawnLoop
		}
		wg.Add(1)
		go func(l *models.Link) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					msg := fmt.Sprintf("panic processing link: %v", r)
					resultsCh <- models.EntryBatchItem{LinkID: l.ID, ErrorMessage: &msg}
				}
			}()
			resultsCh <- d.processOneLink(ctx, project, job.ID, l, cancellable)
		}(link)
	}

	go func() {
		wg.Wait()
		close(resultsCh)
	}()

	var created, skipped, failedCount int
	batch := make([]models.EntryBatchItem, 0, writeBatchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := d.Store.WriteEntryBatch(ctx, batch); err != nil {
			return err
		}
		for _, item := range batch {
			switch item.Outcome() {
			case "success":
				created++
				d.Broadcaster.Publish(project.ID, interfaces.EventEntryCreated, map[string]any{
					"link_id": item.LinkID, "entry_id": item.Entry.ID,
				})
			case "skipped":
				skipped++
				d.Broadcaster.Publish(project.ID, interfaces.EventLinkUpdated, map[string]any{
					"link_id": item.LinkID, "status": string(models.LinkStatusSkipped),
				})
			default:
				failedCount++
				d.Broadcaster.Publish(project.ID, interfaces.EventLinkUpdated, map[string]any{
					"link_id": item.LinkID, "status": string(models.LinkStatusFailed),
				})
			}
		}
		job.ProcessedItems += len(batch)
		if job.TotalItems > 0 {
			job.Progress = 100 * float64(job.ProcessedItems) / float64(job.TotalItems)
		}
		if err := d.Store.UpdateJob(ctx, job); err != nil {
			d.Logger.Warn().Err(err).Str("job_id", job.ID).Msg("failed to persist entry batch progress")
		}
		d.Broadcaster.Publish(project.ID, interfaces.EventJobStatusUpdate, map[string]any{
			"job_id": job.ID, "progress": job.Progress,
		})
		batch = batch[:0]
		return nil
	}

	for item := range resultsCh {
		batch = append(batch, item)
		if len(batch) >= writeBatchSize {
			if err := flush(); err != nil {
				return nil, fmt.Errorf("write entry batch: %w", err)
			}
		}
		// Checkpoint (c): between batches.
		if cancellable.CancelRequested() {
			canceled = true
		}
	}
	if err := flush(); err != nil {
		return nil, fmt.Errorf("write final entry batch: %w", err)
	}

	result := models.ProcessProjectEntriesResult{EntriesCreated: created, EntriesSkipped: skipped, EntriesFailed: failedCount}

	if canceled {
		stillProcessing, err := d.Store.ListLinksByStatus(ctx, project.ID, []models.LinkStatus{models.LinkStatusProcessing})
		if err != nil {
			d.Logger.Warn().Err(err).Msg("failed to list still-processing links on cancel")
		} else if len(stillProcessing) > 0 {
			revertIDs := make([]string, len(stillProcessing))
			for i, l := range stillProcessing {
				revertIDs[i] = l.ID
			}
			if err := d.Store.RevertProcessingLinks(ctx, revertIDs); err != nil {
				d.Logger.Warn().Err(err).Msg("failed to revert processing links on cancel")
			}
		}
		return d.finishCanceled(ctx, job, result)
	}

	if failedCount == 0 {
		project.Status = models.ProjectStatusCompleted
	} else {
		project.Status = models.ProjectStatusFailed
	}
	if err := d.Store.UpdateProject(ctx, project); err != nil {
		return nil, fmt.Errorf("finalize project status: %w", err)
	}

	return result, nil
}

// processOneLink runs Phase 1 for one link (§4.8.5): scrape or reuse
// content, render entry_creation, call the provider, and classify the
// outcome. It reads from storage but never writes — every write happens
// in Phase 2's batch.
func (d *Deps) processOneLink(ctx context.Context, project *models.Project, jobID string, link *models.Link, cancellable queue.Cancellable) models.EntryBatchItem {
	rawContent := link.RawContent
	if rawContent == nil || *rawContent == "" {
		page, err := d.Scraper.Fetch(ctx, link.URL, true)
		if err != nil {
			msg := err.Error()
			return models.EntryBatchItem{LinkID: link.ID, ErrorMessage: &msg}
		}
		content := page.Markdown
		if content == "" {
			content = page.RawHTML
		}
		rawContent = &content
	}

	// Checkpoint (b): after the rate-limit wait.
	if err := d.Limiter.WaitForSlot(ctx, project.ID, project.RequestsPerMinute); err != nil {
		msg := err.Error()
		return models.EntryBatchItem{LinkID: link.ID, RawContent: rawContent, ErrorMessage: &msg}
	}
	if cancellable.CancelRequested() {
		msg := "canceled before provider call"
		return models.EntryBatchItem{LinkID: link.ID, RawContent: rawContent, ErrorMessage: &msg}
	}

	vars := mergeVars(map[string]map[string]interface{}{
		"project": projectVars(project),
		"link":    linkVars(link.URL, *rawContent),
	})

	body, err := d.Templates.Resolve(ctx, templates.KindEntryCreation, project)
	if err != nil {
		msg := err.Error()
		return models.EntryBatchItem{LinkID: link.ID, RawContent: rawContent, ErrorMessage: &msg}
	}
	messages, err := templates.Render(body, vars)
	if err != nil || len(messages) == 0 {
		msg := "entry_creation template rendered no messages"
		if err != nil {
			msg = err.Error()
		}
		return models.EntryBatchItem{LinkID: link.ID, RawContent: rawContent, ErrorMessage: &msg}
	}

	text, log, genErr := d.callLLMWithMessages(ctx, project, messages, "entry_creation", entryCreationSchema)
	log = withJobID(log, jobID)
	if genErr != nil {
		msg := genErr.Error()
		return models.EntryBatchItem{LinkID: link.ID, Log: log, RawContent: rawContent, ErrorMessage: &msg}
	}

	var parsed entryCreationResult
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		msg := fmt.Sprintf("decode entry_creation response: %v", err)
		return models.EntryBatchItem{LinkID: link.ID, Log: log, RawContent: rawContent, ErrorMessage: &msg}
	}

	if !parsed.Valid || parsed.Entry == nil {
		reason := "content did not meet extraction criteria"
		if parsed.Reason != nil && *parsed.Reason != "" {
			reason = *parsed.Reason
		}
		return models.EntryBatchItem{LinkID: link.ID, Log: log, RawContent: rawContent, SkipReason: &reason}
	}

	now := time.Now().UTC()
	entry := &models.LorebookEntry{
		ID:        common.NewID(),
		ProjectID: project.ID,
		Title:     parsed.Entry.Title,
		Content:   parsed.Entry.Content,
		Keywords:  parsed.Entry.Keywords,
		SourceURL: link.URL,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return models.EntryBatchItem{LinkID: link.ID, Log: log, Entry: entry, RawContent: rawContent}
}
