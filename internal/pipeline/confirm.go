package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/revivalist/lorecard/internal/common"
	"github.com/revivalist/lorecard/internal/interfaces"
	"github.com/revivalist/lorecard/internal/models"
	"github.com/revivalist/lorecard/internal/queue"
)

// ConfirmLinks implements §4.8.4: insert a pending Link row per URL,
// idempotent on (project, url), emit links_created, and advance the
// project selector_generated -> links_extracted.
func (d *Deps) ConfirmLinks(ctx context.Context, job *models.BackgroundJob, _ queue.Cancellable) (interface{}, error) {
	var payload models.ConfirmLinksPayload
	if err := job.DecodePayload(&payload); err != nil {
		return nil, err
	}
	project, err := d.Store.GetProject(ctx, job.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}

	created := 0
	for _, u := range payload.URLs {
		link := &models.Link{
			ID:        common.NewID(),
			ProjectID: project.ID,
			URL:       u,
			Status:    models.LinkStatusPending,
			CreatedAt: time.Now().UTC(),
		}
		inserted, err := d.Store.UpsertLink(ctx, link)
		if err != nil {
			return nil, fmt.Errorf("upsert link %s: %w", u, err)
		}
		if inserted {
			created++
		}
	}

	if created > 0 && d.Broadcaster != nil {
		d.Broadcaster.Publish(project.ID, interfaces.EventLinksCreated, map[string]any{
			"urls":  payload.URLs,
			"count": created,
		})
	}

	if project.CanTransitionTo(models.ProjectStatusLinksExtracted) {
		project.Status = models.ProjectStatusLinksExtracted
		if err := d.Store.UpdateProject(ctx, project); err != nil {
			return nil, fmt.Errorf("advance project status: %w", err)
		}
	}

	return models.ConfirmLinksResult{LinksCreated: created}, nil
}
