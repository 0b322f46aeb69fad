package pipeline

import (
	"context"
	"fmt"

	"github.com/revivalist/lorecard/internal/common"
	"github.com/revivalist/lorecard/internal/models"
	"github.com/revivalist/lorecard/internal/queue"
	"github.com/revivalist/lorecard/internal/templates"
)

// GenerateSearchParams implements §4.8.1: a single schema-constrained LLM
// call that infers purpose/extraction_notes/criteria from the project's
// free-text prompt, storing the result on the project and advancing its
// status draft -> search_params_generated.
func (d *Deps) GenerateSearchParams(ctx context.Context, job *models.BackgroundJob, _ queue.Cancellable) (interface{}, error) {
	project, err := d.Store.GetProject(ctx, job.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}
	if project.Prompt == "" {
		return nil, fmt.Errorf("%w: project has no prompt", common.ErrConflict)
	}

	vars := mergeVars(map[string]map[string]interface{}{"project": projectVars(project)})

	var out models.SearchParams
	if err := d.callLLMAndLog(ctx, project, job.ID, templates.KindSearchParamsGeneration, vars, "search_params", searchParamsSchema, &out); err != nil {
		return nil, fmt.Errorf("generate search params: %w", err)
	}

	project.SearchParams = &out
	if project.CanTransitionTo(models.ProjectStatusSearchParamsGenerated) {
		project.Status = models.ProjectStatusSearchParamsGenerated
	}
	if err := d.Store.UpdateProject(ctx, project); err != nil {
		return nil, fmt.Errorf("persist search params: %w", err)
	}

	return models.GenerateSearchParamsResult{SearchParams: out}, nil
}
