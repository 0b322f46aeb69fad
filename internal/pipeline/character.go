package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/revivalist/lorecard/internal/common"
	"github.com/revivalist/lorecard/internal/interfaces"
	"github.com/revivalist/lorecard/internal/models"
	"github.com/revivalist/lorecard/internal/queue"
	"github.com/revivalist/lorecard/internal/templates"
)

// FetchSourceContent implements one leg of §4.8.6: scrape (or re-scrape)
// every named source and persist its raw content ahead of a character
// generation or regeneration call that reads it back.
func (d *Deps) FetchSourceContent(ctx context.Context, job *models.BackgroundJob, _ queue.Cancellable) (interface{}, error) {
	var payload models.FetchSourceContentPayload
	if err := job.DecodePayload(&payload); err != nil {
		return nil, err
	}
	sources, err := d.Store.ListSourcesByIDs(ctx, payload.SourceIDs)
	if err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}

	fetched := 0
	for _, src := range sources {
		if src.Kind == models.SourceKindWebURL {
			page, err := d.Scraper.Fetch(ctx, src.URLOrPath, true)
			if err != nil {
				d.Logger.Warn().Err(err).Str("source_id", src.ID).Msg("failed to fetch source content")
				continue
			}
			content := page.Markdown
			if content == "" {
				content = page.RawHTML
			}
			src.RawContent = &content
			ct := page.ContentType
			src.ContentType = &ct
		}
		if src.RawContent != nil {
			count := len(*src.RawContent)
			src.ContentCharCount = &count
		}
		if err := d.Store.UpdateSource(ctx, src); err != nil {
			return nil, fmt.Errorf("persist source %s: %w", src.ID, err)
		}
		fetched++
	}

	return models.FetchSourceContentResult{SourcesFetched: fetched}, nil
}

// GenerateCharacterCard implements §4.8.6: combine the named sources'
// content into one character_generation call and upsert the resulting
// card, completing the project.
func (d *Deps) GenerateCharacterCard(ctx context.Context, job *models.BackgroundJob, _ queue.Cancellable) (interface{}, error) {
	var payload models.GenerateCharacterCardPayload
	if err := job.DecodePayload(&payload); err != nil {
		return nil, err
	}
	project, err := d.Store.GetProject(ctx, job.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}
	sources, err := d.Store.ListSourcesByIDs(ctx, payload.SourceIDs)
	if err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}

	contents := make([]string, 0, len(sources))
	for _, s := range sources {
		if s.RawContent != nil {
			contents = append(contents, *s.RawContent)
		}
	}

	vars := mergeVars(map[string]map[string]interface{}{
		"project": projectVars(project),
		"sources": combinedSourcesVars(contents),
	})

	var out characterCardResult
	if err := d.callLLMAndLog(ctx, project, job.ID, templates.KindCharacterGeneration, vars, "character_card", characterCardSchema, &out); err != nil {
		return nil, fmt.Errorf("generate character card: %w", err)
	}

	now := time.Now().UTC()
	card := &models.CharacterCard{
		ID:              common.NewID(),
		ProjectID:       project.ID,
		Name:            out.Name,
		Description:     out.Description,
		Persona:         out.Persona,
		Scenario:        out.Scenario,
		FirstMessage:    out.FirstMessage,
		ExampleMessages: out.ExampleMessages,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := d.Store.UpsertCharacterCard(ctx, card); err != nil {
		return nil, fmt.Errorf("persist character card: %w", err)
	}

	project.Status = models.ProjectStatusCompleted
	if err := d.Store.UpdateProject(ctx, project); err != nil {
		return nil, fmt.Errorf("finalize project status: %w", err)
	}

	return models.GenerateCharacterCardResult{CharacterCardID: card.ID}, nil
}

// RegenerateCharacterField implements §4.8.6's single-field refinement:
// regenerate one named field given the current card and optional extra
// source content, leaving every other field untouched.
func (d *Deps) RegenerateCharacterField(ctx context.Context, job *models.BackgroundJob, _ queue.Cancellable) (interface{}, error) {
	var payload models.RegenerateCharacterFieldPayload
	if err := job.DecodePayload(&payload); err != nil {
		return nil, err
	}
	project, err := d.Store.GetProject(ctx, job.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}

	currentCard, err := d.Store.GetCharacterCard(ctx, project.ID)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			return nil, fmt.Errorf("load character card: %w", err)
		}
		currentCard = nil
	}

	var contents []string
	if len(payload.SourceIDs) > 0 {
		sources, err := d.Store.ListSourcesByIDs(ctx, payload.SourceIDs)
		if err != nil {
			return nil, fmt.Errorf("load sources: %w", err)
		}
		for _, s := range sources {
			if s.RawContent != nil {
				contents = append(contents, *s.RawContent)
			}
		}
	}

	currentValue := ""
	if currentCard != nil {
		currentValue = currentCard.Field(payload.FieldName)
	}

	vars := mergeVars(map[string]map[string]interface{}{
		"project":   projectVars(project),
		"field":     fieldVars(payload.FieldName, currentValue),
		"character": characterAsTextVars(currentCard),
		"sources":   combinedSourcesVars(contents),
	})

	var parsed regeneratedFieldResult
	if err := d.callLLMAndLog(ctx, project, job.ID, templates.KindCharacterFieldRegeneration, vars, "regenerated_field", regeneratedFieldSchema, &parsed); err != nil {
		return nil, fmt.Errorf("regenerate field %s: %w", payload.FieldName, err)
	}

	now := time.Now().UTC()
	if currentCard == nil {
		currentCard = &models.CharacterCard{ID: common.NewID(), ProjectID: project.ID, CreatedAt: now}
	}
	currentCard.SetField(payload.FieldName, parsed.NewContent)
	currentCard.UpdatedAt = now
	if err := d.Store.UpsertCharacterCard(ctx, currentCard); err != nil {
		return nil, fmt.Errorf("persist character card: %w", err)
	}

	return models.RegenerateCharacterFieldResult{FieldName: payload.FieldName, NewContent: parsed.NewContent}, nil
}

// AIEditSourceContent implements §4.8.6's source-editing stage: rewrite a
// source's content per a free-form instruction, backing up the prior
// content unconditionally before the overwrite (§9 Open Question #1).
func (d *Deps) AIEditSourceContent(ctx context.Context, job *models.BackgroundJob, _ queue.Cancellable) (interface{}, error) {
	var payload models.AIEditSourceContentPayload
	if err := job.DecodePayload(&payload); err != nil {
		return nil, err
	}
	project, err := d.Store.GetProject(ctx, job.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}
	source, err := d.Store.GetSource(ctx, payload.SourceID)
	if err != nil {
		return nil, fmt.Errorf("load source: %w", err)
	}
	if project.Model == "" {
		return nil, fmt.Errorf("%w: project has no model configured for AI edit", common.ErrConflict)
	}

	messages := []interfaces.Message{
		{Role: interfaces.RoleSystem, Content: "You edit a page's extracted content per an instruction while preserving everything unrelated to the edit."},
		{Role: interfaces.RoleUser, Content: buildEditPrompt(payload)},
	}
	var parsed editedContentResult
	if err := d.callLLMMessagesAndLog(ctx, project, job.ID, messages, "edited_content", editedContentSchema, &parsed); err != nil {
		return nil, fmt.Errorf("edit source content: %w", err)
	}

	version := &models.SourceContentVersion{
		ID:        common.NewID(),
		SourceID:  source.ID,
		Content:   strOrEmpty(source.RawContent),
		CreatedAt: time.Now().UTC(),
	}
	if err := d.Store.CreateSourceContentVersion(ctx, version); err != nil {
		return nil, fmt.Errorf("back up source content: %w", err)
	}

	source.RawContent = &parsed.EditedContent
	count := len(parsed.EditedContent)
	source.ContentCharCount = &count
	if err := d.Store.UpdateSource(ctx, source); err != nil {
		return nil, fmt.Errorf("persist edited source: %w", err)
	}

	return models.AIEditSourceContentResult{SourceID: source.ID, EditedContent: parsed.EditedContent}, nil
}

func buildEditPrompt(payload models.AIEditSourceContentPayload) string {
	var b strings.Builder
	b.WriteString("Original content:\n")
	b.WriteString(payload.OriginalContent)
	b.WriteString("\n\nEdit instruction: ")
	b.WriteString(payload.EditInstruction)
	if payload.FullContentContext != nil && *payload.FullContentContext != "" {
		b.WriteString("\n\nFull content context:\n")
		b.WriteString(*payload.FullContentContext)
	}
	return b.String()
}
