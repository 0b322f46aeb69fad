package models

import "time"

// ProjectStatus is the lifecycle state of a Project (§3, §4.8).
type ProjectStatus string

const (
	ProjectStatusDraft                ProjectStatus = "draft"
	ProjectStatusSearchParamsGenerated ProjectStatus = "search_params_generated"
	ProjectStatusSelectorGenerated     ProjectStatus = "selector_generated"
	ProjectStatusLinksExtracted        ProjectStatus = "links_extracted"
	ProjectStatusProcessing            ProjectStatus = "processing"
	ProjectStatusCompleted             ProjectStatus = "completed"
	ProjectStatusFailed                ProjectStatus = "failed"
)

// ProjectKind distinguishes the two artifact pipelines a project can run.
type ProjectKind string

const (
	ProjectKindLorebook  ProjectKind = "lorebook"
	ProjectKindCharacter ProjectKind = "character"
)

// Templates holds the five named multi-message prompt templates a project
// can override; empty fields fall back to the global template of the same
// name (C6).
type Templates struct {
	SearchParamsGeneration      string `json:"search_params_generation,omitempty"`
	SelectorGeneration          string `json:"selector_generation,omitempty"`
	EntryCreation               string `json:"entry_creation,omitempty"`
	CharacterGeneration         string `json:"character_generation,omitempty"`
	CharacterFieldRegeneration  string `json:"character_field_regeneration,omitempty"`
}

// SearchParams is the structured output of generate_search_params (§4.8.1).
type SearchParams struct {
	Purpose         string `json:"purpose"`
	ExtractionNotes string `json:"extraction_notes"`
	Criteria        string `json:"criteria"`
}

// Project is the user workspace grouping sources and output artifacts (§3).
type Project struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Prompt          string            `json:"prompt"`
	Templates       Templates         `json:"templates"`
	CredentialID    *string           `json:"credential_id,omitempty"`
	Model           string            `json:"model"`
	ModelParameters map[string]any    `json:"model_parameters,omitempty"`
	RequestsPerMinute int             `json:"requests_per_minute"`
	SearchParams    *SearchParams     `json:"search_params,omitempty"`
	Status          ProjectStatus     `json:"status"`
	Kind            ProjectKind       `json:"kind"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// CanTransitionTo enforces the monotone status invariant of §3: forward
// progress only, except processing<->failed (retry).
func (p *Project) CanTransitionTo(next ProjectStatus) bool {
	order := []ProjectStatus{
		ProjectStatusDraft,
		ProjectStatusSearchParamsGenerated,
		ProjectStatusSelectorGenerated,
		ProjectStatusLinksExtracted,
		ProjectStatusProcessing,
		ProjectStatusCompleted,
	}
	if p.Status == ProjectStatusProcessing && next == ProjectStatusFailed {
		return true
	}
	if p.Status == ProjectStatusFailed && next == ProjectStatusProcessing {
		return true
	}
	curIdx, nextIdx := -1, -1
	for i, s := range order {
		if s == p.Status {
			curIdx = i
		}
		if s == next {
			nextIdx = i
		}
	}
	if curIdx == -1 || nextIdx == -1 {
		return next == ProjectStatusFailed
	}
	return nextIdx >= curIdx
}
