package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// JobStatus is the BackgroundJob lifecycle enum (§3). Only
// pending -> in_progress -> (completed|failed|cancelling->canceled)
// transitions are legal.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCancelling JobStatus = "cancelling"
	JobStatusCanceled   JobStatus = "canceled"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether status is a terminal state (no further
// transitions legal), used to reject cancel requests per §7 (400 Conflict).
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCanceled:
		return true
	}
	return false
}

// TaskKind enumerates the nine background job kinds of §4.7. All nine cap
// at one concurrent in-flight job per process.
type TaskKind string

const (
	TaskGenerateSearchParams     TaskKind = "generate_search_params"
	TaskDiscoverAndCrawlSources  TaskKind = "discover_and_crawl_sources"
	TaskRescanLinks              TaskKind = "rescan_links"
	TaskConfirmLinks             TaskKind = "confirm_links"
	TaskProcessProjectEntries    TaskKind = "process_project_entries"
	TaskFetchSourceContent       TaskKind = "fetch_source_content"
	TaskGenerateCharacterCard    TaskKind = "generate_character_card"
	TaskRegenerateCharacterField TaskKind = "regenerate_character_field"
	TaskAIEditSourceContent      TaskKind = "ai_edit_source_content"
)

// AllTaskKinds lists every task kind, in a stable order, for parallelism
// cap bookkeeping and registry wiring.
var AllTaskKinds = []TaskKind{
	TaskGenerateSearchParams,
	TaskDiscoverAndCrawlSources,
	TaskRescanLinks,
	TaskConfirmLinks,
	TaskProcessProjectEntries,
	TaskFetchSourceContent,
	TaskGenerateCharacterCard,
	TaskRegenerateCharacterField,
	TaskAIEditSourceContent,
}

// ParallelismCap is the per-task-kind max in-flight count; every kind caps
// at 1 per §4.7.
const ParallelismCap = 1

// BackgroundJob is the queue unit (§3). Payload and Result are persisted as
// raw JSON and discriminated by TaskKind on load (§9 "Dynamic payload
// discrimination").
type BackgroundJob struct {
	ID              string          `json:"id"`
	ProjectID       string          `json:"project_id"`
	TaskKind        TaskKind        `json:"task_kind"`
	Status          JobStatus       `json:"status"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	Result          json.RawMessage `json:"result,omitempty"`
	ErrorMessage    *string         `json:"error_message,omitempty"`
	TotalItems      int             `json:"total_items"`
	ProcessedItems  int             `json:"processed_items"`
	Progress        float64         `json:"progress"` // 0-100
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// DecodePayload unmarshals the job's raw payload into v.
func (j *BackgroundJob) DecodePayload(v any) error {
	if len(j.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("decode payload for task %s: %w", j.TaskKind, err)
	}
	return nil
}

// EncodeResult marshals v into the job's raw result field.
func (j *BackgroundJob) EncodeResult(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode result for task %s: %w", j.TaskKind, err)
	}
	j.Result = b
	return nil
}

// Task payloads, one per TaskKind, persisted as BackgroundJob.Payload.

type GenerateSearchParamsPayload struct{}

type DiscoverAndCrawlSourcesPayload struct {
	RootSourceIDs []string `json:"root_source_ids" validate:"required,min=1"`
}

type RescanLinksPayload struct {
	RootSourceIDs []string `json:"root_source_ids" validate:"required,min=1"`
}

type ConfirmLinksPayload struct {
	URLs []string `json:"urls" validate:"required,min=1"`
}

type ProcessProjectEntriesPayload struct{}

type FetchSourceContentPayload struct {
	SourceIDs []string `json:"source_ids" validate:"required,min=1"`
}

type GenerateCharacterCardPayload struct {
	SourceIDs []string `json:"source_ids" validate:"required,min=1"`
}

type RegenerateCharacterFieldPayload struct {
	FieldName       string   `json:"field_name" validate:"required"`
	SourceIDs       []string `json:"source_ids,omitempty"`
}

type AIEditSourceContentPayload struct {
	SourceID           string  `json:"source_id" validate:"required"`
	OriginalContent    string  `json:"original_content"`
	EditInstruction    string  `json:"edit_instruction" validate:"required"`
	FullContentContext *string `json:"full_content_context,omitempty"`
}

// Task results, one per TaskKind, persisted as BackgroundJob.Result.

type GenerateSearchParamsResult struct {
	SearchParams SearchParams `json:"search_params"`
}

type DiscoverAndCrawlSourcesResult struct {
	NewLinks           []string `json:"new_links"`
	ExistingLinks      []string `json:"existing_links"`
	NewSourcesCreated  int      `json:"new_sources_created"`
	SelectorsGenerated int      `json:"selectors_generated"`
}

type ConfirmLinksResult struct {
	LinksCreated int `json:"links_created"`
}

type ProcessProjectEntriesResult struct {
	EntriesCreated int `json:"entries_created"`
	EntriesSkipped int `json:"entries_skipped"`
	EntriesFailed  int `json:"entries_failed"`
}

type FetchSourceContentResult struct {
	SourcesFetched int `json:"sources_fetched"`
}

type GenerateCharacterCardResult struct {
	CharacterCardID string `json:"character_card_id"`
}

type RegenerateCharacterFieldResult struct {
	FieldName  string `json:"field_name"`
	NewContent string `json:"new_content"`
}

type AIEditSourceContentResult struct {
	SourceID     string `json:"source_id"`
	EditedContent string `json:"edited_content"`
}

// ApiRequestLog is an immutable audit record per external LLM call (§3).
// Every generate call, success or failure, produces exactly one row.
type ApiRequestLog struct {
	ID            string    `json:"id"`
	ProjectID     string    `json:"project_id"`
	JobID         *string   `json:"job_id,omitempty"`
	Provider      string    `json:"provider"`
	Model         string    `json:"model"`
	RequestBody   string    `json:"request_body"`
	ResponseBody  string    `json:"response_body,omitempty"`
	InputTokens   *int      `json:"input_tokens,omitempty"`
	OutputTokens  *int      `json:"output_tokens,omitempty"`
	Cost          float64   `json:"cost"` // -1.0 sentinel = unknown pricing
	LatencyMillis int64     `json:"latency_millis"`
	Error         bool      `json:"error"`
	CreatedAt     time.Time `json:"created_at"`
}

// UnknownCost is the sentinel returned when a model's pricing is not in the
// provider's table (§4.4).
const UnknownCost = -1.0
