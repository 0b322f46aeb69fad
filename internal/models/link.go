package models

import "time"

// LinkStatus is the Link lifecycle enum (§3).
type LinkStatus string

const (
	LinkStatusPending    LinkStatus = "pending"
	LinkStatusProcessing LinkStatus = "processing"
	LinkStatusCompleted  LinkStatus = "completed"
	LinkStatusFailed     LinkStatus = "failed"
	LinkStatusSkipped    LinkStatus = "skipped"
)

// Link is one content URL queued for summarization (§3). Unique by
// (project_id, url).
type Link struct {
	ID            string     `json:"id"`
	ProjectID     string     `json:"project_id"`
	URL           string     `json:"url"`
	Status        LinkStatus `json:"status"`
	ErrorMessage  *string    `json:"error_message,omitempty"`
	SkipReason    *string    `json:"skip_reason,omitempty"`
	LorebookEntryID *string  `json:"lorebook_entry_id,omitempty"`
	RawContent    *string    `json:"raw_content,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// LorebookEntry is one finished lorebook item (§3).
type LorebookEntry struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Keywords  []string  `json:"keywords"`
	SourceURL string    `json:"source_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EntryBatchItem is one Phase 1 outcome of process_project_entries,
// harvested and written by Phase 2's batched transaction (§4.8.5). Exactly
// one of Entry, SkipReason, or ErrorMessage is set, matching the three
// typed Phase 1 results (success/skipped/failed). Log is set whenever a
// provider call was made, since every such call produces exactly one audit
// row regardless of outcome; it is nil when the item failed before any call.
type EntryBatchItem struct {
	LinkID       string
	Log          *ApiRequestLog
	Entry        *LorebookEntry
	RawContent   *string
	SkipReason   *string
	ErrorMessage *string
}

// Outcome classifies the item for the caller's counters and events.
func (b EntryBatchItem) Outcome() string {
	switch {
	case b.Entry != nil:
		return "success"
	case b.SkipReason != nil:
		return "skipped"
	default:
		return "failed"
	}
}
