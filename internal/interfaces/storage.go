package interfaces

import (
	"context"

	"github.com/revivalist/lorecard/internal/models"
)

// Tx is a transaction-scoped handle: every call made through it shares one
// connection and commits or rolls back together (§4.1).
type Tx interface {
	Commit() error
	Rollback() error
}

// Store is the storage abstraction of C1: a relational store exposing
// domain-specific operations grouped by entity, plus the job-queue
// primitives that require atomicity. Implementations must marshal
// parameters per §4.1 (maps -> JSON text, UUIDs -> canonical string,
// booleans -> 0/1, timestamps -> ISO-8601 UTC).
type Store interface {
	ProjectStore
	SourceStore
	LinkStore
	EntryStore
	CharacterStore
	JobStore
	TemplateStore
	CredentialStore

	// Migrate applies every pending schema migration, tracked in
	// schema_migrations(version, name, applied_at) per §6.
	Migrate(ctx context.Context) error
	// RecoverStaleState resets in_progress jobs to pending and processing
	// links to pending at startup, idempotently (§4.1).
	RecoverStaleState(ctx context.Context) error
	// Close releases the underlying connection(s).
	Close() error
}

type ProjectStore interface {
	CreateProject(ctx context.Context, p *models.Project) error
	GetProject(ctx context.Context, id string) (*models.Project, error)
	UpdateProject(ctx context.Context, p *models.Project) error
	DeleteProject(ctx context.Context, id string) error
	ListProjects(ctx context.Context) ([]*models.Project, error)
}

type SourceStore interface {
	CreateSource(ctx context.Context, s *models.ProjectSource) error
	GetSource(ctx context.Context, id string) (*models.ProjectSource, error)
	GetSourceByURL(ctx context.Context, projectID, urlOrPath string) (*models.ProjectSource, error)
	UpdateSource(ctx context.Context, s *models.ProjectSource) error
	ListSourcesByProject(ctx context.Context, projectID string) ([]*models.ProjectSource, error)
	ListSourcesByIDs(ctx context.Context, ids []string) ([]*models.ProjectSource, error)
	CreateHierarchyEdge(ctx context.Context, e *models.SourceHierarchyEdge) error
	HierarchyEdgeExists(ctx context.Context, parentID, childID string) (bool, error)
	CreateSourceContentVersion(ctx context.Context, v *models.SourceContentVersion) error
}

type LinkStore interface {
	// UpsertLink inserts a pending Link if (project_id, url) does not
	// already exist; idempotent per §4.8.4 and §8 round-trip property.
	// Returns true if a new row was inserted.
	UpsertLink(ctx context.Context, l *models.Link) (bool, error)
	GetLink(ctx context.Context, id string) (*models.Link, error)
	GetLinkByURL(ctx context.Context, projectID, url string) (*models.Link, error)
	UpdateLink(ctx context.Context, l *models.Link) error
	ListLinksByStatus(ctx context.Context, projectID string, statuses []models.LinkStatus) ([]*models.Link, error)
	CountLinksByStatus(ctx context.Context, projectID string) (map[models.LinkStatus]int, error)
	// MarkLinksProcessing transitions a batch of link ids from
	// pending/failed to processing in one statement (§4.8.5 step 1).
	MarkLinksProcessing(ctx context.Context, ids []string) error
	// RevertProcessingLinks reverts a set of links from processing back to
	// pending, used by cancellation and stale recovery.
	RevertProcessingLinks(ctx context.Context, ids []string) error
}

type EntryStore interface {
	CreateEntry(ctx context.Context, e *models.LorebookEntry) error
	ListEntriesByProject(ctx context.Context, projectID string) ([]*models.LorebookEntry, error)
	// WriteEntryBatch applies one Phase 2 batch of process_project_entries
	// (§4.8.5) in a single transaction: per item it inserts the audit log
	// and, by outcome, creates the entry and completes the link, marks the
	// link skipped, or marks it failed.
	WriteEntryBatch(ctx context.Context, items []models.EntryBatchItem) error
}

type CharacterStore interface {
	GetCharacterCard(ctx context.Context, projectID string) (*models.CharacterCard, error)
	UpsertCharacterCard(ctx context.Context, c *models.CharacterCard) error
}

// JobStore exposes the durable queue primitives of C1/C7, including the
// atomic claim operation.
type JobStore interface {
	CreateJob(ctx context.Context, j *models.BackgroundJob) error
	GetJob(ctx context.Context, id string) (*models.BackgroundJob, error)
	UpdateJob(ctx context.Context, j *models.BackgroundJob) error
	ListJobs(ctx context.Context, limit, offset int) ([]*models.BackgroundJob, error)
	// ClaimNextPendingJob atomically selects the oldest pending job,
	// flips it to in_progress, and returns it. Returns nil, nil if no
	// pending job exists. See §4.1.
	ClaimNextPendingJob(ctx context.Context) (*models.BackgroundJob, error)
	CountInProgressByKind(ctx context.Context, kind models.TaskKind) (int, error)
	InsertApiRequestLog(ctx context.Context, l *models.ApiRequestLog) error
	// RequestJobCancellation flips the cancel_requested flag on a running
	// job; the cancellation polling sidecar (§4.7) observes it via
	// IsCancellationRequested.
	RequestJobCancellation(ctx context.Context, id string) error
	IsCancellationRequested(ctx context.Context, id string) (bool, error)
}

type TemplateStore interface {
	GetGlobalTemplate(ctx context.Context, name string) (*models.GlobalTemplate, error)
	UpsertGlobalTemplate(ctx context.Context, t *models.GlobalTemplate) error
}

type CredentialStore interface {
	GetCredential(ctx context.Context, id string) (*models.Credential, error)
	CreateCredential(ctx context.Context, c *models.Credential) error
}
