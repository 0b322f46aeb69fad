package models

import "time"

// SourceKind is the ProjectSource.kind enum (§3).
type SourceKind string

const (
	SourceKindWebURL        SourceKind = "web_url"
	SourceKindUserTextFile  SourceKind = "user_text_file"
	SourceKindCharacterCard SourceKind = "character_card"
)

// ProjectSource is a root or discovered crawl seed (§3).
type ProjectSource struct {
	ID                 string     `json:"id"`
	ProjectID          string     `json:"project_id"`
	Kind               SourceKind `json:"kind"`
	URLOrPath          string     `json:"url_or_path"`
	RawContent         *string    `json:"raw_content,omitempty"`
	ContentSelectors   []string   `json:"content_selectors,omitempty"`
	PaginationSelector *string    `json:"pagination_selector,omitempty"`
	ExcludePatterns    []string   `json:"exclude_patterns,omitempty"`
	MaxPagesToCrawl    int        `json:"max_pages_to_crawl"`
	MaxCrawlDepth      int        `json:"max_crawl_depth"`
	LastCrawledAt      *time.Time `json:"last_crawled_at,omitempty"`
	ContentType        *string    `json:"content_type,omitempty"`
	ContentCharCount   *int       `json:"content_char_count,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// HasSelectors reports whether selectors have already been generated for
// this source, which rescan_links (§4.8.3) requires.
func (s *ProjectSource) HasSelectors() bool {
	return len(s.ContentSelectors) > 0 || s.PaginationSelector != nil
}

// SourceHierarchyEdge is a directed parent->child edge discovered via
// category crawl (§3). Unique by (parent, child); acyclic by construction.
type SourceHierarchyEdge struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id"`
	ChildID  string `json:"child_id"`
}

// SourceContentVersion is a backup of a source's content taken before an
// ai_edit_source_content overwrite (§4.8.6, §9 Open Question #1).
type SourceContentVersion struct {
	ID        string    `json:"id"`
	SourceID  string    `json:"source_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
