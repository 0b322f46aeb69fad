package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/revivalist/lorecard/internal/common"
	"github.com/revivalist/lorecard/internal/models"
)

func (d *DB) CreateSource(ctx context.Context, s *models.ProjectSource) error {
	selectorsJSON, excludeJSON, err := marshalSourceArrays(s)
	if err != nil {
		return err
	}
	_, err = d.db.ExecContext(ctx, `
		INSERT INTO project_sources (
			id, project_id, kind, url_or_path, raw_content, content_selectors_json,
			pagination_selector, exclude_patterns_json, max_pages_to_crawl, max_crawl_depth,
			last_crawled_at, content_type, content_char_count, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.ProjectID, string(s.Kind), s.URLOrPath, nullString(s.RawContent), selectorsJSON,
		nullString(s.PaginationSelector), excludeJSON, s.MaxPagesToCrawl, s.MaxCrawlDepth,
		nullTime(s.LastCrawledAt), nullString(s.ContentType), nullInt(s.ContentCharCount),
		unixOf(s.CreatedAt), unixOf(s.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert source: %w", err)
	}
	return nil
}

func marshalSourceArrays(s *models.ProjectSource) (sql.NullString, sql.NullString, error) {
	var selectorsJSON, excludeJSON sql.NullString
	if len(s.ContentSelectors) > 0 {
		b, err := json.Marshal(s.ContentSelectors)
		if err != nil {
			return selectorsJSON, excludeJSON, fmt.Errorf("marshal content_selectors: %w", err)
		}
		selectorsJSON = sql.NullString{String: string(b), Valid: true}
	}
	if len(s.ExcludePatterns) > 0 {
		b, err := json.Marshal(s.ExcludePatterns)
		if err != nil {
			return selectorsJSON, excludeJSON, fmt.Errorf("marshal exclude_patterns: %w", err)
		}
		excludeJSON = sql.NullString{String: string(b), Valid: true}
	}
	return selectorsJSON, excludeJSON, nil
}

const sourceColumns = `
	id, project_id, kind, url_or_path, raw_content, content_selectors_json,
	pagination_selector, exclude_patterns_json, max_pages_to_crawl, max_crawl_depth,
	last_crawled_at, content_type, content_char_count, created_at, updated_at`

func (d *DB) GetSource(ctx context.Context, id string) (*models.ProjectSource, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM project_sources WHERE id = ?`, id)
	s, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	return s, err
}

func (d *DB) GetSourceByURL(ctx context.Context, projectID, urlOrPath string) (*models.ProjectSource, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+sourceColumns+` FROM project_sources WHERE project_id = ? AND url_or_path = ?`,
		projectID, urlOrPath)
	s, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	return s, err
}

func (d *DB) UpdateSource(ctx context.Context, s *models.ProjectSource) error {
	selectorsJSON, excludeJSON, err := marshalSourceArrays(s)
	if err != nil {
		return err
	}
	res, err := d.db.ExecContext(ctx, `
		UPDATE project_sources SET
			kind=?, url_or_path=?, raw_content=?, content_selectors_json=?, pagination_selector=?,
			exclude_patterns_json=?, max_pages_to_crawl=?, max_crawl_depth=?, last_crawled_at=?,
			content_type=?, content_char_count=?, updated_at=?
		WHERE id=?`,
		string(s.Kind), s.URLOrPath, nullString(s.RawContent), selectorsJSON, nullString(s.PaginationSelector),
		excludeJSON, s.MaxPagesToCrawl, s.MaxCrawlDepth, nullTime(s.LastCrawledAt),
		nullString(s.ContentType), nullInt(s.ContentCharCount), unixOf(s.UpdatedAt), s.ID,
	)
	if err != nil {
		return fmt.Errorf("update source: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (d *DB) ListSourcesByProject(ctx context.Context, projectID string) ([]*models.ProjectSource, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+sourceColumns+` FROM project_sources WHERE project_id = ? ORDER BY created_at ASC`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()
	return scanSources(rows)
}

func (d *DB) ListSourcesByIDs(ctx context.Context, ids []string) ([]*models.ProjectSource, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := `SELECT ` + sourceColumns + ` FROM project_sources WHERE id IN (` + strings.Join(placeholders, ",") + `)`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sources by ids: %w", err)
	}
	defer rows.Close()
	return scanSources(rows)
}

func scanSources(rows *sql.Rows) ([]*models.ProjectSource, error) {
	var out []*models.ProjectSource
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSource(row scanner) (*models.ProjectSource, error) {
	var s models.ProjectSource
	var kind string
	var rawContent, paginationSelector, contentType sql.NullString
	var selectorsJSON, excludeJSON sql.NullString
	var lastCrawledAt sql.NullInt64
	var contentCharCount sql.NullInt64
	var createdAt, updatedAt int64

	if err := row.Scan(
		&s.ID, &s.ProjectID, &kind, &s.URLOrPath, &rawContent, &selectorsJSON,
		&paginationSelector, &excludeJSON, &s.MaxPagesToCrawl, &s.MaxCrawlDepth,
		&lastCrawledAt, &contentType, &contentCharCount, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	s.Kind = models.SourceKind(kind)
	s.RawContent = strPtrOf(rawContent)
	s.PaginationSelector = strPtrOf(paginationSelector)
	s.ContentType = strPtrOf(contentType)
	s.ContentCharCount = intPtrOf(contentCharCount)
	s.LastCrawledAt = timePtrOf(lastCrawledAt)
	s.CreatedAt = timeOf(createdAt)
	s.UpdatedAt = timeOf(updatedAt)

	if selectorsJSON.Valid {
		if err := json.Unmarshal([]byte(selectorsJSON.String), &s.ContentSelectors); err != nil {
			return nil, fmt.Errorf("unmarshal content_selectors: %w", err)
		}
	}
	if excludeJSON.Valid {
		if err := json.Unmarshal([]byte(excludeJSON.String), &s.ExcludePatterns); err != nil {
			return nil, fmt.Errorf("unmarshal exclude_patterns: %w", err)
		}
	}
	return &s, nil
}

func (d *DB) CreateHierarchyEdge(ctx context.Context, e *models.SourceHierarchyEdge) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO source_hierarchy_edges (id, parent_id, child_id) VALUES (?, ?, ?)
		ON CONFLICT(parent_id, child_id) DO NOTHING`,
		e.ID, e.ParentID, e.ChildID,
	)
	if err != nil {
		return fmt.Errorf("insert hierarchy edge: %w", err)
	}
	return nil
}

func (d *DB) HierarchyEdgeExists(ctx context.Context, parentID, childID string) (bool, error) {
	var count int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM source_hierarchy_edges WHERE parent_id = ? AND child_id = ?`,
		parentID, childID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check hierarchy edge: %w", err)
	}
	return count > 0, nil
}

func (d *DB) CreateSourceContentVersion(ctx context.Context, v *models.SourceContentVersion) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO source_content_versions (id, source_id, content, created_at)
		VALUES (?, ?, ?, ?)`,
		v.ID, v.SourceID, v.Content, unixOf(v.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert source content version: %w", err)
	}
	return nil
}
