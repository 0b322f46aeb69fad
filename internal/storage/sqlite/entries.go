package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/revivalist/lorecard/internal/models"
)

func (d *DB) CreateEntry(ctx context.Context, e *models.LorebookEntry) error {
	keywordsJSON, err := marshalJSON(e.Keywords)
	if err != nil {
		return fmt.Errorf("marshal keywords: %w", err)
	}
	_, err = d.db.ExecContext(ctx, `
		INSERT INTO lorebook_entries (id, project_id, title, content, keywords_json, source_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ProjectID, e.Title, e.Content, keywordsJSON, e.SourceURL, unixOf(e.CreatedAt), unixOf(e.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert lorebook entry: %w", err)
	}
	return nil
}

func (d *DB) ListEntriesByProject(ctx context.Context, projectID string) ([]*models.LorebookEntry, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, project_id, title, content, keywords_json, source_url, created_at, updated_at
		FROM lorebook_entries WHERE project_id = ? ORDER BY created_at ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list lorebook entries: %w", err)
	}
	defer rows.Close()

	var out []*models.LorebookEntry
	for rows.Next() {
		var e models.LorebookEntry
		var keywordsJSON string
		var createdAt, updatedAt int64
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.Title, &e.Content, &keywordsJSON, &e.SourceURL, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(keywordsJSON), &e.Keywords); err != nil {
			return nil, fmt.Errorf("unmarshal keywords: %w", err)
		}
		e.CreatedAt = timeOf(createdAt)
		e.UpdatedAt = timeOf(updatedAt)
		out = append(out, &e)
	}
	return out, rows.Err()
}
