package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/revivalist/lorecard/internal/common"
	"github.com/revivalist/lorecard/internal/models"
)

func (d *DB) GetGlobalTemplate(ctx context.Context, name string) (*models.GlobalTemplate, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT id, name, body, created_at, updated_at FROM global_templates WHERE name = ?`, name)

	var t models.GlobalTemplate
	var createdAt, updatedAt int64
	err := row.Scan(&t.ID, &t.Name, &t.Body, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get global template: %w", err)
	}
	t.CreatedAt = timeOf(createdAt)
	t.UpdatedAt = timeOf(updatedAt)
	return &t, nil
}

func (d *DB) UpsertGlobalTemplate(ctx context.Context, t *models.GlobalTemplate) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO global_templates (id, name, body, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET body=excluded.body, updated_at=excluded.updated_at`,
		t.ID, t.Name, t.Body, unixOf(t.CreatedAt), unixOf(t.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert global template: %w", err)
	}
	return nil
}
