package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/revivalist/lorecard/internal/common"
	"github.com/revivalist/lorecard/internal/models"
)

func (d *DB) GetCredential(ctx context.Context, id string) (*models.Credential, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT id, name, encrypted_value, created_at, updated_at FROM credentials WHERE id = ?`, id)

	var c models.Credential
	var createdAt, updatedAt int64
	err := row.Scan(&c.ID, &c.Name, &c.EncryptedValue, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	c.CreatedAt = timeOf(createdAt)
	c.UpdatedAt = timeOf(updatedAt)
	return &c, nil
}

func (d *DB) CreateCredential(ctx context.Context, c *models.Credential) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO credentials (id, name, encrypted_value, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.EncryptedValue, unixOf(c.CreatedAt), unixOf(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert credential: %w", err)
	}
	return nil
}
