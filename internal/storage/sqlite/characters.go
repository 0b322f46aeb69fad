package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/revivalist/lorecard/internal/common"
	"github.com/revivalist/lorecard/internal/models"
)

func (d *DB) GetCharacterCard(ctx context.Context, projectID string) (*models.CharacterCard, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, project_id, name, description, persona, scenario, first_message, example_messages, created_at, updated_at
		FROM character_cards WHERE project_id = ?`, projectID)

	var c models.CharacterCard
	var createdAt, updatedAt int64
	err := row.Scan(&c.ID, &c.ProjectID, &c.Name, &c.Description, &c.Persona, &c.Scenario,
		&c.FirstMessage, &c.ExampleMessages, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get character card: %w", err)
	}
	c.CreatedAt = timeOf(createdAt)
	c.UpdatedAt = timeOf(updatedAt)
	return &c, nil
}

// UpsertCharacterCard inserts or replaces the project's single character
// card row (unique by project_id, §3: "at most one per project").
func (d *DB) UpsertCharacterCard(ctx context.Context, c *models.CharacterCard) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO character_cards (id, project_id, name, description, persona, scenario, first_message, example_messages, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id) DO UPDATE SET
			name=excluded.name, description=excluded.description, persona=excluded.persona,
			scenario=excluded.scenario, first_message=excluded.first_message,
			example_messages=excluded.example_messages, updated_at=excluded.updated_at`,
		c.ID, c.ProjectID, c.Name, c.Description, c.Persona, c.Scenario,
		c.FirstMessage, c.ExampleMessages, unixOf(c.CreatedAt), unixOf(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert character card: %w", err)
	}
	return nil
}
