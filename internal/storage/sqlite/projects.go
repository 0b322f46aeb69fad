package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/revivalist/lorecard/internal/common"
	"github.com/revivalist/lorecard/internal/models"
)

func (d *DB) CreateProject(ctx context.Context, p *models.Project) error {
	templatesJSON, err := marshalJSON(p.Templates)
	if err != nil {
		return fmt.Errorf("marshal templates: %w", err)
	}
	var modelParamsJSON sql.NullString
	if p.ModelParameters != nil {
		s, err := marshalJSON(p.ModelParameters)
		if err != nil {
			return fmt.Errorf("marshal model_parameters: %w", err)
		}
		modelParamsJSON = sql.NullString{String: s, Valid: true}
	}
	var searchParamsJSON sql.NullString
	if p.SearchParams != nil {
		s, err := marshalJSON(p.SearchParams)
		if err != nil {
			return fmt.Errorf("marshal search_params: %w", err)
		}
		searchParamsJSON = sql.NullString{String: s, Valid: true}
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO projects (
			id, name, prompt, templates_json, credential_id, model, model_parameters_json,
			requests_per_minute, search_params_json, status, kind, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Prompt, templatesJSON, nullString(p.CredentialID), p.Model, modelParamsJSON,
		p.RequestsPerMinute, searchParamsJSON, string(p.Status), string(p.Kind),
		unixOf(p.CreatedAt), unixOf(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

func (d *DB) GetProject(ctx context.Context, id string) (*models.Project, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, name, prompt, templates_json, credential_id, model, model_parameters_json,
			requests_per_minute, search_params_json, status, kind, created_at, updated_at
		FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	return p, err
}

func (d *DB) UpdateProject(ctx context.Context, p *models.Project) error {
	templatesJSON, err := marshalJSON(p.Templates)
	if err != nil {
		return fmt.Errorf("marshal templates: %w", err)
	}
	var modelParamsJSON sql.NullString
	if p.ModelParameters != nil {
		s, err := marshalJSON(p.ModelParameters)
		if err != nil {
			return fmt.Errorf("marshal model_parameters: %w", err)
		}
		modelParamsJSON = sql.NullString{String: s, Valid: true}
	}
	var searchParamsJSON sql.NullString
	if p.SearchParams != nil {
		s, err := marshalJSON(p.SearchParams)
		if err != nil {
			return fmt.Errorf("marshal search_params: %w", err)
		}
		searchParamsJSON = sql.NullString{String: s, Valid: true}
	}

	res, err := d.db.ExecContext(ctx, `
		UPDATE projects SET name=?, prompt=?, templates_json=?, credential_id=?, model=?,
			model_parameters_json=?, requests_per_minute=?, search_params_json=?, status=?, kind=?,
			updated_at=?
		WHERE id=?`,
		p.Name, p.Prompt, templatesJSON, nullString(p.CredentialID), p.Model,
		modelParamsJSON, p.RequestsPerMinute, searchParamsJSON, string(p.Status), string(p.Kind),
		unixOf(p.UpdatedAt), p.ID,
	)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (d *DB) DeleteProject(ctx context.Context, id string) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (d *DB) ListProjects(ctx context.Context) ([]*models.Project, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, name, prompt, templates_json, credential_id, model, model_parameters_json,
			requests_per_minute, search_params_json, status, kind, created_at, updated_at
		FROM projects ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []*models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(row scanner) (*models.Project, error) {
	var p models.Project
	var templatesJSON string
	var credentialID, modelParamsJSON, searchParamsJSON sql.NullString
	var status, kind string
	var createdAt, updatedAt int64

	if err := row.Scan(
		&p.ID, &p.Name, &p.Prompt, &templatesJSON, &credentialID, &p.Model, &modelParamsJSON,
		&p.RequestsPerMinute, &searchParamsJSON, &status, &kind, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(templatesJSON), &p.Templates); err != nil {
		return nil, fmt.Errorf("unmarshal templates: %w", err)
	}
	p.CredentialID = strPtrOf(credentialID)
	if modelParamsJSON.Valid {
		if err := json.Unmarshal([]byte(modelParamsJSON.String), &p.ModelParameters); err != nil {
			return nil, fmt.Errorf("unmarshal model_parameters: %w", err)
		}
	}
	if searchParamsJSON.Valid {
		var sp models.SearchParams
		if err := json.Unmarshal([]byte(searchParamsJSON.String), &sp); err != nil {
			return nil, fmt.Errorf("unmarshal search_params: %w", err)
		}
		p.SearchParams = &sp
	}
	p.Status = models.ProjectStatus(status)
	p.Kind = models.ProjectKind(kind)
	p.CreatedAt = timeOf(createdAt)
	p.UpdatedAt = timeOf(updatedAt)
	return &p, nil
}
