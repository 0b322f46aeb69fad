package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/revivalist/lorecard/internal/common"
	"github.com/revivalist/lorecard/internal/models"
)

const jobColumns = `
	id, project_id, task_kind, status, payload_json, result_json, error_message,
	total_items, processed_items, progress, cancel_requested, created_at, updated_at`

func (d *DB) CreateJob(ctx context.Context, j *models.BackgroundJob) error {
	payload := string(j.Payload)
	if payload == "" {
		payload = "{}"
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO background_jobs (
			id, project_id, task_kind, status, payload_json, result_json, error_message,
			total_items, processed_items, progress, cancel_requested, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		j.ID, j.ProjectID, string(j.TaskKind), string(j.Status), payload, nullRawJSON(j.Result),
		nullString(j.ErrorMessage), j.TotalItems, j.ProcessedItems, j.Progress,
		unixOf(j.CreatedAt), unixOf(j.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func nullRawJSON(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

func (d *DB) GetJob(ctx context.Context, id string) (*models.BackgroundJob, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM background_jobs WHERE id = ?`, id)
	j, _, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	return j, err
}

func (d *DB) UpdateJob(ctx context.Context, j *models.BackgroundJob) error {
	res, err := d.db.ExecContext(ctx, `
		UPDATE background_jobs SET
			status=?, result_json=?, error_message=?, total_items=?, processed_items=?,
			progress=?, updated_at=?
		WHERE id=?`,
		string(j.Status), nullRawJSON(j.Result), nullString(j.ErrorMessage),
		j.TotalItems, j.ProcessedItems, j.Progress, unixOf(j.UpdatedAt), j.ID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (d *DB) ListJobs(ctx context.Context, limit, offset int) ([]*models.BackgroundJob, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM background_jobs ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []*models.BackgroundJob
	for rows.Next() {
		j, _, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// ClaimNextPendingJob atomically selects the oldest pending job and flips
// it to in_progress in a single UPDATE...RETURNING statement. With the
// connection pool capped at one (connection.go), no second caller can ever
// observe the same row between the subquery and the write: SQLite has no
// FOR UPDATE SKIP LOCKED, but the single connection makes one unnecessary.
// Returns (nil, nil) if no pending job exists.
func (d *DB) ClaimNextPendingJob(ctx context.Context) (*models.BackgroundJob, error) {
	row := d.db.QueryRowContext(ctx, `
		UPDATE background_jobs
		SET status = ?, updated_at = unixepoch()
		WHERE id = (
			SELECT id FROM background_jobs
			WHERE status = ?
			ORDER BY created_at ASC
			LIMIT 1
		)
		RETURNING `+jobColumns,
		string(models.JobStatusInProgress), string(models.JobStatusPending),
	)
	j, _, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim next pending job: %w", err)
	}
	return j, nil
}

func (d *DB) CountInProgressByKind(ctx context.Context, kind models.TaskKind) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM background_jobs WHERE task_kind = ? AND status = ?`,
		string(kind), string(models.JobStatusInProgress),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count in-progress jobs: %w", err)
	}
	return count, nil
}

// RecoverStaleState is run once at startup (§4.1): any job left in_progress
// by a crashed process is reset to pending so it can be re-claimed, and any
// link left processing is reverted to pending. Idempotent — running it
// against an already-clean database is a no-op.
func (d *DB) RecoverStaleState(ctx context.Context) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin recover stale state: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE background_jobs SET status = ?, updated_at = unixepoch() WHERE status = ?`,
		string(models.JobStatusPending), string(models.JobStatusInProgress),
	); err != nil {
		return fmt.Errorf("reset in-progress jobs: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE links SET status = ? WHERE status = ?`,
		string(models.LinkStatusPending), string(models.LinkStatusProcessing),
	); err != nil {
		return fmt.Errorf("reset processing links: %w", err)
	}

	return tx.Commit()
}

// RequestJobCancellation flips cancel_requested on a job, observed by the
// cancellation polling sidecar of C7 on its next 5s tick.
func (d *DB) RequestJobCancellation(ctx context.Context, id string) error {
	res, err := d.db.ExecContext(ctx,
		`UPDATE background_jobs SET cancel_requested = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("request job cancellation: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (d *DB) IsCancellationRequested(ctx context.Context, id string) (bool, error) {
	var flag int
	err := d.db.QueryRowContext(ctx,
		`SELECT cancel_requested FROM background_jobs WHERE id = ?`, id,
	).Scan(&flag)
	if errors.Is(err, sql.ErrNoRows) {
		return false, common.ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("check cancellation requested: %w", err)
	}
	return flag != 0, nil
}

func (d *DB) InsertApiRequestLog(ctx context.Context, l *models.ApiRequestLog) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO api_request_logs (
			id, project_id, job_id, provider, model, request_body, response_body,
			input_tokens, output_tokens, cost, latency_millis, error, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.ProjectID, nullString(l.JobID), l.Provider, l.Model, l.RequestBody, l.ResponseBody,
		nullInt(l.InputTokens), nullInt(l.OutputTokens), l.Cost, l.LatencyMillis,
		boolToInt(l.Error), unixOf(l.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert api request log: %w", err)
	}
	return nil
}

func scanJob(row scanner) (*models.BackgroundJob, bool, error) {
	var j models.BackgroundJob
	var taskKind, status, payloadJSON string
	var resultJSON, errMsg sql.NullString
	var cancelRequested int
	var createdAt, updatedAt int64

	if err := row.Scan(
		&j.ID, &j.ProjectID, &taskKind, &status, &payloadJSON, &resultJSON, &errMsg,
		&j.TotalItems, &j.ProcessedItems, &j.Progress, &cancelRequested, &createdAt, &updatedAt,
	); err != nil {
		return nil, false, err
	}
	j.TaskKind = models.TaskKind(taskKind)
	j.Status = models.JobStatus(status)
	j.Payload = []byte(payloadJSON)
	if resultJSON.Valid {
		j.Result = []byte(resultJSON.String)
	}
	j.ErrorMessage = strPtrOf(errMsg)
	j.CreatedAt = timeOf(createdAt)
	j.UpdatedAt = timeOf(updatedAt)
	return &j, cancelRequested != 0, nil
}
