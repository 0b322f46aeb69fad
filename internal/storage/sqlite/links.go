package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/revivalist/lorecard/internal/common"
	"github.com/revivalist/lorecard/internal/models"
)

const linkColumns = `
	id, project_id, url, status, error_message, skip_reason, lorebook_entry_id, raw_content, created_at`

// UpsertLink inserts a pending link for (project_id, url) if it does not
// already exist. The UNIQUE constraint makes this race-safe even without
// the single-connection guarantee; ON CONFLICT DO NOTHING reports back
// via RowsAffected whether a new row landed.
func (d *DB) UpsertLink(ctx context.Context, l *models.Link) (bool, error) {
	res, err := d.db.ExecContext(ctx, `
		INSERT INTO links (id, project_id, url, status, error_message, skip_reason, lorebook_entry_id, raw_content, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, url) DO NOTHING`,
		l.ID, l.ProjectID, l.URL, string(l.Status), nullString(l.ErrorMessage), nullString(l.SkipReason),
		nullString(l.LorebookEntryID), nullString(l.RawContent), unixOf(l.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("upsert link: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (d *DB) GetLink(ctx context.Context, id string) (*models.Link, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+linkColumns+` FROM links WHERE id = ?`, id)
	l, err := scanLink(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	return l, err
}

func (d *DB) GetLinkByURL(ctx context.Context, projectID, url string) (*models.Link, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+linkColumns+` FROM links WHERE project_id = ? AND url = ?`, projectID, url)
	l, err := scanLink(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	return l, err
}

func (d *DB) UpdateLink(ctx context.Context, l *models.Link) error {
	res, err := d.db.ExecContext(ctx, `
		UPDATE links SET status=?, error_message=?, skip_reason=?, lorebook_entry_id=?, raw_content=?
		WHERE id=?`,
		string(l.Status), nullString(l.ErrorMessage), nullString(l.SkipReason),
		nullString(l.LorebookEntryID), nullString(l.RawContent), l.ID,
	)
	if err != nil {
		return fmt.Errorf("update link: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (d *DB) ListLinksByStatus(ctx context.Context, projectID string, statuses []models.LinkStatus) ([]*models.Link, error) {
	placeholders := make([]string, len(statuses))
	args := make([]any, 0, len(statuses)+1)
	args = append(args, projectID)
	for i, s := range statuses {
		placeholders[i] = "?"
		args = append(args, string(s))
	}
	query := `SELECT ` + linkColumns + ` FROM links WHERE project_id = ?`
	if len(statuses) > 0 {
		query += ` AND status IN (` + strings.Join(placeholders, ",") + `)`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list links by status: %w", err)
	}
	defer rows.Close()

	var out []*models.Link
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (d *DB) CountLinksByStatus(ctx context.Context, projectID string) (map[models.LinkStatus]int, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT status, COUNT(1) FROM links WHERE project_id = ? GROUP BY status`, projectID)
	if err != nil {
		return nil, fmt.Errorf("count links by status: %w", err)
	}
	defer rows.Close()

	out := make(map[models.LinkStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		out[models.LinkStatus(status)] = count
	}
	return out, rows.Err()
}

// MarkLinksProcessing transitions a batch of links to processing in one
// statement, the first step of the two-phase link engine (§4.8.5).
func (d *DB) MarkLinksProcessing(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+1)
	args = append(args, string(models.LinkStatusProcessing))
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}
	query := `UPDATE links SET status = ? WHERE id IN (` + strings.Join(placeholders, ",") + `)`
	if _, err := d.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark links processing: %w", err)
	}
	return nil
}

// RevertProcessingLinks reverts a batch of links from processing back to
// pending, used by the cancellation protocol and startup stale recovery.
func (d *DB) RevertProcessingLinks(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+2)
	args = append(args, string(models.LinkStatusPending), string(models.LinkStatusProcessing))
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}
	query := `UPDATE links SET status = ? WHERE status = ? AND id IN (` + strings.Join(placeholders, ",") + `)`
	if _, err := d.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("revert processing links: %w", err)
	}
	return nil
}

func scanLink(row scanner) (*models.Link, error) {
	var l models.Link
	var status string
	var errMsg, skipReason, entryID, rawContent sql.NullString
	var createdAt int64

	if err := row.Scan(&l.ID, &l.ProjectID, &l.URL, &status, &errMsg, &skipReason, &entryID, &rawContent, &createdAt); err != nil {
		return nil, err
	}
	l.Status = models.LinkStatus(status)
	l.ErrorMessage = strPtrOf(errMsg)
	l.SkipReason = strPtrOf(skipReason)
	l.LorebookEntryID = strPtrOf(entryID)
	l.RawContent = strPtrOf(rawContent)
	l.CreatedAt = timeOf(createdAt)
	return &l, nil
}
