package sqlite

import (
	"context"
	"fmt"

	"github.com/revivalist/lorecard/internal/models"
)

// WriteEntryBatch applies Phase 2 of process_project_entries (§4.8.5) in
// one transaction: every item gets its audit log inserted, then by
// outcome either creates a LorebookEntry and completes its link, marks
// the link skipped, or marks it failed. Batching exists for UI
// responsiveness and amortized transaction cost, not correctness, so a
// mid-batch failure rolls the whole batch back for the caller to retry.
func (d *DB) WriteEntryBatch(ctx context.Context, items []models.EntryBatchItem) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin entry batch: %w", err)
	}
	defer tx.Rollback()

	for _, item := range items {
		if item.Log != nil {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO api_request_logs (
					id, project_id, job_id, provider, model, request_body, response_body,
					input_tokens, output_tokens, cost, latency_millis, error, created_at
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				item.Log.ID, item.Log.ProjectID, nullString(item.Log.JobID), item.Log.Provider, item.Log.Model,
				item.Log.RequestBody, item.Log.ResponseBody, nullInt(item.Log.InputTokens), nullInt(item.Log.OutputTokens),
				item.Log.Cost, item.Log.LatencyMillis, boolToInt(item.Log.Error), unixOf(item.Log.CreatedAt),
			); err != nil {
				return fmt.Errorf("insert batch api log: %w", err)
			}
		}

		switch {
		case item.Entry != nil:
			keywordsJSON, err := marshalJSON(item.Entry.Keywords)
			if err != nil {
				return fmt.Errorf("marshal entry keywords: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO lorebook_entries (id, project_id, title, content, keywords_json, source_url, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				item.Entry.ID, item.Entry.ProjectID, item.Entry.Title, item.Entry.Content, keywordsJSON,
				item.Entry.SourceURL, unixOf(item.Entry.CreatedAt), unixOf(item.Entry.UpdatedAt),
			); err != nil {
				return fmt.Errorf("insert batch entry: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE links SET status = ?, lorebook_entry_id = ?, raw_content = ? WHERE id = ?`,
				string(models.LinkStatusCompleted), item.Entry.ID, nullString(item.RawContent), item.LinkID,
			); err != nil {
				return fmt.Errorf("complete batch link: %w", err)
			}

		case item.SkipReason != nil:
			if _, err := tx.ExecContext(ctx,
				`UPDATE links SET status = ?, skip_reason = ? WHERE id = ?`,
				string(models.LinkStatusSkipped), *item.SkipReason, item.LinkID,
			); err != nil {
				return fmt.Errorf("skip batch link: %w", err)
			}

		default:
			if _, err := tx.ExecContext(ctx,
				`UPDATE links SET status = ?, error_message = ? WHERE id = ?`,
				string(models.LinkStatusFailed), nullString(item.ErrorMessage), item.LinkID,
			); err != nil {
				return fmt.Errorf("fail batch link: %w", err)
			}
		}
	}

	return tx.Commit()
}
