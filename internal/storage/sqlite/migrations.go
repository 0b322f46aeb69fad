package sqlite

import (
	"context"
	"fmt"
)

type migration struct {
	version int
	name    string
	stmts   []string
}

// migrations is the ordered schema history. Each entry is applied inside
// its own transaction and recorded in schema_migrations so the set is
// idempotent on restart. The runner itself stays intentionally dumb —
// no down-migrations, no checksum verification — only the table's
// existence and eventual schema convergence are required.
var migrations = []migration{
	{
		version: 1,
		name:    "initial_schema",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS projects (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				prompt TEXT NOT NULL DEFAULT '',
				templates_json TEXT NOT NULL DEFAULT '{}',
				credential_id TEXT,
				model TEXT NOT NULL DEFAULT '',
				model_parameters_json TEXT,
				requests_per_minute INTEGER NOT NULL DEFAULT 10,
				search_params_json TEXT,
				status TEXT NOT NULL,
				kind TEXT NOT NULL,
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS project_sources (
				id TEXT PRIMARY KEY,
				project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
				kind TEXT NOT NULL,
				url_or_path TEXT NOT NULL,
				raw_content TEXT,
				content_selectors_json TEXT,
				pagination_selector TEXT,
				exclude_patterns_json TEXT,
				max_pages_to_crawl INTEGER NOT NULL DEFAULT 0,
				max_crawl_depth INTEGER NOT NULL DEFAULT 0,
				last_crawled_at INTEGER,
				content_type TEXT,
				content_char_count INTEGER,
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL,
				UNIQUE(project_id, url_or_path)
			)`,
			`CREATE TABLE IF NOT EXISTS source_hierarchy_edges (
				id TEXT PRIMARY KEY,
				parent_id TEXT NOT NULL REFERENCES project_sources(id) ON DELETE CASCADE,
				child_id TEXT NOT NULL REFERENCES project_sources(id) ON DELETE CASCADE,
				UNIQUE(parent_id, child_id)
			)`,
			`CREATE TABLE IF NOT EXISTS source_content_versions (
				id TEXT PRIMARY KEY,
				source_id TEXT NOT NULL REFERENCES project_sources(id) ON DELETE CASCADE,
				content TEXT NOT NULL,
				created_at INTEGER NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS links (
				id TEXT PRIMARY KEY,
				project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
				url TEXT NOT NULL,
				status TEXT NOT NULL,
				error_message TEXT,
				skip_reason TEXT,
				lorebook_entry_id TEXT,
				raw_content TEXT,
				created_at INTEGER NOT NULL,
				UNIQUE(project_id, url)
			)`,
			`CREATE TABLE IF NOT EXISTS lorebook_entries (
				id TEXT PRIMARY KEY,
				project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
				title TEXT NOT NULL DEFAULT '',
				content TEXT NOT NULL,
				keywords_json TEXT NOT NULL DEFAULT '[]',
				source_url TEXT NOT NULL DEFAULT '',
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS character_cards (
				id TEXT PRIMARY KEY,
				project_id TEXT NOT NULL UNIQUE REFERENCES projects(id) ON DELETE CASCADE,
				name TEXT NOT NULL DEFAULT '',
				description TEXT NOT NULL DEFAULT '',
				persona TEXT NOT NULL DEFAULT '',
				scenario TEXT NOT NULL DEFAULT '',
				first_message TEXT NOT NULL DEFAULT '',
				example_messages TEXT NOT NULL DEFAULT '',
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS credentials (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				encrypted_value TEXT NOT NULL,
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS global_templates (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL UNIQUE,
				body TEXT NOT NULL,
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS background_jobs (
				id TEXT PRIMARY KEY,
				project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
				task_kind TEXT NOT NULL,
				status TEXT NOT NULL,
				payload_json TEXT NOT NULL DEFAULT '{}',
				result_json TEXT,
				error_message TEXT,
				total_items INTEGER NOT NULL DEFAULT 0,
				processed_items INTEGER NOT NULL DEFAULT 0,
				progress REAL NOT NULL DEFAULT 0,
				cancel_requested INTEGER NOT NULL DEFAULT 0,
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_background_jobs_claim ON background_jobs(status, created_at)`,
			`CREATE INDEX IF NOT EXISTS idx_background_jobs_kind_status ON background_jobs(task_kind, status)`,
			`CREATE INDEX IF NOT EXISTS idx_links_project_status ON links(project_id, status)`,
			`CREATE INDEX IF NOT EXISTS idx_sources_project ON project_sources(project_id)`,
			`CREATE TABLE IF NOT EXISTS api_request_logs (
				id TEXT PRIMARY KEY,
				project_id TEXT NOT NULL,
				job_id TEXT,
				provider TEXT NOT NULL,
				model TEXT NOT NULL,
				request_body TEXT NOT NULL DEFAULT '',
				response_body TEXT NOT NULL DEFAULT '',
				input_tokens INTEGER,
				output_tokens INTEGER,
				cost REAL NOT NULL DEFAULT -1.0,
				latency_millis INTEGER NOT NULL DEFAULT 0,
				error INTEGER NOT NULL DEFAULT 0,
				created_at INTEGER NOT NULL
			)`,
		},
	},
}

// Migrate applies every migration not already recorded in
// schema_migrations, in version order, each inside its own transaction.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied := make(map[int]bool)
	rows, err := d.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("read schema_migrations: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return fmt.Errorf("scan schema_migrations: %w", err)
		}
		applied[v] = true
	}
	rows.Close()

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		if err := d.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
		if d.logger != nil {
			d.logger.Info().Int("version", m.version).Str("name", m.name).Msg("applied schema migration")
		}
	}
	return nil
}

func (d *DB) applyMigration(ctx context.Context, m migration) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range m.stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, unixepoch())`,
		m.version, m.name,
	); err != nil {
		return err
	}
	return tx.Commit()
}
