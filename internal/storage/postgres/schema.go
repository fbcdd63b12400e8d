package postgres

// createStatements is the ordered, idempotent schema bootstrap.
//
// Note the deliberate absence of a UNIQUE constraint on
// (column_id, column_position): the reorder engine shifts sibling windows
// inside a transaction, which would transiently violate a non-deferred
// constraint. Density over non-deleted rows is an invariant maintained by
// the engine, not by the schema.
var createStatements = []string{
	`CREATE TABLE IF NOT EXISTS project_counters (
		project_id        TEXT PRIMARY KEY,
		last_issue_number BIGINT NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS board_columns (
		id         TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		name       TEXT NOT NULL,
		position   INTEGER NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_board_columns_project
		ON board_columns (project_id, position)`,

	`CREATE TABLE IF NOT EXISTS issues (
		id              TEXT PRIMARY KEY,
		project_id      TEXT NOT NULL,
		issue_number    BIGINT NOT NULL,
		title           TEXT NOT NULL,
		description     TEXT NOT NULL DEFAULT '',
		status          TEXT NOT NULL DEFAULT 'open',
		assignee        TEXT NOT NULL DEFAULT '',
		column_id       TEXT NOT NULL REFERENCES board_columns(id),
		column_position INTEGER NOT NULL,
		version         BIGINT NOT NULL DEFAULT 1,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		deleted_at      TIMESTAMPTZ,
		UNIQUE (project_id, issue_number)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_issues_column
		ON issues (column_id, column_position) WHERE deleted_at IS NULL`,

	`CREATE INDEX IF NOT EXISTS idx_issues_project
		ON issues (project_id) WHERE deleted_at IS NULL`,

	`CREATE TABLE IF NOT EXISTS activities (
		id             BIGSERIAL PRIMARY KEY,
		issue_id       TEXT NOT NULL,
		project_id     TEXT NOT NULL,
		action         TEXT NOT NULL,
		actor          TEXT NOT NULL DEFAULT '',
		from_column_id TEXT NOT NULL DEFAULT '',
		to_column_id   TEXT NOT NULL DEFAULT '',
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_activities_issue
		ON activities (issue_id, created_at)`,
}
