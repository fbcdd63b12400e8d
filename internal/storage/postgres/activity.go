package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/taskboard/taskboard/internal/types"
)

// appendActivity writes one activity-log row inside the caller's
// transaction so the log commits or rolls back with the mutation it
// records.
func appendActivity(ctx context.Context, tx pgx.Tx, a *types.Activity) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO activities (issue_id, project_id, action, actor, from_column_id, to_column_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.IssueID, a.ProjectID, a.Action, a.Actor, a.FromColumnID, a.ToColumnID, a.CreatedAt)
	return wrapExecError("append activity", err)
}

// ListActivity returns an issue's activity log, oldest first.
func (s *Store) ListActivity(ctx context.Context, issueID string) ([]*types.Activity, error) {
	if s.conn == nil {
		return nil, errNotConnected
	}
	rows, err := s.conn.Query(ctx, `
		SELECT id, issue_id, project_id, action, actor, from_column_id, to_column_id, created_at
		FROM activities WHERE issue_id = $1
		ORDER BY id ASC`, issueID)
	if err != nil {
		return nil, wrapQueryError("list activity", err)
	}
	defer rows.Close()

	var entries []*types.Activity
	for rows.Next() {
		var a types.Activity
		if err := rows.Scan(&a.ID, &a.IssueID, &a.ProjectID, &a.Action, &a.Actor, &a.FromColumnID, &a.ToColumnID, &a.CreatedAt); err != nil {
			return nil, wrapScanError("list activity", err)
		}
		entries = append(entries, &a)
	}
	return entries, wrapQueryError("list activity", rows.Err())
}
