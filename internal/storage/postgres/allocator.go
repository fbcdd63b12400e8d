package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// allocateIssueNumber returns the next issue number for a project.
//
// The increment-and-fetch is a single atomic upsert executed inside the
// caller's transaction: the first allocation for a project creates the
// counter row at 1, every later allocation bumps it by 1, and concurrent
// allocators serialize on the counter row's lock. If the enclosing
// transaction rolls back, the increment rolls back with it — no number is
// burned on failure. Gaps from concurrent rollback races are tolerated;
// uniqueness matters, density does not.
func allocateIssueNumber(ctx context.Context, tx pgx.Tx, projectID string) (int64, error) {
	const q = `
		INSERT INTO project_counters (project_id, last_issue_number)
		VALUES ($1, 1)
		ON CONFLICT (project_id) DO UPDATE
			SET last_issue_number = project_counters.last_issue_number + 1
		RETURNING last_issue_number`

	var n int64
	if err := tx.QueryRow(ctx, q, projectID).Scan(&n); err != nil {
		return 0, wrapQueryError("allocate issue number", err)
	}
	return n, nil
}
