package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/taskboard/taskboard/internal/storage"
	"github.com/taskboard/taskboard/internal/types"
)

const issueColumns = `id, project_id, issue_number, title, description, status, assignee, column_id, column_position, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIssue(row rowScanner) (*types.Issue, error) {
	var issue types.Issue
	err := row.Scan(
		&issue.ID, &issue.ProjectID, &issue.IssueNumber,
		&issue.Title, &issue.Description, &issue.Status, &issue.Assignee,
		&issue.ColumnID, &issue.ColumnPosition, &issue.Version,
		&issue.CreatedAt, &issue.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &issue, nil
}

// CreateIssue inserts a new issue, allocating its per-project number and
// appending it at the end of the target column, all in one transaction.
//
// The target column row is locked FOR UPDATE so that concurrent creators
// appending to the same column serialize and cannot compute the same end
// position.
func (s *Store) CreateIssue(ctx context.Context, issue *types.Issue, actor string) error {
	if s.conn == nil {
		return errNotConnected
	}
	if err := issue.Validate(); err != nil {
		return fmt.Errorf("%w: %w", storage.ErrValidation, err)
	}

	if issue.ID == "" {
		issue.ID = uuid.NewString()
	}
	if issue.Status == "" {
		issue.Status = types.StatusOpen
	}
	now := time.Now().UTC()
	issue.CreatedAt = now
	issue.UpdatedAt = now
	issue.Version = 1

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return wrapTransactionError("create issue", err)
	}
	defer func() { _ = tx.Rollback(ctx) }() // No-op after successful commit

	// Lock the column row to serialize appends into this column.
	var columnProject string
	err = tx.QueryRow(ctx,
		`SELECT project_id FROM board_columns WHERE id = $1 FOR UPDATE`,
		issue.ColumnID,
	).Scan(&columnProject)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("create issue: column %s: %w", issue.ColumnID, storage.ErrNotFound)
	}
	if err != nil {
		return wrapQueryError("create issue: lock column", err)
	}
	if columnProject != issue.ProjectID {
		return fmt.Errorf("%w: column %s belongs to project %s", storage.ErrValidation, issue.ColumnID, columnProject)
	}

	number, err := allocateIssueNumber(ctx, tx, issue.ProjectID)
	if err != nil {
		return err
	}
	issue.IssueNumber = number

	var position int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM issues WHERE column_id = $1 AND deleted_at IS NULL`,
		issue.ColumnID,
	).Scan(&position)
	if err != nil {
		return wrapQueryError("create issue: column size", err)
	}
	issue.ColumnPosition = position

	_, err = tx.Exec(ctx, `
		INSERT INTO issues (id, project_id, issue_number, title, description, status, assignee, column_id, column_position, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		issue.ID, issue.ProjectID, issue.IssueNumber,
		issue.Title, issue.Description, issue.Status, issue.Assignee,
		issue.ColumnID, issue.ColumnPosition, issue.Version,
		issue.CreatedAt, issue.UpdatedAt,
	)
	if err != nil {
		return wrapExecError("create issue: insert", err)
	}

	if err := appendActivity(ctx, tx, &types.Activity{
		IssueID:    issue.ID,
		ProjectID:  issue.ProjectID,
		Action:     types.ActionCreated,
		Actor:      actor,
		ToColumnID: issue.ColumnID,
		CreatedAt:  now,
	}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return wrapTransactionError("create issue", err)
	}
	return nil
}

// UpdateIssue applies patch under the optimistic-lock contract: one
// conditional UPDATE guarded by the version counter, no row lock, no
// internal retry. Zero affected rows is disambiguated by a follow-up
// existence probe into ErrNotFound vs ErrConflict.
func (s *Store) UpdateIssue(ctx context.Context, id string, expectedVersion int64, patch map[string]any, actor string) (*types.Issue, error) {
	if s.conn == nil {
		return nil, errNotConnected
	}
	if err := storage.ValidatePatch(patch); err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrValidation, err)
	}
	if v, ok := patch["status"]; ok {
		status, isString := v.(string)
		if !isString || !types.IsValidStatus(types.Status(status)) {
			return nil, fmt.Errorf("%w: invalid status: %v", storage.ErrValidation, v)
		}
	}

	now := time.Now().UTC()
	setClauses := []string{"version = version + 1", "updated_at = $1"}
	args := []any{now}
	for _, key := range []string{"title", "description", "status", "assignee"} {
		value, ok := patch[key]
		if !ok {
			continue
		}
		args = append(args, value)
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", key, len(args)))
	}
	args = append(args, id, expectedVersion)

	//nolint:gosec // G201: setClauses contains only allow-listed column names
	q := fmt.Sprintf(`
		UPDATE issues SET %s
		WHERE id = $%d AND version = $%d AND deleted_at IS NULL
		RETURNING `+issueColumns,
		strings.Join(setClauses, ", "), len(args)-1, len(args))

	issue, err := scanIssue(s.conn.QueryRow(ctx, q, args...))
	if err == nil {
		return issue, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, wrapQueryError("update issue", err)
	}

	// Zero rows: the statement cannot tell a missing issue from a stale
	// version. Resolve with an existence probe.
	return nil, s.classifyZeroRows(ctx, "update issue", id)
}

// classifyZeroRows resolves the ambiguity of a conditional update that
// affected no rows: a missing (or tombstoned) issue is ErrNotFound, a
// present issue whose version moved on is ErrConflict.
func (s *Store) classifyZeroRows(ctx context.Context, op, id string) error {
	var version int64
	err := s.conn.QueryRow(ctx,
		`SELECT version FROM issues WHERE id = $1 AND deleted_at IS NULL`, id,
	).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: issue %s: %w", op, id, storage.ErrNotFound)
	}
	if err != nil {
		return wrapQueryError(op, err)
	}
	return fmt.Errorf("%s: issue %s at version %d: %w", op, id, version, storage.ErrConflict)
}

// DeleteIssue tombstones an issue and closes the position gap it leaves in
// its column, in one transaction under the optimistic-lock contract.
func (s *Store) DeleteIssue(ctx context.Context, id string, expectedVersion int64, actor string) error {
	if s.conn == nil {
		return errNotConnected
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return wrapTransactionError("delete issue", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var projectID, columnID string
	var position int
	var version int64
	err = tx.QueryRow(ctx, `
		SELECT project_id, column_id, column_position, version
		FROM issues WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, id,
	).Scan(&projectID, &columnID, &position, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("delete issue: %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return wrapQueryError("delete issue: lock row", err)
	}
	if version != expectedVersion {
		return fmt.Errorf("delete issue: %s at version %d: %w", id, version, storage.ErrConflict)
	}

	now := time.Now().UTC()
	_, err = tx.Exec(ctx, `
		UPDATE issues SET deleted_at = $1, updated_at = $1, version = version + 1
		WHERE id = $2`, now, id)
	if err != nil {
		return wrapExecError("delete issue: tombstone", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE issues SET column_position = column_position - 1, updated_at = $1
		WHERE column_id = $2 AND deleted_at IS NULL AND column_position > $3`,
		now, columnID, position)
	if err != nil {
		return wrapExecError("delete issue: close gap", err)
	}

	if err := appendActivity(ctx, tx, &types.Activity{
		IssueID:      id,
		ProjectID:    projectID,
		Action:       types.ActionDeleted,
		Actor:        actor,
		FromColumnID: columnID,
		CreatedAt:    now,
	}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return wrapTransactionError("delete issue", err)
	}
	return nil
}

// GetIssue returns a single non-deleted issue by surrogate id.
func (s *Store) GetIssue(ctx context.Context, id string) (*types.Issue, error) {
	if s.conn == nil {
		return nil, errNotConnected
	}
	issue, err := scanIssue(s.conn.QueryRow(ctx,
		`SELECT `+issueColumns+` FROM issues WHERE id = $1 AND deleted_at IS NULL`, id))
	if err != nil {
		return nil, wrapDBError("get issue "+id, err)
	}
	return issue, nil
}

// ListColumnIssues returns a column's non-deleted issues ordered by
// position.
func (s *Store) ListColumnIssues(ctx context.Context, columnID string) ([]*types.Issue, error) {
	if s.conn == nil {
		return nil, errNotConnected
	}
	rows, err := s.conn.Query(ctx, `
		SELECT `+issueColumns+` FROM issues
		WHERE column_id = $1 AND deleted_at IS NULL
		ORDER BY column_position ASC`, columnID)
	if err != nil {
		return nil, wrapQueryError("list column issues", err)
	}
	defer rows.Close()

	var issues []*types.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, wrapScanError("list column issues", err)
		}
		issues = append(issues, issue)
	}
	return issues, wrapQueryError("list column issues", rows.Err())
}

// ProjectStats computes issue counts for a project over non-deleted rows.
func (s *Store) ProjectStats(ctx context.Context, projectID string) (*types.ProjectStats, error) {
	if s.conn == nil {
		return nil, errNotConnected
	}
	stats := &types.ProjectStats{ProjectID: projectID}
	err := s.conn.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status <> 'closed'),
		       COUNT(*) FILTER (WHERE status = 'closed')
		FROM issues WHERE project_id = $1 AND deleted_at IS NULL`, projectID,
	).Scan(&stats.TotalIssues, &stats.OpenIssues, &stats.ClosedCount)
	if err != nil {
		return nil, wrapQueryError("project stats", err)
	}
	return stats, nil
}
