package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/taskboard/taskboard/internal/storage"
	"github.com/taskboard/taskboard/internal/types"
)

// MoveIssue moves an issue within or between columns inside a single
// transaction.
//
// The moved issue's row is locked FOR UPDATE first, serializing concurrent
// movers of the same issue; the version check runs under that lock and
// aborts with ErrConflict before any sibling is touched. Sibling rows
// shifted by the positional window updates are protected by the
// transaction's write-write conflict detection — concurrent movers of
// different issues into overlapping ranges of the same column serialize on
// those row writes. Requires read-committed isolation or stricter.
func (s *Store) MoveIssue(ctx context.Context, id, targetColumnID string, targetPosition int, expectedVersion int64, actor string) (*types.Issue, error) {
	if s.conn == nil {
		return nil, errNotConnected
	}
	if targetPosition < 0 {
		return nil, fmt.Errorf("%w: negative target position %d", storage.ErrValidation, targetPosition)
	}
	if targetColumnID == "" {
		return nil, fmt.Errorf("%w: target column is required", storage.ErrValidation)
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return nil, wrapTransactionError("move issue", err)
	}
	defer func() { _ = tx.Rollback(ctx) }() // No-op after successful commit

	// Step 1: re-read current placement under a row lock and verify the
	// version before anything else is written.
	var projectID, oldColumnID string
	var oldPosition int
	var version int64
	err = tx.QueryRow(ctx, `
		SELECT project_id, column_id, column_position, version
		FROM issues WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, id,
	).Scan(&projectID, &oldColumnID, &oldPosition, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("move issue: %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, wrapQueryError("move issue: lock row", err)
	}
	if version != expectedVersion {
		return nil, fmt.Errorf("move issue: %s at version %d: %w", id, version, storage.ErrConflict)
	}

	var targetProject string
	err = tx.QueryRow(ctx,
		`SELECT project_id FROM board_columns WHERE id = $1`, targetColumnID,
	).Scan(&targetProject)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("move issue: column %s: %w", targetColumnID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, wrapQueryError("move issue: target column", err)
	}
	if targetProject != projectID {
		return nil, fmt.Errorf("%w: column %s belongs to project %s", storage.ErrValidation, targetColumnID, targetProject)
	}

	var targetSize int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM issues WHERE column_id = $1 AND deleted_at IS NULL`,
		targetColumnID,
	).Scan(&targetSize)
	if err != nil {
		return nil, wrapQueryError("move issue: target size", err)
	}

	// Clamp out-of-range targets to append-at-end. For a same-column move
	// the issue itself is already part of the count, so the last valid
	// slot is size-1; cross-column it is the full size.
	sameColumn := oldColumnID == targetColumnID
	maxPosition := targetSize
	if sameColumn {
		maxPosition = targetSize - 1
	}
	if targetPosition > maxPosition {
		targetPosition = maxPosition
	}

	now := time.Now().UTC()
	switch {
	case sameColumn && targetPosition == oldPosition:
		// No-op move: empty reorder, version still bumps below so the
		// caller gets its optimistic-lock ACK.

	case sameColumn && targetPosition > oldPosition:
		// Moving forward: close the gap by pulling (old, target] back.
		_, err = tx.Exec(ctx, `
			UPDATE issues SET column_position = column_position - 1, updated_at = $1
			WHERE column_id = $2 AND deleted_at IS NULL
			  AND column_position > $3 AND column_position <= $4`,
			now, oldColumnID, oldPosition, targetPosition)
		if err != nil {
			return nil, wrapExecError("move issue: shift forward", err)
		}

	case sameColumn:
		// Moving backward: push [target, old) forward.
		_, err = tx.Exec(ctx, `
			UPDATE issues SET column_position = column_position + 1, updated_at = $1
			WHERE column_id = $2 AND deleted_at IS NULL
			  AND column_position >= $3 AND column_position < $4`,
			now, oldColumnID, targetPosition, oldPosition)
		if err != nil {
			return nil, wrapExecError("move issue: shift backward", err)
		}

	default:
		// Cross-column: close the gap in the source, open a slot in the
		// target.
		_, err = tx.Exec(ctx, `
			UPDATE issues SET column_position = column_position - 1, updated_at = $1
			WHERE column_id = $2 AND deleted_at IS NULL AND column_position > $3`,
			now, oldColumnID, oldPosition)
		if err != nil {
			return nil, wrapExecError("move issue: close source gap", err)
		}
		_, err = tx.Exec(ctx, `
			UPDATE issues SET column_position = column_position + 1, updated_at = $1
			WHERE column_id = $2 AND deleted_at IS NULL AND column_position >= $3`,
			now, targetColumnID, targetPosition)
		if err != nil {
			return nil, wrapExecError("move issue: open target slot", err)
		}
	}

	issue, err := scanIssue(tx.QueryRow(ctx, `
		UPDATE issues
		SET column_id = $1, column_position = $2, version = version + 1, updated_at = $3
		WHERE id = $4
		RETURNING `+issueColumns,
		targetColumnID, targetPosition, now, id))
	if err != nil {
		return nil, wrapQueryError("move issue: write placement", err)
	}

	if err := appendActivity(ctx, tx, &types.Activity{
		IssueID:      id,
		ProjectID:    projectID,
		Action:       types.ActionMoved,
		Actor:        actor,
		FromColumnID: oldColumnID,
		ToColumnID:   targetColumnID,
		CreatedAt:    now,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, wrapTransactionError("move issue", err)
	}
	return issue, nil
}

// CreateColumn appends a new column at the end of the project's column
// order. The position is computed and written in one statement so
// concurrent creators cannot double-assign a slot.
func (s *Store) CreateColumn(ctx context.Context, column *types.BoardColumn) error {
	if s.conn == nil {
		return errNotConnected
	}
	if column.ProjectID == "" || column.Name == "" {
		return fmt.Errorf("%w: project_id and name are required", storage.ErrValidation)
	}
	if column.ID == "" {
		column.ID = uuid.NewString()
	}
	column.CreatedAt = time.Now().UTC()

	err := s.conn.QueryRow(ctx, `
		INSERT INTO board_columns (id, project_id, name, position, created_at)
		SELECT $1, $2, $3, COALESCE(MAX(position) + 1, 0), $4
		FROM board_columns WHERE project_id = $2
		RETURNING position`,
		column.ID, column.ProjectID, column.Name, column.CreatedAt,
	).Scan(&column.Position)
	if err != nil {
		return wrapExecError("create column", err)
	}
	return nil
}

// ListColumns returns a project's columns ordered by position.
func (s *Store) ListColumns(ctx context.Context, projectID string) ([]*types.BoardColumn, error) {
	if s.conn == nil {
		return nil, errNotConnected
	}
	rows, err := s.conn.Query(ctx, `
		SELECT id, project_id, name, position, created_at
		FROM board_columns WHERE project_id = $1
		ORDER BY position ASC`, projectID)
	if err != nil {
		return nil, wrapQueryError("list columns", err)
	}
	defer rows.Close()

	var columns []*types.BoardColumn
	for rows.Next() {
		var c types.BoardColumn
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.Name, &c.Position, &c.CreatedAt); err != nil {
			return nil, wrapScanError("list columns", err)
		}
		columns = append(columns, &c)
	}
	return columns, wrapQueryError("list columns", rows.Err())
}
