// Package storage defines the interface for taskboard storage backends.
//
// All mutating operations execute inside a single transaction in the
// backend. Retry policy on conflict belongs to the caller; no backend
// retries internally.
package storage

import (
	"context"

	"github.com/taskboard/taskboard/internal/types"
)

// Storage is the backend-neutral contract for the concurrency core:
// per-project issue numbering, optimistic-lock mutation, transactional
// board reordering, and the reads that callers and the cache layer need.
type Storage interface {
	// CreateIssue inserts a new issue, allocating the next per-project
	// issue number atomically inside the same transaction and appending
	// the issue at the end of its target column. On return the issue's
	// ID, IssueNumber, ColumnPosition, Version and timestamps are set.
	CreateIssue(ctx context.Context, issue *types.Issue, actor string) error

	// UpdateIssue applies patch to the issue identified by id if and only
	// if its version still equals expectedVersion. The update is a single
	// conditional statement; zero affected rows resolves to ErrNotFound
	// (issue absent or tombstoned) or ErrConflict (version moved on).
	// Patch keys are validated against an allow-list before any SQL runs.
	UpdateIssue(ctx context.Context, id string, expectedVersion int64, patch map[string]any, actor string) (*types.Issue, error)

	// MoveIssue moves an issue within or between columns, keeping every
	// touched column's position sequence dense. The moved issue's row is
	// locked for the duration of the transaction; a version mismatch
	// aborts with ErrConflict before any sibling is shifted. A target
	// position beyond the end of the destination clamps to append. Moving
	// an issue onto its current slot is a successful no-op that still
	// bumps the version.
	MoveIssue(ctx context.Context, id string, targetColumnID string, targetPosition int, expectedVersion int64, actor string) (*types.Issue, error)

	// DeleteIssue soft-deletes an issue under the optimistic-lock
	// contract and closes the position gap it leaves in its column.
	DeleteIssue(ctx context.Context, id string, expectedVersion int64, actor string) error

	// GetIssue returns a single non-deleted issue by surrogate id.
	GetIssue(ctx context.Context, id string) (*types.Issue, error)

	// ListColumnIssues returns the non-deleted issues of a column ordered
	// by position.
	ListColumnIssues(ctx context.Context, columnID string) ([]*types.Issue, error)

	// CreateColumn appends a new column at the end of the project's
	// column order.
	CreateColumn(ctx context.Context, column *types.BoardColumn) error

	// ListColumns returns a project's columns ordered by position.
	ListColumns(ctx context.Context, projectID string) ([]*types.BoardColumn, error)

	// ListActivity returns an issue's activity log, oldest first.
	ListActivity(ctx context.Context, issueID string) ([]*types.Activity, error)

	// ProjectStats computes issue counts for a project, skipping
	// tombstoned issues.
	ProjectStats(ctx context.Context, projectID string) (*types.ProjectStats, error)

	// Close releases backend resources.
	Close(ctx context.Context) error
}
