// Package memory implements the storage interface using in-memory data
// structures. This backs no-db mode and the concurrency stress tests; a
// single mutex stands in for the database transaction, so every operation
// is atomic exactly as its SQL counterpart is.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskboard/taskboard/internal/storage"
	"github.com/taskboard/taskboard/internal/types"
)

// MemoryStorage implements the Storage interface using in-memory maps.
// All position truth lives inside the mutex, mirroring the rule that no
// process-local cache of positions may exist outside the store.
type MemoryStorage struct {
	mu sync.Mutex

	issues     map[string]*types.Issue       // ID -> Issue
	columns    map[string]*types.BoardColumn // ID -> Column
	counters   map[string]int64              // ProjectID -> last issue number
	activities map[string][]*types.Activity  // IssueID -> log
	nextLogID  int64
}

var _ storage.Storage = (*MemoryStorage)(nil)

// New creates a new in-memory storage backend.
func New() *MemoryStorage {
	return &MemoryStorage{
		issues:     make(map[string]*types.Issue),
		columns:    make(map[string]*types.BoardColumn),
		counters:   make(map[string]int64),
		activities: make(map[string][]*types.Activity),
	}
}

// CreateIssue allocates the next project number and appends the issue at
// the end of its column.
func (m *MemoryStorage) CreateIssue(ctx context.Context, issue *types.Issue, actor string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := issue.Validate(); err != nil {
		return fmt.Errorf("%w: %w", storage.ErrValidation, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	column, ok := m.columns[issue.ColumnID]
	if !ok {
		return fmt.Errorf("create issue: column %s: %w", issue.ColumnID, storage.ErrNotFound)
	}
	if column.ProjectID != issue.ProjectID {
		return fmt.Errorf("%w: column %s belongs to project %s", storage.ErrValidation, issue.ColumnID, column.ProjectID)
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

	m.counters[issue.ProjectID]++
	issue.IssueNumber = m.counters[issue.ProjectID]
	issue.ColumnPosition = m.columnSizeLocked(issue.ColumnID)

	stored := *issue
	m.issues[issue.ID] = &stored
	m.appendActivityLocked(&types.Activity{
		IssueID:    issue.ID,
		ProjectID:  issue.ProjectID,
		Action:     types.ActionCreated,
		Actor:      actor,
		ToColumnID: issue.ColumnID,
		CreatedAt:  now,
	})
	return nil
}

// UpdateIssue applies patch under the optimistic-lock contract.
func (m *MemoryStorage) UpdateIssue(ctx context.Context, id string, expectedVersion int64, patch map[string]any, actor string) (*types.Issue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
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

	m.mu.Lock()
	defer m.mu.Unlock()

	issue, ok := m.issues[id]
	if !ok || issue.DeletedAt != nil {
		return nil, fmt.Errorf("update issue: %s: %w", id, storage.ErrNotFound)
	}
	if issue.Version != expectedVersion {
		return nil, fmt.Errorf("update issue: %s at version %d: %w", id, issue.Version, storage.ErrConflict)
	}

	for key, value := range patch {
		s, _ := value.(string)
		switch key {
		case "title":
			issue.Title = s
		case "description":
			issue.Description = s
		case "status":
			issue.Status = types.Status(s)
		case "assignee":
			issue.Assignee = s
		}
	}
	issue.Version++
	issue.UpdatedAt = time.Now().UTC()

	updated := *issue
	return &updated, nil
}

// MoveIssue moves an issue within or between columns, keeping every
// touched column dense. Same shift arithmetic as the SQL engine.
func (m *MemoryStorage) MoveIssue(ctx context.Context, id, targetColumnID string, targetPosition int, expectedVersion int64, actor string) (*types.Issue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if targetPosition < 0 {
		return nil, fmt.Errorf("%w: negative target position %d", storage.ErrValidation, targetPosition)
	}
	if targetColumnID == "" {
		return nil, fmt.Errorf("%w: target column is required", storage.ErrValidation)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	issue, ok := m.issues[id]
	if !ok || issue.DeletedAt != nil {
		return nil, fmt.Errorf("move issue: %s: %w", id, storage.ErrNotFound)
	}
	if issue.Version != expectedVersion {
		return nil, fmt.Errorf("move issue: %s at version %d: %w", id, issue.Version, storage.ErrConflict)
	}

	target, ok := m.columns[targetColumnID]
	if !ok {
		return nil, fmt.Errorf("move issue: column %s: %w", targetColumnID, storage.ErrNotFound)
	}
	if target.ProjectID != issue.ProjectID {
		return nil, fmt.Errorf("%w: column %s belongs to project %s", storage.ErrValidation, targetColumnID, target.ProjectID)
	}

	oldColumnID := issue.ColumnID
	oldPosition := issue.ColumnPosition
	sameColumn := oldColumnID == targetColumnID

	maxPosition := m.columnSizeLocked(targetColumnID)
	if sameColumn {
		maxPosition--
	}
	if targetPosition > maxPosition {
		targetPosition = maxPosition
	}

	now := time.Now().UTC()
	switch {
	case sameColumn && targetPosition == oldPosition:
		// Empty reorder; version still bumps below.

	case sameColumn && targetPosition > oldPosition:
		for _, sibling := range m.issues {
			if sibling.ColumnID == oldColumnID && sibling.DeletedAt == nil &&
				sibling.ColumnPosition > oldPosition && sibling.ColumnPosition <= targetPosition {
				sibling.ColumnPosition--
				sibling.UpdatedAt = now
			}
		}

	case sameColumn:
		for _, sibling := range m.issues {
			if sibling.ColumnID == oldColumnID && sibling.DeletedAt == nil &&
				sibling.ColumnPosition >= targetPosition && sibling.ColumnPosition < oldPosition {
				sibling.ColumnPosition++
				sibling.UpdatedAt = now
			}
		}

	default:
		for _, sibling := range m.issues {
			if sibling.DeletedAt != nil {
				continue
			}
			if sibling.ColumnID == oldColumnID && sibling.ColumnPosition > oldPosition {
				sibling.ColumnPosition--
				sibling.UpdatedAt = now
			} else if sibling.ColumnID == targetColumnID && sibling.ColumnPosition >= targetPosition {
				sibling.ColumnPosition++
				sibling.UpdatedAt = now
			}
		}
	}

	issue.ColumnID = targetColumnID
	issue.ColumnPosition = targetPosition
	issue.Version++
	issue.UpdatedAt = now

	m.appendActivityLocked(&types.Activity{
		IssueID:      id,
		ProjectID:    issue.ProjectID,
		Action:       types.ActionMoved,
		Actor:        actor,
		FromColumnID: oldColumnID,
		ToColumnID:   targetColumnID,
		CreatedAt:    now,
	})

	moved := *issue
	return &moved, nil
}

// DeleteIssue tombstones an issue and closes its column's gap.
func (m *MemoryStorage) DeleteIssue(ctx context.Context, id string, expectedVersion int64, actor string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	issue, ok := m.issues[id]
	if !ok || issue.DeletedAt != nil {
		return fmt.Errorf("delete issue: %s: %w", id, storage.ErrNotFound)
	}
	if issue.Version != expectedVersion {
		return fmt.Errorf("delete issue: %s at version %d: %w", id, issue.Version, storage.ErrConflict)
	}

	now := time.Now().UTC()
	for _, sibling := range m.issues {
		if sibling.ColumnID == issue.ColumnID && sibling.DeletedAt == nil &&
			sibling.ColumnPosition > issue.ColumnPosition {
			sibling.ColumnPosition--
			sibling.UpdatedAt = now
		}
	}
	issue.DeletedAt = &now
	issue.UpdatedAt = now
	issue.Version++

	m.appendActivityLocked(&types.Activity{
		IssueID:      id,
		ProjectID:    issue.ProjectID,
		Action:       types.ActionDeleted,
		Actor:        actor,
		FromColumnID: issue.ColumnID,
		CreatedAt:    now,
	})
	return nil
}

// GetIssue returns a copy of a non-deleted issue.
func (m *MemoryStorage) GetIssue(ctx context.Context, id string) (*types.Issue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	issue, ok := m.issues[id]
	if !ok || issue.DeletedAt != nil {
		return nil, fmt.Errorf("get issue %s: %w", id, storage.ErrNotFound)
	}
	found := *issue
	return &found, nil
}

// ListColumnIssues returns a column's non-deleted issues ordered by
// position.
func (m *MemoryStorage) ListColumnIssues(ctx context.Context, columnID string) ([]*types.Issue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var issues []*types.Issue
	for _, issue := range m.issues {
		if issue.ColumnID == columnID && issue.DeletedAt == nil {
			copied := *issue
			issues = append(issues, &copied)
		}
	}
	sort.Slice(issues, func(i, j int) bool {
		return issues[i].ColumnPosition < issues[j].ColumnPosition
	})
	return issues, nil
}

// CreateColumn appends a column at the end of the project's order.
func (m *MemoryStorage) CreateColumn(ctx context.Context, column *types.BoardColumn) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if column.ProjectID == "" || column.Name == "" {
		return fmt.Errorf("%w: project_id and name are required", storage.ErrValidation)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if column.ID == "" {
		column.ID = uuid.NewString()
	}
	column.CreatedAt = time.Now().UTC()
	column.Position = 0
	for _, existing := range m.columns {
		if existing.ProjectID == column.ProjectID && existing.Position >= column.Position {
			column.Position = existing.Position + 1
		}
	}

	stored := *column
	m.columns[column.ID] = &stored
	return nil
}

// ListColumns returns a project's columns ordered by position.
func (m *MemoryStorage) ListColumns(ctx context.Context, projectID string) ([]*types.BoardColumn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var columns []*types.BoardColumn
	for _, column := range m.columns {
		if column.ProjectID == projectID {
			copied := *column
			columns = append(columns, &copied)
		}
	}
	sort.Slice(columns, func(i, j int) bool {
		return columns[i].Position < columns[j].Position
	})
	return columns, nil
}

// ListActivity returns an issue's activity log, oldest first.
func (m *MemoryStorage) ListActivity(ctx context.Context, issueID string) ([]*types.Activity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entries := make([]*types.Activity, 0, len(m.activities[issueID]))
	for _, a := range m.activities[issueID] {
		copied := *a
		entries = append(entries, &copied)
	}
	return entries, nil
}

// ProjectStats computes issue counts for a project.
func (m *MemoryStorage) ProjectStats(ctx context.Context, projectID string) (*types.ProjectStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stats := &types.ProjectStats{ProjectID: projectID}
	for _, issue := range m.issues {
		if issue.ProjectID != projectID || issue.DeletedAt != nil {
			continue
		}
		stats.TotalIssues++
		if issue.Status == types.StatusClosed {
			stats.ClosedCount++
		} else {
			stats.OpenIssues++
		}
	}
	return stats, nil
}

// Close is a no-op for the in-memory backend.
func (m *MemoryStorage) Close(_ context.Context) error {
	return nil
}

func (m *MemoryStorage) columnSizeLocked(columnID string) int {
	n := 0
	for _, issue := range m.issues {
		if issue.ColumnID == columnID && issue.DeletedAt == nil {
			n++
		}
	}
	return n
}

func (m *MemoryStorage) appendActivityLocked(a *types.Activity) {
	m.nextLogID++
	a.ID = m.nextLogID
	m.activities[a.IssueID] = append(m.activities[a.IssueID], a)
}
