// Package types defines core data structures for the taskboard issue tracker.
package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status represents the workflow state of an issue.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusClosed     Status = "closed"
)

// ValidStatuses lists all statuses accepted on create and update.
var ValidStatuses = []Status{StatusOpen, StatusInProgress, StatusBlocked, StatusClosed}

// Action identifies an activity-log entry kind. Field updates are not
// logged; only lifecycle and board transitions are.
type Action string

const (
	ActionCreated Action = "created"
	ActionMoved   Action = "moved"
	ActionDeleted Action = "deleted"
)

// Issue is a single tracked issue. Issues are identified externally by the
// (ProjectID, IssueNumber) pair and internally by the surrogate ID.
//
// Version is the optimistic-lock counter: it starts at 1 and every
// successful mutation increments it by exactly 1. ColumnPosition is
// zero-based and dense within a column: the non-deleted issues of a column
// always occupy positions {0..n-1} with no gaps or duplicates.
type Issue struct {
	ID             string     `json:"id"`
	ProjectID      string     `json:"project_id"`
	IssueNumber    int64      `json:"issue_number"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	Status         Status     `json:"status"`
	Assignee       string     `json:"assignee,omitempty"`
	ColumnID       string     `json:"column_id"`
	ColumnPosition int        `json:"column_position"`
	Version        int64      `json:"version"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
}

// Validate checks the fields required to create an issue.
func (i *Issue) Validate() error {
	if strings.TrimSpace(i.ProjectID) == "" {
		return errors.New("project_id is required")
	}
	if strings.TrimSpace(i.Title) == "" {
		return errors.New("title is required")
	}
	if strings.TrimSpace(i.ColumnID) == "" {
		return errors.New("column_id is required")
	}
	if i.Status != "" && !IsValidStatus(i.Status) {
		return fmt.Errorf("invalid status: %s", i.Status)
	}
	return nil
}

// IsValidStatus reports whether s is an accepted workflow status.
func IsValidStatus(s Status) bool {
	for _, v := range ValidStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// BoardColumn is an ordered container for issues on a project's kanban
// board. Position is zero-based and unique within the project.
type BoardColumn struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Name      string    `json:"name"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
}

// Activity is one append-only activity-log row. FromColumnID and ToColumnID
// are populated for moves only.
type Activity struct {
	ID           int64     `json:"id"`
	IssueID      string    `json:"issue_id"`
	ProjectID    string    `json:"project_id"`
	Action       Action    `json:"action"`
	Actor        string    `json:"actor,omitempty"`
	FromColumnID string    `json:"from_column_id,omitempty"`
	ToColumnID   string    `json:"to_column_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// ProjectStats is the derived read view cached by the cache layer.
type ProjectStats struct {
	ProjectID   string `json:"project_id"`
	TotalIssues int    `json:"total_issues"`
	OpenIssues  int    `json:"open_issues"`
	ClosedCount int    `json:"closed_issues"`
}
