package postgres_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskboard/taskboard/internal/storage"
	"github.com/taskboard/taskboard/internal/types"
)

func TestCreateIssue(t *testing.T) {
	t.Parallel()

	t.Run("allocates number and appends at end of column", func(t *testing.T) {
		t.Parallel()

		store, mock := newStoreWithMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT project_id FROM board_columns").
			WithArgs("col-a").
			WillReturnRows(pgxmock.NewRows([]string{"project_id"}).AddRow("proj-1"))
		mock.ExpectQuery("INSERT INTO project_counters").
			WithArgs("proj-1").
			WillReturnRows(pgxmock.NewRows([]string{"last_issue_number"}).AddRow(int64(7)))
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM issues`).
			WithArgs("col-a").
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))
		mock.ExpectExec("INSERT INTO issues").
			WithArgs("iss-1", "proj-1", int64(7), "fix login", "", types.StatusOpen, "",
				"col-a", 2, int64(1), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec("INSERT INTO activities").
			WithArgs("iss-1", "proj-1", types.ActionCreated, "alice", "", "col-a", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		issue := &types.Issue{
			ID:        "iss-1",
			ProjectID: "proj-1",
			Title:     "fix login",
			ColumnID:  "col-a",
		}
		require.NoError(t, store.CreateIssue(context.Background(), issue, "alice"))
		assert.Equal(t, int64(7), issue.IssueNumber)
		assert.Equal(t, 2, issue.ColumnPosition)
		assert.Equal(t, int64(1), issue.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown column rolls back with not found", func(t *testing.T) {
		t.Parallel()

		store, mock := newStoreWithMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT project_id FROM board_columns").
			WithArgs("nope").
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectRollback()

		issue := &types.Issue{ID: "iss-1", ProjectID: "proj-1", Title: "x", ColumnID: "nope"}
		err := store.CreateIssue(context.Background(), issue, "alice")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("cross-project column rejected before allocation", func(t *testing.T) {
		t.Parallel()

		store, mock := newStoreWithMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT project_id FROM board_columns").
			WithArgs("col-a").
			WillReturnRows(pgxmock.NewRows([]string{"project_id"}).AddRow("other-project"))
		mock.ExpectRollback()

		issue := &types.Issue{ID: "iss-1", ProjectID: "proj-1", Title: "x", ColumnID: "col-a"}
		err := store.CreateIssue(context.Background(), issue, "alice")
		assert.ErrorIs(t, err, storage.ErrValidation)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing title fails validation without touching the db", func(t *testing.T) {
		t.Parallel()

		store, mock := newStoreWithMock(t)
		issue := &types.Issue{ProjectID: "proj-1", ColumnID: "col-a"}
		err := store.CreateIssue(context.Background(), issue, "alice")
		assert.ErrorIs(t, err, storage.ErrValidation)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUpdateIssue(t *testing.T) {
	t.Parallel()

	t.Run("matching version applies patch and bumps version", func(t *testing.T) {
		t.Parallel()

		store, mock := newStoreWithMock(t)
		mock.ExpectQuery(`UPDATE issues SET version = version \+ 1, updated_at = \$1, title = \$2`).
			WithArgs(pgxmock.AnyArg(), "new title", "iss-1", int64(3)).
			WillReturnRows(issueRow("iss-1", "proj-1", 7, "new title", "col-a", 0, 4))

		issue, err := store.UpdateIssue(context.Background(), "iss-1", 3,
			map[string]any{"title": "new title"}, "alice")
		require.NoError(t, err)
		assert.Equal(t, int64(4), issue.Version)
		assert.Equal(t, "new title", issue.Title)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stale version resolves to conflict", func(t *testing.T) {
		t.Parallel()

		store, mock := newStoreWithMock(t)
		mock.ExpectQuery(`UPDATE issues SET version = version \+ 1`).
			WithArgs(pgxmock.AnyArg(), "new title", "iss-1", int64(3)).
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectQuery("SELECT version FROM issues").
			WithArgs("iss-1").
			WillReturnRows(pgxmock.NewRows([]string{"version"}).AddRow(int64(5)))

		_, err := store.UpdateIssue(context.Background(), "iss-1", 3,
			map[string]any{"title": "new title"}, "alice")
		assert.ErrorIs(t, err, storage.ErrConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing issue resolves to not found", func(t *testing.T) {
		t.Parallel()

		store, mock := newStoreWithMock(t)
		mock.ExpectQuery(`UPDATE issues SET version = version \+ 1`).
			WithArgs(pgxmock.AnyArg(), "new title", "ghost", int64(1)).
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectQuery("SELECT version FROM issues").
			WithArgs("ghost").
			WillReturnError(pgx.ErrNoRows)

		_, err := store.UpdateIssue(context.Background(), "ghost", 1,
			map[string]any{"title": "new title"}, "alice")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("structural field rejected", func(t *testing.T) {
		t.Parallel()

		store, _ := newStoreWithMock(t)
		_, err := store.UpdateIssue(context.Background(), "iss-1", 1,
			map[string]any{"column_position": 3}, "alice")
		assert.ErrorIs(t, err, storage.ErrValidation)
	})

	t.Run("empty patch rejected", func(t *testing.T) {
		t.Parallel()

		store, _ := newStoreWithMock(t)
		_, err := store.UpdateIssue(context.Background(), "iss-1", 1, map[string]any{}, "alice")
		assert.ErrorIs(t, err, storage.ErrValidation)
	})

	t.Run("invalid status value rejected", func(t *testing.T) {
		t.Parallel()

		store, _ := newStoreWithMock(t)
		_, err := store.UpdateIssue(context.Background(), "iss-1", 1,
			map[string]any{"status": "cancelled"}, "alice")
		assert.ErrorIs(t, err, storage.ErrValidation)
	})
}

func TestDeleteIssue(t *testing.T) {
	t.Parallel()

	t.Run("tombstones and closes the position gap", func(t *testing.T) {
		t.Parallel()

		store, mock := newStoreWithMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT project_id, column_id, column_position, version").
			WithArgs("iss-1").
			WillReturnRows(pgxmock.NewRows([]string{"project_id", "column_id", "column_position", "version"}).
				AddRow("proj-1", "col-a", 1, int64(2)))
		mock.ExpectExec(`UPDATE issues SET deleted_at = \$1`).
			WithArgs(pgxmock.AnyArg(), "iss-1").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec("column_position = column_position - 1").
			WithArgs(pgxmock.AnyArg(), "col-a", 1).
			WillReturnResult(pgxmock.NewResult("UPDATE", 3))
		mock.ExpectExec("INSERT INTO activities").
			WithArgs("iss-1", "proj-1", types.ActionDeleted, "alice", "col-a", "", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		require.NoError(t, store.DeleteIssue(context.Background(), "iss-1", 2, "alice"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("version mismatch aborts before any write", func(t *testing.T) {
		t.Parallel()

		store, mock := newStoreWithMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT project_id, column_id, column_position, version").
			WithArgs("iss-1").
			WillReturnRows(pgxmock.NewRows([]string{"project_id", "column_id", "column_position", "version"}).
				AddRow("proj-1", "col-a", 1, int64(9)))
		mock.ExpectRollback()

		err := store.DeleteIssue(context.Background(), "iss-1", 2, "alice")
		assert.ErrorIs(t, err, storage.ErrConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGetIssue(t *testing.T) {
	t.Parallel()

	t.Run("found", func(t *testing.T) {
		t.Parallel()

		store, mock := newStoreWithMock(t)
		mock.ExpectQuery("SELECT id, project_id, issue_number").
			WithArgs("iss-1").
			WillReturnRows(issueRow("iss-1", "proj-1", 7, "fix login", "col-a", 0, 1))

		issue, err := store.GetIssue(context.Background(), "iss-1")
		require.NoError(t, err)
		assert.Equal(t, int64(7), issue.IssueNumber)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("absent maps to not found", func(t *testing.T) {
		t.Parallel()

		store, mock := newStoreWithMock(t)
		mock.ExpectQuery("SELECT id, project_id, issue_number").
			WithArgs("ghost").
			WillReturnError(pgx.ErrNoRows)

		_, err := store.GetIssue(context.Background(), "ghost")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("infrastructure error is not masked", func(t *testing.T) {
		t.Parallel()

		store, mock := newStoreWithMock(t)
		boom := errors.New("connection reset")
		mock.ExpectQuery("SELECT id, project_id, issue_number").
			WithArgs("iss-1").
			WillReturnError(boom)

		_, err := store.GetIssue(context.Background(), "iss-1")
		assert.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, storage.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestProjectStats(t *testing.T) {
	t.Parallel()

	store, mock := newStoreWithMock(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\)`).
		WithArgs("proj-1").
		WillReturnRows(pgxmock.NewRows([]string{"total", "open", "closed"}).AddRow(10, 6, 4))

	stats, err := store.ProjectStats(context.Background(), "proj-1")
	require.NoError(t, err)
	assert.Equal(t, 10, stats.TotalIssues)
	assert.Equal(t, 6, stats.OpenIssues)
	assert.Equal(t, 4, stats.ClosedCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}
