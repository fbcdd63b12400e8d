package cache

import (
	"context"
	"log/slog"
)

// Invalidator is the cache coherency layer: it removes derived read views
// after every committed mutation. All methods are best-effort — an
// invalidation failure is logged and swallowed, never propagated to the
// mutation that triggered it. Entries touched by a call are removed
// before the call returns; a concurrent reader racing the invalidation
// may still observe a stale value until the next invalidating write.
type Invalidator struct {
	store  Store
	logger *slog.Logger
}

// NewInvalidator wires the coherency layer to a cache store. A nil logger
// falls back to slog.Default.
func NewInvalidator(store Store, logger *slog.Logger) *Invalidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Invalidator{store: store, logger: logger}
}

// InvalidateForProject removes the project's stats and every cached
// search result scoped to it.
func (i *Invalidator) InvalidateForProject(ctx context.Context, projectID string) {
	if err := i.store.Delete(ctx, ProjectStatsKey(projectID)); err != nil {
		i.logger.Warn("cache invalidation failed",
			"scope", "project", "project_id", projectID, "error", err)
	}
	if err := i.store.DeleteByPattern(ctx, SearchPattern(projectID)); err != nil {
		i.logger.Warn("cache invalidation failed",
			"scope", "search", "project_id", projectID, "error", err)
	}
}

// InvalidateForIssue removes the issue's stats and everything
// InvalidateForProject removes for its project.
func (i *Invalidator) InvalidateForIssue(ctx context.Context, issueID, projectID string) {
	if err := i.store.Delete(ctx, IssueStatsKey(issueID)); err != nil {
		i.logger.Warn("cache invalidation failed",
			"scope", "issue", "issue_id", issueID, "error", err)
	}
	i.InvalidateForProject(ctx, projectID)
}
