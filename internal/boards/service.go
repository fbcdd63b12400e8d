// Package boards exposes the boundary operations of the concurrency core:
// issue creation, optimistic-lock mutation, transactional board moves and
// the cached read views. HTTP handlers sit on top of this package and
// translate the sentinel errors into response codes (409 for
// storage.ErrConflict, 404 for storage.ErrNotFound).
package boards

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/taskboard/taskboard/internal/cache"
	"github.com/taskboard/taskboard/internal/storage"
	"github.com/taskboard/taskboard/internal/types"
)

const instrumentationName = "github.com/taskboard/taskboard/internal/boards"

// DefaultStatsTTL bounds the staleness of the cached project stats view.
const DefaultStatsTTL = 60 * time.Second

// Service wires a storage backend to the cache coherency layer. Every
// successful mutation triggers invalidation before returning; the service
// never retries conflicts — that policy belongs to the caller (see the
// retry package).
type Service struct {
	store       storage.Storage
	cacheStore  cache.Store
	invalidator *cache.Invalidator
	logger      *slog.Logger
	statsTTL    time.Duration

	tracer    trace.Tracer
	mutations metric.Int64Counter
	conflicts metric.Int64Counter
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithStatsTTL overrides the project-stats cache TTL.
func WithStatsTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) { s.statsTTL = ttl }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// NewService creates the boundary service over a storage backend and a
// best-effort cache store.
func NewService(store storage.Storage, cacheStore cache.Store, opts ...ServiceOption) *Service {
	s := &Service{
		store:      store,
		cacheStore: cacheStore,
		logger:     slog.Default(),
		statsTTL:   DefaultStatsTTL,
		tracer:     otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.invalidator = cache.NewInvalidator(cacheStore, s.logger)

	meter := otel.Meter(instrumentationName)
	var err error
	if s.mutations, err = meter.Int64Counter("taskboard.mutations",
		metric.WithDescription("Committed issue mutations")); err != nil {
		s.logger.Warn("failed to create mutations counter", "error", err)
	}
	if s.conflicts, err = meter.Int64Counter("taskboard.conflicts",
		metric.WithDescription("Optimistic-lock conflicts surfaced to callers")); err != nil {
		s.logger.Warn("failed to create conflicts counter", "error", err)
	}
	return s
}

// CreateIssue creates an issue, allocating its per-project number inside
// the insert transaction, then invalidates the project's read views.
func (s *Service) CreateIssue(ctx context.Context, issue *types.Issue, actor string) error {
	ctx, span := s.tracer.Start(ctx, "boards.CreateIssue",
		trace.WithAttributes(attribute.String("project_id", issue.ProjectID)))
	defer span.End()

	if err := s.store.CreateIssue(ctx, issue, actor); err != nil {
		s.recordError(ctx, span, "create", err)
		return err
	}
	s.record(ctx, "create")
	s.invalidator.InvalidateForProject(ctx, issue.ProjectID)
	return nil
}

// UpdateIssue applies patch under the optimistic-lock contract and
// invalidates the issue's and project's read views on success.
func (s *Service) UpdateIssue(ctx context.Context, id string, expectedVersion int64, patch map[string]any, actor string) (*types.Issue, error) {
	ctx, span := s.tracer.Start(ctx, "boards.UpdateIssue",
		trace.WithAttributes(attribute.String("issue_id", id)))
	defer span.End()

	issue, err := s.store.UpdateIssue(ctx, id, expectedVersion, patch, actor)
	if err != nil {
		s.recordError(ctx, span, "update", err)
		return nil, err
	}
	s.record(ctx, "update")
	s.invalidator.InvalidateForIssue(ctx, issue.ID, issue.ProjectID)
	return issue, nil
}

// MoveIssue moves an issue on the board and invalidates the issue's and
// project's read views on success.
func (s *Service) MoveIssue(ctx context.Context, id, targetColumnID string, targetPosition int, expectedVersion int64, actor string) (*types.Issue, error) {
	ctx, span := s.tracer.Start(ctx, "boards.MoveIssue",
		trace.WithAttributes(
			attribute.String("issue_id", id),
			attribute.String("target_column_id", targetColumnID),
			attribute.Int("target_position", targetPosition)))
	defer span.End()

	issue, err := s.store.MoveIssue(ctx, id, targetColumnID, targetPosition, expectedVersion, actor)
	if err != nil {
		s.recordError(ctx, span, "move", err)
		return nil, err
	}
	s.record(ctx, "move")
	s.invalidator.InvalidateForIssue(ctx, issue.ID, issue.ProjectID)
	return issue, nil
}

// DeleteIssue soft-deletes an issue and invalidates its read views.
func (s *Service) DeleteIssue(ctx context.Context, id string, expectedVersion int64, actor string) error {
	ctx, span := s.tracer.Start(ctx, "boards.DeleteIssue",
		trace.WithAttributes(attribute.String("issue_id", id)))
	defer span.End()

	issue, err := s.store.GetIssue(ctx, id)
	if err != nil {
		s.recordError(ctx, span, "delete", err)
		return err
	}
	if err := s.store.DeleteIssue(ctx, id, expectedVersion, actor); err != nil {
		s.recordError(ctx, span, "delete", err)
		return err
	}
	s.record(ctx, "delete")
	s.invalidator.InvalidateForIssue(ctx, id, issue.ProjectID)
	return nil
}

// GetIssue returns a single issue.
func (s *Service) GetIssue(ctx context.Context, id string) (*types.Issue, error) {
	return s.store.GetIssue(ctx, id)
}

// ListColumnIssues returns a column's issues in board order.
func (s *Service) ListColumnIssues(ctx context.Context, columnID string) ([]*types.Issue, error) {
	return s.store.ListColumnIssues(ctx, columnID)
}

// CreateColumn appends a column to the project's board.
func (s *Service) CreateColumn(ctx context.Context, column *types.BoardColumn) error {
	if err := s.store.CreateColumn(ctx, column); err != nil {
		return err
	}
	s.invalidator.InvalidateForProject(ctx, column.ProjectID)
	return nil
}

// ListColumns returns a project's board columns in order.
func (s *Service) ListColumns(ctx context.Context, projectID string) ([]*types.BoardColumn, error) {
	return s.store.ListColumns(ctx, projectID)
}

// ListActivity returns an issue's activity log.
func (s *Service) ListActivity(ctx context.Context, issueID string) ([]*types.Activity, error) {
	return s.store.ListActivity(ctx, issueID)
}

// ProjectStats serves the project's stats through the cache. Cache
// failures fall through to the store; the cached value is refreshed with
// the configured TTL.
func (s *Service) ProjectStats(ctx context.Context, projectID string) (*types.ProjectStats, error) {
	key := cache.ProjectStatsKey(projectID)
	if data, ok, err := s.cacheStore.Get(ctx, key); err != nil {
		s.logger.Warn("stats cache read failed", "project_id", projectID, "error", err)
	} else if ok {
		var stats types.ProjectStats
		if err := json.Unmarshal(data, &stats); err == nil {
			return &stats, nil
		}
		s.logger.Warn("stats cache entry corrupt, recomputing", "project_id", projectID)
	}

	stats, err := s.store.ProjectStats(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(stats); err == nil {
		if err := s.cacheStore.Set(ctx, key, data, s.statsTTL); err != nil {
			s.logger.Warn("stats cache write failed", "project_id", projectID, "error", err)
		}
	}
	return stats, nil
}

func (s *Service) record(ctx context.Context, op string) {
	if s.mutations != nil {
		s.mutations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
	}
}

func (s *Service) recordError(ctx context.Context, span trace.Span, op string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if s.conflicts != nil && storage.IsConflict(err) {
		s.conflicts.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
	}
}
