// Package usecase contains the application services consumed by the HTTP
// layer.
package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fairyhunter13/ai-interview-analyzer/internal/domain"
	"github.com/fairyhunter13/ai-interview-analyzer/internal/pool"
)

// TaskPool is the slice of the worker pool the service depends on.
type TaskPool interface {
	QueueAnalysisTask(ctx context.Context, applicationID, workspaceID string, priority domain.TaskPriority) (pool.EnqueueResult, error)
	TaskStatus(ctx context.Context, taskID string) (pool.TaskSnapshot, error)
	CancelTask(ctx context.Context, taskID string) error
	QueueStats() pool.Stats
}

// AnalysisService exposes enqueue, status, cancel, and stats operations over
// the worker pool, resolving the owning workspace from the application
// record.
type AnalysisService struct {
	log  *slog.Logger
	apps domain.ApplicationRepository
	pool TaskPool
}

// NewAnalysisService builds the service.
func NewAnalysisService(log *slog.Logger, apps domain.ApplicationRepository, p TaskPool) *AnalysisService {
	return &AnalysisService{log: log.With(slog.String("component", "usecase.analysis")), apps: apps, pool: p}
}

// RequestAnalysis enqueues an analysis task for the application. The
// workspace is derived from the stored application so callers cannot attach a
// task to the wrong tenant.
func (s *AnalysisService) RequestAnalysis(ctx context.Context, applicationID string, priority domain.TaskPriority) (pool.EnqueueResult, error) {
	if !domain.IsHexID(applicationID) {
		return pool.EnqueueResult{}, fmt.Errorf("op=usecase.RequestAnalysis: applicationId %q: %w", applicationID, domain.ErrInvalidArgument)
	}
	app, err := s.apps.Get(ctx, applicationID)
	if err != nil {
		return pool.EnqueueResult{}, fmt.Errorf("op=usecase.RequestAnalysis: %w", err)
	}
	res, err := s.pool.QueueAnalysisTask(ctx, app.ID, app.WorkspaceID, priority)
	if err != nil {
		return res, fmt.Errorf("op=usecase.RequestAnalysis: %w", err)
	}
	s.log.Info("analysis requested",
		slog.String("task_id", res.TaskID),
		slog.String("application_id", applicationID),
		slog.Int("position", res.Position))
	return res, nil
}

// Status returns the merged store and live-queue view of a task.
func (s *AnalysisService) Status(ctx context.Context, taskID string) (pool.TaskSnapshot, error) {
	snap, err := s.pool.TaskStatus(ctx, taskID)
	if err != nil {
		return pool.TaskSnapshot{}, fmt.Errorf("op=usecase.Status: %w", err)
	}
	return snap, nil
}

// Cancel aborts a queued or running task.
func (s *AnalysisService) Cancel(ctx context.Context, taskID string) error {
	if err := s.pool.CancelTask(ctx, taskID); err != nil {
		return fmt.Errorf("op=usecase.Cancel: %w", err)
	}
	s.log.Info("analysis cancelled", slog.String("task_id", taskID))
	return nil
}

// Stats reports aggregate pool metrics.
func (s *AnalysisService) Stats() pool.Stats {
	return s.pool.QueueStats()
}
