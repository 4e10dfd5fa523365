package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-interview-analyzer/internal/domain"
)

// StuckTaskSweeper terminally fails processing tasks that have not been
// touched for longer than maxProcessingAge. Such records are orphans left by
// a crashed process; a live pool either completes a task or times it out well
// inside that window.
type StuckTaskSweeper struct {
	tasks            domain.TaskRepository
	maxProcessingAge time.Duration
	interval         time.Duration
}

// NewStuckTaskSweeper builds a sweeper. Nil tasks disables it.
func NewStuckTaskSweeper(tasks domain.TaskRepository, maxProcessingAge, interval time.Duration) *StuckTaskSweeper {
	if tasks == nil {
		return nil
	}
	if maxProcessingAge <= 0 {
		maxProcessingAge = 10 * time.Minute
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &StuckTaskSweeper{
		tasks:            tasks,
		maxProcessingAge: maxProcessingAge,
		interval:         interval,
	}
}

// Run sweeps until the context is cancelled.
func (s *StuckTaskSweeper) Run(ctx context.Context) {
	if s == nil || s.tasks == nil {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweepOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("stuck task sweeper stopping")
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *StuckTaskSweeper) sweepOnce(ctx context.Context) {
	tracer := otel.Tracer("tasks.sweeper")
	ctx, span := tracer.Start(ctx, "StuckTaskSweeper.sweepOnce")
	defer span.End()

	cutoff := time.Now().Add(-s.maxProcessingAge)
	const limit = 100
	span.SetAttributes(
		attribute.Int("tasks.limit", limit),
		attribute.Float64("tasks.max_processing_age_seconds", s.maxProcessingAge.Seconds()),
	)

	stale, err := s.tasks.ListStaleProcessing(ctx, cutoff, limit)
	if err != nil {
		span.RecordError(err)
		slog.Error("stuck task sweep failed to list tasks", slog.Any("error", err))
		return
	}

	marked := 0
	for _, t := range stale {
		taskErr := &domain.TaskError{
			Message: fmt.Sprintf("processing exceeded maximum age %v; marked failed by sweeper", s.maxProcessingAge),
			Code:    domain.CodeTimeout,
			Step:    "sweeper",
		}
		if err := s.tasks.SetFailed(ctx, t.TaskID, taskErr); err != nil {
			span.RecordError(err)
			slog.Error("stuck task sweep failed to update task", slog.String("task_id", t.TaskID), slog.Any("error", err))
			continue
		}
		marked++
	}

	span.SetAttributes(
		attribute.Int("tasks.total_checked", len(stale)),
		attribute.Int("tasks.total_marked_failed", marked),
	)
	if marked > 0 {
		slog.Warn("stuck tasks failed by sweeper", slog.Int("count", marked))
	}
}
