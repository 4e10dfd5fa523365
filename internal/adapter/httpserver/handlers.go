package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/ai-interview-analyzer/internal/config"
	"github.com/fairyhunter13/ai-interview-analyzer/internal/domain"
	"github.com/fairyhunter13/ai-interview-analyzer/internal/pool"
)

// AnalysisService is the application-service surface the handlers call.
type AnalysisService interface {
	RequestAnalysis(ctx context.Context, applicationID string, priority domain.TaskPriority) (pool.EnqueueResult, error)
	Status(ctx context.Context, taskID string) (pool.TaskSnapshot, error)
	Cancel(ctx context.Context, taskID string) error
	Stats() pool.Stats
}

// Server aggregates handler dependencies.
type Server struct {
	Cfg        config.Config
	Analysis   AnalysisService
	DBCheck    func(ctx context.Context) error
	RedisCheck func(ctx context.Context) error
}

// NewServer constructs an HTTP server with all handlers and checks wired.
func NewServer(cfg config.Config, analysis AnalysisService, dbCheck, redisCheck func(context.Context) error) *Server {
	return &Server{Cfg: cfg, Analysis: analysis, DBCheck: dbCheck, RedisCheck: redisCheck}
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// AnalyzeHandler enqueues an analysis task for an application.
func (s *Server) AnalyzeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		applicationID := chi.URLParam(r, "id")
		if applicationID == "" {
			writeError(w, r, fmt.Errorf("%w: application id missing", domain.ErrInvalidArgument), nil)
			return
		}
		var req struct {
			Priority string `json:"priority" validate:"omitempty,oneof=high normal low"`
		}
		// Body is optional; an absent body means default priority.
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			verrs := map[string]string{}
			if ve, ok := err.(validator.ValidationErrors); ok {
				for _, fe := range ve {
					verrs[strings.ToLower(fe.Field())] = fe.Tag()
				}
			}
			writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), verrs)
			return
		}
		res, err := s.Analysis.RequestAnalysis(r.Context(), applicationID, domain.TaskPriority(req.Priority))
		if err != nil {
			var details interface{}
			if res.Existing {
				details = map[string]string{"task_id": res.TaskID}
			}
			writeError(w, r, err, details)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{
			"task_id":  res.TaskID,
			"status":   string(domain.TaskPending),
			"position": res.Position,
		})
	}
}

type statusResponse struct {
	TaskID        string              `json:"task_id"`
	ApplicationID string              `json:"application_id"`
	WorkspaceID   string              `json:"workspace_id"`
	Status        domain.TaskStatus   `json:"status"`
	Priority      domain.TaskPriority `json:"priority"`
	RetryCount    int                 `json:"retry_count"`
	Position      int                 `json:"position,omitempty"`
	Active        bool                `json:"active"`
	Result        *domain.Analysis    `json:"result,omitempty"`
	Error         *domain.TaskError   `json:"error,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	CompletedAt   *time.Time          `json:"completed_at,omitempty"`
	FailedAt      *time.Time          `json:"failed_at,omitempty"`
	CancelledAt   *time.Time          `json:"cancelled_at,omitempty"`
}

// StatusHandler returns a task's persisted state merged with its live queue
// position.
func (s *Server) StatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID := chi.URLParam(r, "taskID")
		if taskID == "" {
			writeError(w, r, fmt.Errorf("%w: task id missing", domain.ErrInvalidArgument), nil)
			return
		}
		snap, err := s.Analysis.Status(r.Context(), taskID)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		t := snap.Task
		writeJSON(w, http.StatusOK, statusResponse{
			TaskID:        t.TaskID,
			ApplicationID: t.ApplicationID,
			WorkspaceID:   t.WorkspaceID,
			Status:        t.Status,
			Priority:      t.Priority,
			RetryCount:    t.RetryCount,
			Position:      snap.Position,
			Active:        snap.Active,
			Result:        t.Result,
			Error:         t.Error,
			CreatedAt:     t.CreatedAt,
			CompletedAt:   t.CompletedAt,
			FailedAt:      t.FailedAt,
			CancelledAt:   t.CancelledAt,
		})
	}
}

// CancelHandler aborts a queued or running task.
func (s *Server) CancelHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID := chi.URLParam(r, "taskID")
		if taskID == "" {
			writeError(w, r, fmt.Errorf("%w: task id missing", domain.ErrInvalidArgument), nil)
			return
		}
		if err := s.Analysis.Cancel(r.Context(), taskID); err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"task_id": taskID,
			"status":  string(domain.TaskCancelled),
		})
	}
}

// StatsHandler exposes aggregate pool metrics.
func (s *Server) StatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, s.Analysis.Stats())
	}
}

// HealthzHandler reports process liveness.
func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadyzHandler probes the task store and the event broker.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := make([]check, 0, 2)
		if s.DBCheck != nil {
			if err := s.DBCheck(ctx); err != nil {
				checks = append(checks, check{Name: "mongodb", Details: err.Error()})
			} else {
				checks = append(checks, check{Name: "mongodb", OK: true})
			}
		}
		if s.RedisCheck != nil {
			if err := s.RedisCheck(ctx); err != nil {
				checks = append(checks, check{Name: "redis", Details: err.Error()})
			} else {
				checks = append(checks, check{Name: "redis", OK: true})
			}
		}
		ok := true
		for _, c := range checks {
			if !c.OK {
				ok = false
				break
			}
		}
		st := http.StatusOK
		if !ok {
			st = http.StatusServiceUnavailable
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}
