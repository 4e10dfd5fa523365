// Package domain defines the core entities and ports of the interview
// analysis backend.
package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrQueueFull         = errors.New("queue full")
	ErrRateLimited       = errors.New("rate limited")
	ErrUpstreamTimeout   = errors.New("upstream timeout")
	ErrUpstreamRateLimit = errors.New("upstream rate limit")
	ErrSchemaInvalid     = errors.New("schema invalid")
	ErrInternal          = errors.New("internal error")
)

// TaskStatus is the persisted state of an analysis task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskCancelled  TaskStatus = "cancelled"
)

// Terminal reports whether no further transitions may occur from s.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// TaskPriority orders entries within the in-memory queue.
type TaskPriority string

const (
	PriorityHigh   TaskPriority = "high"
	PriorityNormal TaskPriority = "normal"
	PriorityLow    TaskPriority = "low"
)

// Rank maps a priority to a sortable weight; lower drains first.
func (p TaskPriority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

// Valid reports whether p is one of the known priorities.
func (p TaskPriority) Valid() bool {
	return p == PriorityHigh || p == PriorityNormal || p == PriorityLow
}

// Failure codes carried on TaskError. The lower-cased ones mirror worker
// termination reasons; the upper-cased ones are domain-terminal conditions.
const (
	CodeTimeout            = "timeout"
	CodeCancelled          = "cancelled"
	CodeShutdown           = "SHUTDOWN"
	CodeNoResponses        = "NO_RESPONSES"
	CodeInvalidApplication = "INVALID_APPLICATION"
	CodeWorkerCrashed      = "WORKER_CRASHED"
	CodeWorkerExited       = "WORKER_EXITED"
	CodeScoringFailed      = "SCORING_FAILED"
)

// TaskError is the structured failure record persisted on failed tasks.
type TaskError struct {
	Message string `bson:"message" json:"message"`
	Code    string `bson:"code" json:"code"`
	Stack   string `bson:"stack,omitempty" json:"stack,omitempty"`
	Step    string `bson:"step,omitempty" json:"step,omitempty"`
}

// Error implements the error interface.
func (e *TaskError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// Retryable reports whether a failure with this code qualifies for the
// retry path. Domain-terminal codes and hard timeouts never retry.
func (e *TaskError) Retryable() bool {
	if e == nil {
		return true
	}
	switch e.Code {
	case CodeTimeout, CodeCancelled, CodeShutdown, CodeNoResponses, CodeInvalidApplication:
		return false
	}
	return true
}

// AnalysisTask is the unit of work and its persisted record. Identifier
// fields are plain strings only; holding richer references here has caused
// state corruption across serialization boundaries before.
type AnalysisTask struct {
	TaskID        string
	ApplicationID string
	WorkspaceID   string
	Priority      TaskPriority
	Status        TaskStatus
	RetryCount    int
	Result        *Analysis
	Error         *TaskError
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
	FailedAt      *time.Time
	CancelledAt   *time.Time
}

// Analysis is the scoring outcome for one interview application. The pool
// treats it as opaque apart from Success and Reason; the remaining fields
// follow the scoring client's JSON contract.
type Analysis struct {
	Success        bool            `bson:"success" json:"success"`
	Reason         string          `bson:"reason,omitempty" json:"reason,omitempty"`
	OverallScore   float64         `bson:"overall_score" json:"overall_score"`
	Recommendation string          `bson:"recommendation,omitempty" json:"recommendation,omitempty"`
	Strengths      []string        `bson:"strengths,omitempty" json:"strengths,omitempty"`
	RedFlags       []string        `bson:"red_flags,omitempty" json:"red_flags,omitempty"`
	Summary        string          `bson:"summary,omitempty" json:"summary,omitempty"`
	Responses      []ResponseScore `bson:"responses,omitempty" json:"responses,omitempty"`
	Model          string          `bson:"model,omitempty" json:"model,omitempty"`
}

// ResponseScore is one scored interview answer within an Analysis.
type ResponseScore struct {
	ResponseID string  `bson:"response_id" json:"response_id"`
	Question   string  `bson:"question,omitempty" json:"question,omitempty"`
	Score      float64 `bson:"score" json:"score"`
	Feedback   string  `bson:"feedback,omitempty" json:"feedback,omitempty"`
}

// Application is an interview application owned by a workspace.
type Application struct {
	ID             string
	WorkspaceID    string
	CandidateName  string
	CandidateEmail string
	JobTitle       string
	JobDescription string
	Status         string
	CreatedAt      time.Time
}

// Transcription states carried on an interview response.
const (
	TranscriptionPending    = "pending"
	TranscriptionProcessing = "processing"
	TranscriptionCompleted  = "completed"
	TranscriptionFailed     = "failed"
	TranscriptionSkipped    = "skipped"
)

// InterviewResponse is one recorded answer of an application's interview.
type InterviewResponse struct {
	ID                  string
	ApplicationID       string
	Question            string
	AudioURL            string
	TranscriptText      string
	TranscriptionStatus string
	TranscriptionError  string
	DurationSeconds     float64
	CreatedAt           time.Time
}

// HasTranscript reports whether the response carries usable transcript text.
func (r InterviewResponse) HasTranscript() bool {
	return r.TranscriptionStatus == TranscriptionCompleted && r.TranscriptText != ""
}

// Repositories (ports)

// TaskRepository persists analysis task records keyed by taskId. The pool
// manager is the sole writer of task state transitions.
type TaskRepository interface {
	Create(ctx context.Context, t AnalysisTask) error
	Get(ctx context.Context, taskID string) (AnalysisTask, error)
	// FindActiveByApplication returns a pending or processing task for the
	// application, or ErrNotFound when no active task exists.
	FindActiveByApplication(ctx context.Context, applicationID string) (AnalysisTask, error)
	SetProcessing(ctx context.Context, taskID string) error
	SetCompleted(ctx context.Context, taskID string, result *Analysis) error
	SetFailed(ctx context.Context, taskID string, taskErr *TaskError) error
	SetCancelled(ctx context.Context, taskID string, taskErr *TaskError) error
	// SetPendingRetry returns a failed attempt to pending with the bumped
	// retry count and (possibly repaired) identifiers.
	SetPendingRetry(ctx context.Context, taskID string, retryCount int, applicationID, workspaceID string) error
	// ListStaleProcessing returns processing tasks not updated since cutoff.
	ListStaleProcessing(ctx context.Context, cutoff time.Time, limit int) ([]AnalysisTask, error)
}

// ApplicationRepository reads interview applications.
type ApplicationRepository interface {
	Get(ctx context.Context, id string) (Application, error)
}

// ResponseRepository reads and annotates interview responses. Transcription
// fields are the only writable surface; the worker unit never writes.
type ResponseRepository interface {
	ListByApplication(ctx context.Context, applicationID string) ([]InterviewResponse, error)
	SetTranscription(ctx context.Context, responseID, status, text, transcriptionErr string) error
}

// Collaborator clients (ports)

// TranscriptionClient turns an audio URL into transcript text.
type TranscriptionClient interface {
	Transcribe(ctx context.Context, audioURL string) (string, error)
}

// ScoringClient produces a structured Analysis for an application's
// transcribed responses.
type ScoringClient interface {
	Analyze(ctx context.Context, app Application, responses []InterviewResponse) (*Analysis, error)
}
