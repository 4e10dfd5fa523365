package mongodb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fairyhunter13/ai-interview-analyzer/internal/domain"
)

func TestTaskDoc_RoundTrip(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC().Truncate(time.Millisecond)
	completed := now.Add(time.Minute)
	task := domain.AnalysisTask{
		TaskID:        "task_64f1b2c3d4e5f60718293a4b_a1b2c3d4",
		ApplicationID: "64f1b2c3d4e5f60718293a4b",
		WorkspaceID:   "64f1b2c3d4e5f60718293a4c",
		Priority:      domain.PriorityHigh,
		Status:        domain.TaskCompleted,
		RetryCount:    2,
		Result:        &domain.Analysis{Success: true, OverallScore: 82.5, Recommendation: "hire"},
		CreatedAt:     now,
		UpdatedAt:     now,
		CompletedAt:   &completed,
	}
	got := toTaskDoc(task).toDomain()
	assert.Equal(t, task, got)
}

func TestTaskDoc_ErrorRecordSurvives(t *testing.T) {
	t.Parallel()
	task := domain.AnalysisTask{
		TaskID: "task_x",
		Status: domain.TaskFailed,
		Error:  &domain.TaskError{Code: domain.CodeTimeout, Message: "worker exceeded deadline", Step: "scoring"},
	}
	got := toTaskDoc(task).toDomain()
	assert.Equal(t, task.Error, got.Error)
}
