package pool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-interview-analyzer/internal/domain"
)

// Corrupted identifiers on a retried task must be repaired from the task id
// or the application record, never retried as-is.

func TestRetryRepairsCorruptedIdentifiers(t *testing.T) {
	t.Parallel()
	cfg := testPoolConfig()
	// Long enough that the re-queued entry never starts within the test.
	cfg.RetryDelay = time.Hour
	f := newPoolFixture(t, cfg, newGateScorer())

	appID := hexID(200)
	wsID := hexID(9200)
	f.apps.put(domain.Application{ID: appID, WorkspaceID: wsID})

	taskID := domain.NewTaskID(appID, "deadbeef")
	require.NoError(t, f.tasks.Create(context.Background(), domain.AnalysisTask{
		TaskID:        taskID,
		ApplicationID: "[object Object]",
		WorkspaceID:   "[object Object]",
		Status:        domain.TaskProcessing,
	}))

	h := &workerHandle{entry: queueEntry{
		TaskID:        taskID,
		ApplicationID: "[object Object]",
		WorkspaceID:   "[object Object]",
		Priority:      domain.PriorityNormal,
	}}
	f.pool.retryTask(h, &domain.TaskError{Message: "flaky upstream", Code: domain.CodeScoringFailed}, discardLogger())

	task, err := f.tasks.Get(context.Background(), taskID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskPending, task.Status)
	assert.Equal(t, 1, task.RetryCount)
	assert.Equal(t, appID, task.ApplicationID)
	assert.Equal(t, wsID, task.WorkspaceID)
}

func TestRetryFailsWhenRepairImpossible(t *testing.T) {
	t.Parallel()
	f := newPoolFixture(t, testPoolConfig(), newGateScorer())

	taskID := "task_garbage_deadbeef"
	require.NoError(t, f.tasks.Create(context.Background(), domain.AnalysisTask{
		TaskID:        taskID,
		ApplicationID: "garbage",
		Status:        domain.TaskProcessing,
	}))

	h := &workerHandle{entry: queueEntry{
		TaskID:        taskID,
		ApplicationID: "garbage",
		WorkspaceID:   "garbage",
	}}
	f.pool.retryTask(h, &domain.TaskError{Message: "flaky upstream", Code: domain.CodeScoringFailed}, discardLogger())

	task, err := f.tasks.Get(context.Background(), taskID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskFailed, task.Status)
	require.NotNil(t, task.Error)
	assert.Equal(t, domain.CodeInvalidApplication, task.Error.Code)
	assert.Equal(t, 0, f.tasks.retryCount())
}

func TestRetryRepairFailsWhenWorkspaceUnresolvable(t *testing.T) {
	t.Parallel()
	f := newPoolFixture(t, testPoolConfig(), newGateScorer())

	appID := hexID(210)
	// Application record is absent, so the workspace cannot be re-derived.
	taskID := domain.NewTaskID(appID, "deadbeef")
	require.NoError(t, f.tasks.Create(context.Background(), domain.AnalysisTask{
		TaskID:        taskID,
		ApplicationID: appID,
		WorkspaceID:   "corrupted",
		Status:        domain.TaskProcessing,
	}))

	h := &workerHandle{entry: queueEntry{
		TaskID:        taskID,
		ApplicationID: appID,
		WorkspaceID:   "corrupted",
	}}
	f.pool.retryTask(h, &domain.TaskError{Message: "flaky upstream", Code: domain.CodeScoringFailed}, discardLogger())

	task, err := f.tasks.Get(context.Background(), taskID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskFailed, task.Status)
	require.NotNil(t, task.Error)
	assert.Equal(t, domain.CodeInvalidApplication, task.Error.Code)
}
