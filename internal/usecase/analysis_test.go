package usecase_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-interview-analyzer/internal/domain"
	"github.com/fairyhunter13/ai-interview-analyzer/internal/pool"
	"github.com/fairyhunter13/ai-interview-analyzer/internal/usecase"
)

const (
	appID = "64f1b2c3d4e5f60718293a4b"
	wsID  = "74f1b2c3d4e5f60718293a4c"
)

type stubApps struct {
	app domain.Application
	err error
}

func (s *stubApps) Get(context.Context, string) (domain.Application, error) {
	return s.app, s.err
}

type stubPool struct {
	enqueueRes   pool.EnqueueResult
	enqueueErr   error
	gotApp       string
	gotWorkspace string
	gotPriority  domain.TaskPriority
	cancelErr    error
	cancelled    []string
	snapshot     pool.TaskSnapshot
	snapshotErr  error
	stats        pool.Stats
}

func (s *stubPool) QueueAnalysisTask(_ context.Context, applicationID, workspaceID string, priority domain.TaskPriority) (pool.EnqueueResult, error) {
	s.gotApp, s.gotWorkspace, s.gotPriority = applicationID, workspaceID, priority
	return s.enqueueRes, s.enqueueErr
}

func (s *stubPool) TaskStatus(context.Context, string) (pool.TaskSnapshot, error) {
	return s.snapshot, s.snapshotErr
}

func (s *stubPool) CancelTask(_ context.Context, taskID string) error {
	s.cancelled = append(s.cancelled, taskID)
	return s.cancelErr
}

func (s *stubPool) QueueStats() pool.Stats { return s.stats }

func newService(apps *stubApps, p *stubPool) *usecase.AnalysisService {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return usecase.NewAnalysisService(log, apps, p)
}

func TestRequestAnalysisDerivesWorkspace(t *testing.T) {
	t.Parallel()
	p := &stubPool{enqueueRes: pool.EnqueueResult{TaskID: "task_" + appID + "_ab12cd34", Position: 1}}
	svc := newService(&stubApps{app: domain.Application{ID: appID, WorkspaceID: wsID}}, p)

	res, err := svc.RequestAnalysis(context.Background(), appID, domain.PriorityHigh)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Position)
	assert.Equal(t, appID, p.gotApp)
	assert.Equal(t, wsID, p.gotWorkspace)
	assert.Equal(t, domain.PriorityHigh, p.gotPriority)
}

func TestRequestAnalysisRejectsMalformedID(t *testing.T) {
	t.Parallel()
	svc := newService(&stubApps{}, &stubPool{})
	_, err := svc.RequestAnalysis(context.Background(), "short", domain.PriorityNormal)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestRequestAnalysisUnknownApplication(t *testing.T) {
	t.Parallel()
	svc := newService(&stubApps{err: domain.ErrNotFound}, &stubPool{})
	_, err := svc.RequestAnalysis(context.Background(), appID, domain.PriorityNormal)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRequestAnalysisConflictKeepsTaskID(t *testing.T) {
	t.Parallel()
	p := &stubPool{
		enqueueRes: pool.EnqueueResult{TaskID: "task_existing", Existing: true},
		enqueueErr: domain.ErrConflict,
	}
	svc := newService(&stubApps{app: domain.Application{ID: appID, WorkspaceID: wsID}}, p)

	res, err := svc.RequestAnalysis(context.Background(), appID, domain.PriorityNormal)
	require.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, "task_existing", res.TaskID)
	assert.True(t, res.Existing)
}

func TestStatusAndCancelPassThrough(t *testing.T) {
	t.Parallel()
	p := &stubPool{
		snapshot: pool.TaskSnapshot{
			Task:     domain.AnalysisTask{TaskID: "task_x", Status: domain.TaskPending},
			Position: 3,
		},
		stats: pool.Stats{Queued: 2, Active: 1},
	}
	svc := newService(&stubApps{}, p)

	snap, err := svc.Status(context.Background(), "task_x")
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Position)

	require.NoError(t, svc.Cancel(context.Background(), "task_x"))
	assert.Equal(t, []string{"task_x"}, p.cancelled)

	stats := svc.Stats()
	assert.Equal(t, 2, stats.Queued)
}
