package pool

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/fairyhunter13/ai-interview-analyzer/internal/config"
	"github.com/fairyhunter13/ai-interview-analyzer/internal/domain"
)

func hexID(n int) string {
	return fmt.Sprintf("%024x", n)
}

func testPoolConfig() config.Config {
	return config.Config{
		AppEnv:        "test",
		MaxWorkers:    2,
		MaxQueueSize:  100,
		TaskTimeout:   2 * time.Second,
		MaxRetries:    3,
		RetryDelay:    20 * time.Millisecond,
		DrainInterval: 20 * time.Millisecond,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memTaskRepo struct {
	mu        sync.Mutex
	tasks     map[string]domain.AnalysisTask
	retrySets int
	latency   time.Duration
}

func newMemTaskRepo() *memTaskRepo {
	return &memTaskRepo{tasks: make(map[string]domain.AnalysisTask)}
}

// setLatency makes every read and write sleep, approximating a remote store.
func (r *memTaskRepo) setLatency(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latency = d
}

func (r *memTaskRepo) sleepLatency() {
	r.mu.Lock()
	d := r.latency
	r.mu.Unlock()
	if d > 0 {
		time.Sleep(d)
	}
}

func (r *memTaskRepo) Create(_ context.Context, t domain.AnalysisTask) error {
	r.sleepLatency()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[t.TaskID]; ok {
		return domain.ErrConflict
	}
	r.tasks[t.TaskID] = t
	return nil
}

func (r *memTaskRepo) Get(_ context.Context, taskID string) (domain.AnalysisTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[taskID]
	if !ok {
		return domain.AnalysisTask{}, domain.ErrNotFound
	}
	return t, nil
}

func (r *memTaskRepo) FindActiveByApplication(_ context.Context, applicationID string) (domain.AnalysisTask, error) {
	r.sleepLatency()
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tasks {
		if t.ApplicationID == applicationID && !t.Status.Terminal() {
			return t, nil
		}
	}
	return domain.AnalysisTask{}, domain.ErrNotFound
}

func (r *memTaskRepo) mutate(taskID string, fn func(*domain.AnalysisTask)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[taskID]
	if !ok {
		return domain.ErrNotFound
	}
	fn(&t)
	t.UpdatedAt = time.Now().UTC()
	r.tasks[taskID] = t
	return nil
}

func (r *memTaskRepo) SetProcessing(_ context.Context, taskID string) error {
	return r.mutate(taskID, func(t *domain.AnalysisTask) {
		t.Status = domain.TaskProcessing
	})
}

func (r *memTaskRepo) SetCompleted(_ context.Context, taskID string, result *domain.Analysis) error {
	return r.mutate(taskID, func(t *domain.AnalysisTask) {
		now := time.Now().UTC()
		t.Status = domain.TaskCompleted
		t.Result = result
		t.Error = nil
		t.CompletedAt = &now
	})
}

func (r *memTaskRepo) SetFailed(_ context.Context, taskID string, taskErr *domain.TaskError) error {
	return r.mutate(taskID, func(t *domain.AnalysisTask) {
		now := time.Now().UTC()
		t.Status = domain.TaskFailed
		t.Error = taskErr
		t.FailedAt = &now
	})
}

func (r *memTaskRepo) SetCancelled(_ context.Context, taskID string, taskErr *domain.TaskError) error {
	return r.mutate(taskID, func(t *domain.AnalysisTask) {
		now := time.Now().UTC()
		t.Status = domain.TaskCancelled
		t.Error = taskErr
		t.CancelledAt = &now
	})
}

func (r *memTaskRepo) SetPendingRetry(_ context.Context, taskID string, retryCount int, applicationID, workspaceID string) error {
	err := r.mutate(taskID, func(t *domain.AnalysisTask) {
		t.Status = domain.TaskPending
		t.RetryCount = retryCount
		t.ApplicationID = applicationID
		t.WorkspaceID = workspaceID
		t.Error = nil
	})
	if err == nil {
		r.mu.Lock()
		r.retrySets++
		r.mu.Unlock()
	}
	return err
}

func (r *memTaskRepo) ListStaleProcessing(_ context.Context, cutoff time.Time, limit int) ([]domain.AnalysisTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.AnalysisTask
	for _, t := range r.tasks {
		if t.Status == domain.TaskProcessing && t.UpdatedAt.Before(cutoff) {
			out = append(out, t)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *memTaskRepo) activeCount(applicationID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.tasks {
		if t.ApplicationID == applicationID && !t.Status.Terminal() {
			n++
		}
	}
	return n
}

func (r *memTaskRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

func (r *memTaskRepo) retryCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.retrySets
}

func (r *memTaskRepo) status(taskID string) domain.TaskStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tasks[taskID].Status
}

type memAppRepo struct {
	mu   sync.Mutex
	apps map[string]domain.Application
}

func newMemAppRepo() *memAppRepo {
	return &memAppRepo{apps: make(map[string]domain.Application)}
}

func (r *memAppRepo) Get(_ context.Context, id string) (domain.Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.apps[id]
	if !ok {
		return domain.Application{}, domain.ErrNotFound
	}
	return a, nil
}

func (r *memAppRepo) put(a domain.Application) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.apps[a.ID] = a
}

type memResponseRepo struct {
	mu        sync.Mutex
	responses map[string][]domain.InterviewResponse
}

func newMemResponseRepo() *memResponseRepo {
	return &memResponseRepo{responses: make(map[string][]domain.InterviewResponse)}
}

func (r *memResponseRepo) ListByApplication(_ context.Context, applicationID string) ([]domain.InterviewResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.InterviewResponse, len(r.responses[applicationID]))
	copy(out, r.responses[applicationID])
	return out, nil
}

func (r *memResponseRepo) SetTranscription(_ context.Context, responseID, status, text, transcriptionErr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for appID, list := range r.responses {
		for i := range list {
			if list[i].ID == responseID {
				list[i].TranscriptionStatus = status
				list[i].TranscriptText = text
				list[i].TranscriptionError = transcriptionErr
				r.responses[appID] = list
				return nil
			}
		}
	}
	return domain.ErrNotFound
}

func (r *memResponseRepo) put(appID string, resp domain.InterviewResponse) {
	r.mu.Lock()
	defer r.mu.Unlock()
	resp.ApplicationID = appID
	r.responses[appID] = append(r.responses[appID], resp)
}

func (r *memResponseRepo) get(responseID string) domain.InterviewResponse {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, list := range r.responses {
		for _, resp := range list {
			if resp.ID == responseID {
				return resp
			}
		}
	}
	return domain.InterviewResponse{}
}

type fakeTranscriber struct {
	fn func(ctx context.Context, audioURL string) (string, error)
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioURL string) (string, error) {
	if f.fn != nil {
		return f.fn(ctx, audioURL)
	}
	return "transcribed audio", nil
}

// gateScorer blocks every Analyze call until released, reporting which
// application started. Lets tests control drain order and hold worker slots.
type gateScorer struct {
	started chan string
	release chan struct{}
}

func newGateScorer() *gateScorer {
	return &gateScorer{
		started: make(chan string, 16),
		release: make(chan struct{}),
	}
}

func (s *gateScorer) Analyze(ctx context.Context, app domain.Application, _ []domain.InterviewResponse) (*domain.Analysis, error) {
	select {
	case s.started <- app.ID:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case <-s.release:
		return &domain.Analysis{Success: true, OverallScore: 80, Recommendation: "hire"}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *gateScorer) awaitStart(t *testing.T) string {
	t.Helper()
	select {
	case id := <-s.started:
		return id
	case <-time.After(3 * time.Second):
		t.Fatal("no worker started in time")
		return ""
	}
}

// funcScorer delegates to an inline function.
type funcScorer struct {
	fn func(ctx context.Context, app domain.Application, responses []domain.InterviewResponse) (*domain.Analysis, error)
}

func (s *funcScorer) Analyze(ctx context.Context, app domain.Application, responses []domain.InterviewResponse) (*domain.Analysis, error) {
	return s.fn(ctx, app, responses)
}

type poolFixture struct {
	pool        *Pool
	tasks       *memTaskRepo
	apps        *memAppRepo
	responses   *memResponseRepo
	transcriber *fakeTranscriber
}

func newPoolFixture(t *testing.T, cfg config.Config, scorer domain.ScoringClient) *poolFixture {
	t.Helper()
	f := &poolFixture{
		tasks:       newMemTaskRepo(),
		apps:        newMemAppRepo(),
		responses:   newMemResponseRepo(),
		transcriber: &fakeTranscriber{},
	}
	f.pool = New(cfg, discardLogger(), Deps{
		Tasks:       f.tasks,
		Apps:        f.apps,
		Responses:   f.responses,
		Transcriber: f.transcriber,
		Scorer:      scorer,
	})
	f.pool.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = f.pool.Shutdown(ctx)
	})
	return f
}

// seedApplication registers an application with one transcribed response so a
// worker can reach the scoring step.
func (f *poolFixture) seedApplication(n int) string {
	appID := hexID(n)
	f.apps.put(domain.Application{
		ID:            appID,
		WorkspaceID:   hexID(9000 + n),
		CandidateName: fmt.Sprintf("candidate-%d", n),
		JobTitle:      "Backend Engineer",
	})
	f.responses.put(appID, domain.InterviewResponse{
		ID:                  fmt.Sprintf("resp-%d", n),
		Question:            "Tell me about a hard bug.",
		TranscriptText:      "It was a race in the cache layer.",
		TranscriptionStatus: domain.TranscriptionCompleted,
	})
	return appID
}
