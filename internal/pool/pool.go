// Package pool implements the bounded-concurrency analysis worker pool: an
// in-memory priority queue drained into per-task worker goroutines, with the
// pool manager as the sole writer of persisted task state.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/ai-interview-analyzer/internal/config"
	"github.com/fairyhunter13/ai-interview-analyzer/internal/domain"
	"github.com/fairyhunter13/ai-interview-analyzer/internal/observability"
)

// queueEntry is the in-memory projection of a pending task. The authoritative
// record lives in the task store; entries are rebuilt on retry, never
// persisted as a list.
type queueEntry struct {
	TaskID        string
	ApplicationID string
	WorkspaceID   string
	Priority      domain.TaskPriority
	RetryCount    int
	EnqueuedAt    time.Time
}

// workerHandle tracks one running task. Owned exclusively by the pool; the
// reason field is set under the pool mutex before cancel fires so the
// supervisor knows why its context died.
type workerHandle struct {
	entry     queueEntry
	ctx       context.Context
	cancel    context.CancelFunc
	startedAt time.Time
	reason    string
}

// Deps are the collaborators the pool coordinates.
type Deps struct {
	Tasks       domain.TaskRepository
	Apps        domain.ApplicationRepository
	Responses   domain.ResponseRepository
	Transcriber domain.TranscriptionClient
	Scorer      domain.ScoringClient
}

// Pool owns the task queue, enforces bounded concurrency, and supervises
// worker lifecycle. Construct with New, run with Start, stop with Shutdown.
type Pool struct {
	cfg config.Config
	log *slog.Logger
	d   Deps

	mu        sync.Mutex
	queue     []queueEntry
	handles   map[string]*workerHandle
	reserved  map[string]struct{}
	parked    map[string]*parkedRetry
	draining  bool
	accepting bool
	listeners []func(Event)

	baseCtx    context.Context
	cancelBase context.CancelFunc
	stopTick   chan struct{}
	wg         sync.WaitGroup
}

// parkedRetry is a task waiting out its retry delay. Parked tasks are pending
// in the store but live in neither the queue nor the handle registry; the pool
// tracks them so cancellation and shutdown can still reach them.
type parkedRetry struct {
	entry queueEntry
	timer *time.Timer
}

// New constructs a pool. It does nothing until Start is called.
func New(cfg config.Config, log *slog.Logger, d Deps) *Pool {
	if cfg.DrainInterval <= 0 {
		cfg.DrainInterval = time.Second
	}
	return &Pool{
		cfg:      cfg,
		log:      log.With(slog.String("component", "pool")),
		d:        d,
		handles:  make(map[string]*workerHandle),
		reserved: make(map[string]struct{}),
		parked:   make(map[string]*parkedRetry),
	}
}

// Start begins accepting work and launches the periodic drain tick. The given
// context bounds every worker; cancelling it forcibly terminates them.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.accepting {
		return
	}
	p.baseCtx, p.cancelBase = context.WithCancel(ctx)
	p.accepting = true
	p.stopTick = make(chan struct{})
	go p.tickDrain()
	p.log.Info("pool started",
		slog.Int("max_workers", p.cfg.MaxWorkers),
		slog.Int("max_queue_size", p.cfg.MaxQueueSize),
		slog.Duration("task_timeout", p.cfg.TaskTimeout))
}

// tickDrain re-drains on an interval as a safety net for retry re-insertions
// and any missed wakeup.
func (p *Pool) tickDrain() {
	t := time.NewTicker(p.cfg.DrainInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			p.processQueue()
		case <-p.stopTick:
			return
		}
	}
}

// EnqueueResult reports the outcome of QueueAnalysisTask. On a dedup conflict
// TaskID carries the already-active task so callers can poll it.
type EnqueueResult struct {
	TaskID   string
	Position int
	Existing bool
}

// QueueAnalysisTask persists a new pending task and inserts it into the
// priority queue. It rejects, without creating a record, when identifiers are
// missing or malformed, when an active task already exists for the
// application (domain.ErrConflict, existing TaskID returned), or when the
// queue is saturated (domain.ErrQueueFull).
func (p *Pool) QueueAnalysisTask(ctx context.Context, applicationID, workspaceID string, priority domain.TaskPriority) (EnqueueResult, error) {
	if !domain.IsHexID(applicationID) {
		return EnqueueResult{}, fmt.Errorf("op=pool.enqueue: applicationId %q: %w", applicationID, domain.ErrInvalidArgument)
	}
	if !domain.IsHexID(workspaceID) {
		return EnqueueResult{}, fmt.Errorf("op=pool.enqueue: workspaceId %q: %w", workspaceID, domain.ErrInvalidArgument)
	}
	if priority == "" {
		priority = domain.PriorityNormal
	}
	if !priority.Valid() {
		return EnqueueResult{}, fmt.Errorf("op=pool.enqueue: priority %q: %w", priority, domain.ErrInvalidArgument)
	}

	p.mu.Lock()
	if !p.accepting {
		p.mu.Unlock()
		return EnqueueResult{}, fmt.Errorf("op=pool.enqueue: pool stopped: %w", domain.ErrQueueFull)
	}
	if existing, ok := p.activeForLocked(applicationID); ok {
		p.mu.Unlock()
		return EnqueueResult{TaskID: existing, Existing: true},
			fmt.Errorf("op=pool.enqueue: analysis already active for application: %w", domain.ErrConflict)
	}
	if _, ok := p.reserved[applicationID]; ok {
		p.mu.Unlock()
		return EnqueueResult{}, fmt.Errorf("op=pool.enqueue: enqueue already in flight for application: %w", domain.ErrConflict)
	}
	if len(p.queue) >= p.cfg.MaxQueueSize {
		p.mu.Unlock()
		return EnqueueResult{}, fmt.Errorf("op=pool.enqueue: queue at capacity %d: %w", p.cfg.MaxQueueSize, domain.ErrQueueFull)
	}
	// Reserve the application for the duration of the store round-trip so a
	// concurrent enqueue cannot slip through between the in-memory check and
	// the queue insert. Released on rejection or swapped for the queue entry.
	p.reserved[applicationID] = struct{}{}
	p.mu.Unlock()

	// Store-level dedup guards against tasks created by a previous process.
	if existing, err := p.d.Tasks.FindActiveByApplication(ctx, applicationID); err == nil {
		p.unreserve(applicationID)
		return EnqueueResult{TaskID: existing.TaskID, Existing: true},
			fmt.Errorf("op=pool.enqueue: analysis already active for application: %w", domain.ErrConflict)
	} else if !isNotFound(err) {
		p.unreserve(applicationID)
		return EnqueueResult{}, fmt.Errorf("op=pool.enqueue: dedup lookup: %w", err)
	}

	now := time.Now().UTC()
	task := domain.AnalysisTask{
		TaskID:        domain.NewTaskID(applicationID, uuid.NewString()[:8]),
		ApplicationID: applicationID,
		WorkspaceID:   workspaceID,
		Priority:      priority,
		Status:        domain.TaskPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := p.d.Tasks.Create(ctx, task); err != nil {
		p.unreserve(applicationID)
		return EnqueueResult{}, fmt.Errorf("op=pool.enqueue: persist: %w", err)
	}

	entry := queueEntry{
		TaskID:        task.TaskID,
		ApplicationID: applicationID,
		WorkspaceID:   workspaceID,
		Priority:      priority,
		EnqueuedAt:    now,
	}
	p.mu.Lock()
	delete(p.reserved, applicationID)
	p.queue = append(p.queue, entry)
	sort.SliceStable(p.queue, func(i, j int) bool {
		return p.queue[i].Priority.Rank() < p.queue[j].Priority.Rank()
	})
	pos := p.positionLocked(task.TaskID)
	observability.QueueDepth.Set(float64(len(p.queue)))
	p.mu.Unlock()

	observability.TasksEnqueuedTotal.WithLabelValues(string(priority)).Inc()
	p.log.Info("task enqueued",
		slog.String("task_id", task.TaskID),
		slog.String("application_id", applicationID),
		slog.String("priority", string(priority)),
		slog.Int("position", pos))
	go p.processQueue()
	return EnqueueResult{TaskID: task.TaskID, Position: pos}, nil
}

// unreserve drops the in-flight enqueue reservation for an application.
func (p *Pool) unreserve(applicationID string) {
	p.mu.Lock()
	delete(p.reserved, applicationID)
	p.mu.Unlock()
}

// activeForLocked reports an in-memory pending, running, or retry-parked task
// for the application. Caller holds p.mu.
func (p *Pool) activeForLocked(applicationID string) (string, bool) {
	for _, e := range p.queue {
		if e.ApplicationID == applicationID {
			return e.TaskID, true
		}
	}
	for id, h := range p.handles {
		if h.entry.ApplicationID == applicationID {
			return id, true
		}
	}
	for id, pr := range p.parked {
		if pr.entry.ApplicationID == applicationID {
			return id, true
		}
	}
	return "", false
}

func (p *Pool) positionLocked(taskID string) int {
	for i, e := range p.queue {
		if e.TaskID == taskID {
			return i + 1
		}
	}
	return 0
}

// processQueue drains queued entries into free worker slots. Overlapping
// invocations are no-ops via the draining flag.
func (p *Pool) processQueue() {
	p.mu.Lock()
	if p.draining || !p.accepting {
		p.mu.Unlock()
		return
	}
	p.draining = true
	for len(p.queue) > 0 && len(p.handles) < p.cfg.MaxWorkers {
		e := p.queue[0]
		p.queue = p.queue[1:]
		ctx, cancel := context.WithCancel(p.baseCtx)
		h := &workerHandle{entry: e, ctx: ctx, cancel: cancel, startedAt: time.Now().UTC()}
		p.handles[e.TaskID] = h
		p.wg.Add(1)
		go p.startWorker(h)
	}
	observability.QueueDepth.Set(float64(len(p.queue)))
	observability.ActiveWorkers.Set(float64(len(p.handles)))
	p.draining = false
	p.mu.Unlock()
}

// startWorker runs the supervision loop for one task: mark processing, run
// the transcription pre-pass, spawn the worker goroutine, then react to its
// messages, the wall-clock timeout, or a termination signal.
func (p *Pool) startWorker(h *workerHandle) {
	defer p.wg.Done()
	defer p.releaseHandle(h)

	e := h.entry
	log := p.log.With(
		slog.String("task_id", e.TaskID),
		slog.String("application_id", e.ApplicationID))

	pctx, pcancel := persistCtx()
	err := p.d.Tasks.SetProcessing(pctx, e.TaskID)
	pcancel()
	if err != nil {
		log.Error("mark processing failed", slog.Any("error", err))
		p.handleTaskFailure(h, &domain.TaskError{
			Message: err.Error(),
			Code:    domain.CodeWorkerExited,
			Step:    "mark_processing",
		})
		return
	}
	p.emit(EventProgress, e, "transcription", "transcribing interview responses", "")

	if err := p.runPrepass(h.ctx, e.ApplicationID, log); err != nil {
		if h.ctx.Err() != nil {
			p.finishTerminated(h, log)
			return
		}
		log.Error("transcription pre-pass failed", slog.Any("error", err))
		p.handleTaskFailure(h, &domain.TaskError{
			Message: err.Error(),
			Code:    domain.CodeWorkerExited,
			Step:    "transcription",
		})
		return
	}

	msgs := make(chan workerMsg, 8)
	go p.runWorker(h.ctx, e, msgs)

	timer := time.NewTimer(p.cfg.TaskTimeout)
	defer timer.Stop()
	for {
		select {
		case m, ok := <-msgs:
			// A cancelled worker may still race a message (or the channel
			// close) against ctx.Done; termination wins.
			if h.ctx.Err() != nil {
				p.finishTerminated(h, log)
				return
			}
			if !ok {
				// Worker returned without a terminal message.
				p.handleTaskFailure(h, &domain.TaskError{
					Message: "worker exited before reporting a result",
					Code:    domain.CodeWorkerExited,
				})
				return
			}
			switch m.kind {
			case msgProgress:
				log.Debug("task progress", slog.String("stage", m.stage), slog.String("note", m.note))
				p.emit(EventProgress, e, m.stage, m.note, "")
			case msgCompleted:
				p.finishCompleted(h, m.result, log)
				return
			case msgError:
				p.handleTaskFailure(h, m.err)
				return
			}
		case <-timer.C:
			h.cancel()
			log.Warn("task timed out", slog.Duration("timeout", p.cfg.TaskTimeout))
			p.handleTaskFailure(h, &domain.TaskError{
				Message: fmt.Sprintf("analysis exceeded %s deadline", p.cfg.TaskTimeout),
				Code:    domain.CodeTimeout,
			})
			return
		case <-h.ctx.Done():
			p.finishTerminated(h, log)
			return
		}
	}
}

// finishCompleted persists the successful result and emits the completion
// event.
func (p *Pool) finishCompleted(h *workerHandle, result *domain.Analysis, log *slog.Logger) {
	e := h.entry
	ctx, cancel := persistCtx()
	defer cancel()
	if err := p.d.Tasks.SetCompleted(ctx, e.TaskID, result); err != nil {
		log.Error("persist completion failed", slog.Any("error", err))
	}
	observability.TasksCompletedTotal.Inc()
	log.Info("task completed", slog.Duration("elapsed", time.Since(h.startedAt)))
	p.emit(EventCompleted, e, "", "analysis completed", "")
}

// finishTerminated handles a context-cancelled worker. The reason was set by
// terminateWorker before cancel fired; shutdown and explicit cancellation
// both end in the cancelled status, distinguished by error code.
func (p *Pool) finishTerminated(h *workerHandle, log *slog.Logger) {
	p.mu.Lock()
	reason := h.reason
	p.mu.Unlock()

	code := domain.CodeCancelled
	msg := "task cancelled"
	if reason == reasonShutdown {
		code = domain.CodeShutdown
		msg = "pool shutting down"
	}
	e := h.entry
	ctx, cancel := persistCtx()
	defer cancel()
	if err := p.d.Tasks.SetCancelled(ctx, e.TaskID, &domain.TaskError{Message: msg, Code: code}); err != nil {
		log.Error("persist cancellation failed", slog.Any("error", err))
	}
	observability.TasksCancelledTotal.Inc()
	log.Info("task terminated", slog.String("reason", reason), slog.String("code", code))
	p.emit(EventCancelled, e, "", msg, code)
}

// handleTaskFailure decides retry vs terminal for a failed attempt and
// persists the decision before queue draining resumes.
func (p *Pool) handleTaskFailure(h *workerHandle, taskErr *domain.TaskError) {
	e := h.entry
	log := p.log.With(
		slog.String("task_id", e.TaskID),
		slog.String("code", taskErr.Code))

	ctx, cancel := persistCtx()
	defer cancel()

	// NO_RESPONSES is a legitimate business outcome, not a system fault.
	if taskErr.Code == domain.CodeNoResponses {
		result := &domain.Analysis{Success: false, Reason: taskErr.Message}
		if err := p.d.Tasks.SetCompleted(ctx, e.TaskID, result); err != nil {
			log.Error("persist no-responses completion failed", slog.Any("error", err))
		}
		observability.TasksCompletedTotal.Inc()
		log.Info("task completed without responses")
		p.emit(EventCompleted, e, "", taskErr.Message, taskErr.Code)
		return
	}

	if e.RetryCount < p.cfg.MaxRetries && taskErr.Retryable() {
		p.retryTask(h, taskErr, log)
		return
	}

	if err := p.d.Tasks.SetFailed(ctx, e.TaskID, taskErr); err != nil {
		log.Error("persist failure failed", slog.Any("error", err))
	}
	observability.TasksFailedTotal.WithLabelValues(taskErr.Code).Inc()
	log.Warn("task failed terminally",
		slog.String("message", taskErr.Message),
		slog.Int("retry_count", e.RetryCount))
	p.emit(EventFailed, e, taskErr.Step, taskErr.Message, taskErr.Code)
	p.emit(EventPermanentFailure, e, taskErr.Step, taskErr.Message, taskErr.Code)
}

// retryTask returns the task to pending with a bumped retry count and
// re-inserts it at the front of the queue after the fixed delay. Identifiers
// are re-validated against corrupted legacy records; when repair is
// impossible the task fails instead of retrying with bad data.
func (p *Pool) retryTask(h *workerHandle, taskErr *domain.TaskError, log *slog.Logger) {
	ctx, cancel := persistCtx()
	defer cancel()

	e := h.entry
	appID := e.ApplicationID
	if !domain.IsHexID(appID) {
		appID = domain.ApplicationIDFromTaskID(e.TaskID)
	}
	if appID == "" {
		p.failUnrepairable(e, taskErr, "applicationId unrecoverable", log)
		return
	}
	wsID := e.WorkspaceID
	if !domain.IsHexID(wsID) {
		app, err := p.d.Apps.Get(ctx, appID)
		if err != nil || !domain.IsHexID(app.WorkspaceID) {
			p.failUnrepairable(e, taskErr, "workspaceId unrecoverable", log)
			return
		}
		wsID = app.WorkspaceID
	}

	next := e.RetryCount + 1
	if err := p.d.Tasks.SetPendingRetry(ctx, e.TaskID, next, appID, wsID); err != nil {
		log.Error("persist retry failed", slog.Any("error", err))
		p.failUnrepairable(e, taskErr, "retry persistence failed", log)
		return
	}
	observability.TasksRetriedTotal.Inc()
	log.Info("task scheduled for retry",
		slog.Int("retry_count", next),
		slog.Duration("delay", p.cfg.RetryDelay),
		slog.String("message", taskErr.Message))
	p.emit(EventError, e, taskErr.Step, taskErr.Message, taskErr.Code)

	retry := queueEntry{
		TaskID:        e.TaskID,
		ApplicationID: appID,
		WorkspaceID:   wsID,
		Priority:      e.Priority,
		RetryCount:    next,
		EnqueuedAt:    time.Now().UTC(),
	}
	// Park the entry for the delay under the pool mutex so cancellation and
	// shutdown can still find it; requeueParked re-inserts it at the front.
	p.mu.Lock()
	pr := &parkedRetry{entry: retry}
	pr.timer = time.AfterFunc(p.cfg.RetryDelay, func() { p.requeueParked(e.TaskID) })
	p.parked[e.TaskID] = pr
	p.mu.Unlock()
}

// requeueParked moves a retry-parked task back to the front of the queue once
// its delay elapses. A task already removed from the parked set was cancelled
// or shut down in the meantime and stays terminal; the store record is
// re-checked as well, since a cancellation can land in the gap before the
// entry was parked.
func (p *Pool) requeueParked(taskID string) {
	p.mu.Lock()
	pr, ok := p.parked[taskID]
	if !ok || !p.accepting {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	ctx, cancel := persistCtx()
	task, err := p.d.Tasks.Get(ctx, taskID)
	cancel()
	if err != nil {
		p.mu.Lock()
		delete(p.parked, taskID)
		p.mu.Unlock()
		p.log.Error("retry requeue lookup failed", slog.String("task_id", taskID), slog.Any("error", err))
		return
	}

	p.mu.Lock()
	// The entry stayed parked during the lookup; cancel or shutdown may have
	// claimed it meanwhile.
	if _, ok := p.parked[taskID]; !ok || !p.accepting {
		p.mu.Unlock()
		return
	}
	delete(p.parked, taskID)
	if task.Status != domain.TaskPending {
		p.mu.Unlock()
		return
	}
	p.queue = append([]queueEntry{pr.entry}, p.queue...)
	observability.QueueDepth.Set(float64(len(p.queue)))
	p.mu.Unlock()
	p.processQueue()
}

func (p *Pool) failUnrepairable(e queueEntry, taskErr *domain.TaskError, detail string, log *slog.Logger) {
	ctx, cancel := persistCtx()
	defer cancel()
	terminal := &domain.TaskError{
		Message: detail + ": " + taskErr.Message,
		Code:    domain.CodeInvalidApplication,
		Step:    taskErr.Step,
	}
	if err := p.d.Tasks.SetFailed(ctx, e.TaskID, terminal); err != nil {
		log.Error("persist failure failed", slog.Any("error", err))
	}
	observability.TasksFailedTotal.WithLabelValues(terminal.Code).Inc()
	log.Error("retry repair impossible", slog.String("detail", detail))
	p.emit(EventPermanentFailure, e, taskErr.Step, terminal.Message, terminal.Code)
}

const (
	reasonCancelled = "cancelled"
	reasonShutdown  = "shutdown"
)

// terminateWorker signals the supervisor of taskID to stop with the given
// reason. Idempotent; reports whether a handle existed.
func (p *Pool) terminateWorker(taskID, reason string) bool {
	p.mu.Lock()
	h, ok := p.handles[taskID]
	if !ok {
		p.mu.Unlock()
		return false
	}
	if h.reason == "" {
		h.reason = reason
	}
	p.mu.Unlock()
	h.cancel()
	return true
}

// releaseHandle removes a finished task's handle and resumes draining. A
// termination signal that raced the retry decision is honored here: the
// freshly parked entry is withdrawn and the task cancelled.
func (p *Pool) releaseHandle(h *workerHandle) {
	h.cancel()
	p.mu.Lock()
	delete(p.handles, h.entry.TaskID)
	var late *parkedRetry
	if h.reason != "" {
		if pr, ok := p.parked[h.entry.TaskID]; ok {
			delete(p.parked, h.entry.TaskID)
			late = pr
		}
	}
	observability.ActiveWorkers.Set(float64(len(p.handles)))
	accepting := p.accepting
	p.mu.Unlock()
	if late != nil {
		late.timer.Stop()
		p.finishTerminated(h, p.log.With(slog.String("task_id", h.entry.TaskID)))
	}
	if accepting {
		p.processQueue()
	}
}

// CancelTask removes a pending task from the queue or terminates its running
// worker, then marks the record cancelled. Repeated calls are no-ops.
func (p *Pool) CancelTask(ctx context.Context, taskID string) error {
	p.mu.Lock()
	for i, e := range p.queue {
		if e.TaskID != taskID {
			continue
		}
		p.queue = append(p.queue[:i], p.queue[i+1:]...)
		observability.QueueDepth.Set(float64(len(p.queue)))
		p.mu.Unlock()
		if err := p.d.Tasks.SetCancelled(ctx, taskID, &domain.TaskError{Message: "task cancelled", Code: domain.CodeCancelled}); err != nil {
			return fmt.Errorf("op=pool.cancel: %w", err)
		}
		observability.TasksCancelledTotal.Inc()
		p.log.Info("queued task cancelled", slog.String("task_id", taskID))
		p.emit(EventCancelled, e, "", "task cancelled", domain.CodeCancelled)
		return nil
	}
	if pr, ok := p.parked[taskID]; ok {
		// Waiting out its retry delay; stop the timer so the entry never
		// re-enters the queue.
		delete(p.parked, taskID)
		p.mu.Unlock()
		pr.timer.Stop()
		if err := p.d.Tasks.SetCancelled(ctx, taskID, &domain.TaskError{Message: "task cancelled", Code: domain.CodeCancelled}); err != nil {
			return fmt.Errorf("op=pool.cancel: %w", err)
		}
		observability.TasksCancelledTotal.Inc()
		p.log.Info("retry-parked task cancelled", slog.String("task_id", taskID))
		p.emit(EventCancelled, pr.entry, "", "task cancelled", domain.CodeCancelled)
		return nil
	}
	p.mu.Unlock()

	if p.terminateWorker(taskID, reasonCancelled) {
		// The supervisor persists the cancelled state on teardown.
		return nil
	}

	task, err := p.d.Tasks.Get(ctx, taskID)
	if err != nil {
		return fmt.Errorf("op=pool.cancel: %w", err)
	}
	if task.Status.Terminal() {
		return nil
	}
	// Active in the store but unknown to this pool: an orphan from a previous
	// process. Cancel it directly.
	if err := p.d.Tasks.SetCancelled(ctx, taskID, &domain.TaskError{Message: "task cancelled", Code: domain.CodeCancelled}); err != nil {
		return fmt.Errorf("op=pool.cancel: %w", err)
	}
	observability.TasksCancelledTotal.Inc()
	return nil
}

// TaskSnapshot joins the persisted task record with live queue position and
// worker membership.
type TaskSnapshot struct {
	Task     domain.AnalysisTask
	Position int
	Active   bool
}

// TaskStatus returns a read-only snapshot of one task. It never mutates
// state.
func (p *Pool) TaskStatus(ctx context.Context, taskID string) (TaskSnapshot, error) {
	task, err := p.d.Tasks.Get(ctx, taskID)
	if err != nil {
		return TaskSnapshot{}, fmt.Errorf("op=pool.status: %w", err)
	}
	p.mu.Lock()
	pos := p.positionLocked(taskID)
	_, active := p.handles[taskID]
	p.mu.Unlock()
	return TaskSnapshot{Task: task, Position: pos, Active: active}, nil
}

// Stats aggregates live queue and pool counters.
type Stats struct {
	Queued       int                         `json:"queued"`
	Active       int                         `json:"active"`
	MaxWorkers   int                         `json:"max_workers"`
	MaxQueueSize int                         `json:"max_queue_size"`
	Accepting    bool                        `json:"accepting"`
	ByPriority   map[domain.TaskPriority]int `json:"by_priority"`
}

// QueueStats returns aggregate pool metrics for observability endpoints.
func (p *Pool) QueueStats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	by := map[domain.TaskPriority]int{}
	for _, e := range p.queue {
		by[e.Priority]++
	}
	return Stats{
		Queued:       len(p.queue),
		Active:       len(p.handles),
		MaxWorkers:   p.cfg.MaxWorkers,
		MaxQueueSize: p.cfg.MaxQueueSize,
		Accepting:    p.accepting,
		ByPriority:   by,
	}
}

// Shutdown stops accepting work, cancels every queued task with the SHUTDOWN
// code, terminates active workers, and waits for supervisors to finish or the
// context to expire.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.accepting {
		p.mu.Unlock()
		return nil
	}
	p.accepting = false
	queued := p.queue
	p.queue = nil
	for id, pr := range p.parked {
		pr.timer.Stop()
		queued = append(queued, pr.entry)
		delete(p.parked, id)
	}
	var active []string
	for id := range p.handles {
		active = append(active, id)
	}
	close(p.stopTick)
	observability.QueueDepth.Set(0)
	p.mu.Unlock()

	pctx, pcancel := persistCtx()
	defer pcancel()
	for _, e := range queued {
		taskErr := &domain.TaskError{Message: "pool shutting down", Code: domain.CodeShutdown}
		if err := p.d.Tasks.SetCancelled(pctx, e.TaskID, taskErr); err != nil {
			p.log.Error("cancel queued task failed", slog.String("task_id", e.TaskID), slog.Any("error", err))
		}
		observability.TasksCancelledTotal.Inc()
		p.emit(EventCancelled, e, "", "pool shutting down", domain.CodeShutdown)
	}
	for _, id := range active {
		p.terminateWorker(id, reasonShutdown)
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("op=pool.shutdown: workers still draining: %w", ctx.Err())
	}
	p.cancelBase()
	p.log.Info("pool stopped", slog.Int("cancelled_queued", len(queued)), slog.Int("terminated_active", len(active)))
	return err
}

// persistCtx returns a context for state writes that must succeed even while
// the triggering worker context is already cancelled.
func persistCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
