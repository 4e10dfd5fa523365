package pool

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/fairyhunter13/ai-interview-analyzer/internal/domain"
)

type msgKind int

const (
	msgProgress msgKind = iota
	msgCompleted
	msgError
)

// workerMsg is the only channel between a worker goroutine and its
// supervisor. Exactly one terminal message (completed or error) per run.
type workerMsg struct {
	kind   msgKind
	stage  string
	note   string
	result *domain.Analysis
	err    *domain.TaskError
}

// runWorker executes the analysis body for one task: load the application,
// load its transcribed responses, score them. It never writes task state; all
// outcomes flow back as messages. Panics become a retryable error message.
func (p *Pool) runWorker(ctx context.Context, e queueEntry, msgs chan<- workerMsg) {
	defer close(msgs)
	defer func() {
		if r := recover(); r != nil {
			send(ctx, msgs, workerMsg{kind: msgError, err: &domain.TaskError{
				Message: fmt.Sprintf("worker panic: %v", r),
				Code:    domain.CodeWorkerCrashed,
				Stack:   string(debug.Stack()),
			}})
		}
	}()

	send(ctx, msgs, workerMsg{kind: msgProgress, stage: "loading", note: "loading application"})
	app, err := p.d.Apps.Get(ctx, e.ApplicationID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalidArgument) {
			send(ctx, msgs, workerMsg{kind: msgError, err: &domain.TaskError{
				Message: fmt.Sprintf("application %s not found", e.ApplicationID),
				Code:    domain.CodeInvalidApplication,
				Step:    "load_application",
			}})
			return
		}
		send(ctx, msgs, workerMsg{kind: msgError, err: &domain.TaskError{
			Message: err.Error(),
			Code:    domain.CodeWorkerExited,
			Step:    "load_application",
		}})
		return
	}

	responses, err := p.d.Responses.ListByApplication(ctx, e.ApplicationID)
	if err != nil {
		send(ctx, msgs, workerMsg{kind: msgError, err: &domain.TaskError{
			Message: err.Error(),
			Code:    domain.CodeWorkerExited,
			Step:    "load_responses",
		}})
		return
	}
	transcribed := responses[:0:0]
	for _, r := range responses {
		if r.HasTranscript() {
			transcribed = append(transcribed, r)
		}
	}
	if len(transcribed) == 0 {
		send(ctx, msgs, workerMsg{kind: msgError, err: &domain.TaskError{
			Message: "no interview responses to analyze",
			Code:    domain.CodeNoResponses,
			Step:    "load_responses",
		}})
		return
	}

	send(ctx, msgs, workerMsg{kind: msgProgress, stage: "scoring",
		note: fmt.Sprintf("scoring %d responses", len(transcribed))})
	analysis, err := p.d.Scorer.Analyze(ctx, app, transcribed)
	if err != nil {
		send(ctx, msgs, workerMsg{kind: msgError, err: &domain.TaskError{
			Message: err.Error(),
			Code:    domain.CodeScoringFailed,
			Step:    "scoring",
		}})
		return
	}
	send(ctx, msgs, workerMsg{kind: msgCompleted, result: analysis})
}

// send delivers a message unless the supervisor already abandoned the task.
func send(ctx context.Context, msgs chan<- workerMsg, m workerMsg) {
	select {
	case msgs <- m:
	case <-ctx.Done():
	}
}
