package pool

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// EventType names an observable pool lifecycle event.
type EventType string

const (
	EventProgress         EventType = "progress"
	EventCompleted        EventType = "completed"
	EventError            EventType = "error"
	EventFailed           EventType = "failed"
	EventPermanentFailure EventType = "permanentFailure"
	EventCancelled        EventType = "cancelled"
)

// Event is emitted by the pool as tasks move through their lifecycle.
// Subscribers (websocket fan-out, logging sinks) receive a copy; events carry
// no mutable pool state.
type Event struct {
	ID            string    `json:"id"`
	Type          EventType `json:"type"`
	TaskID        string    `json:"task_id"`
	ApplicationID string    `json:"application_id"`
	WorkspaceID   string    `json:"workspace_id,omitempty"`
	Stage         string    `json:"stage,omitempty"`
	Message       string    `json:"message,omitempty"`
	Code          string    `json:"code,omitempty"`
	At            time.Time `json:"at"`
}

// Subscribe registers a listener invoked for every emitted event. Listeners
// run on the emitting goroutine and must not block for long.
func (p *Pool) Subscribe(fn func(Event)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

func (p *Pool) emit(typ EventType, e queueEntry, stage, message, code string) {
	ev := Event{
		ID:            ulid.Make().String(),
		Type:          typ,
		TaskID:        e.TaskID,
		ApplicationID: e.ApplicationID,
		WorkspaceID:   e.WorkspaceID,
		Stage:         stage,
		Message:       message,
		Code:          code,
		At:            time.Now().UTC(),
	}
	p.mu.Lock()
	ls := make([]func(Event), len(p.listeners))
	copy(ls, p.listeners)
	p.mu.Unlock()
	for _, fn := range ls {
		fn(ev)
	}
}
