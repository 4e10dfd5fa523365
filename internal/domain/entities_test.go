package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fairyhunter13/ai-interview-analyzer/internal/domain"
)

func TestTaskStatus_Terminal(t *testing.T) {
	t.Parallel()
	assert.False(t, domain.TaskPending.Terminal())
	assert.False(t, domain.TaskProcessing.Terminal())
	assert.True(t, domain.TaskCompleted.Terminal())
	assert.True(t, domain.TaskFailed.Terminal())
	assert.True(t, domain.TaskCancelled.Terminal())
}

func TestTaskPriority_Rank(t *testing.T) {
	t.Parallel()
	assert.Less(t, domain.PriorityHigh.Rank(), domain.PriorityNormal.Rank())
	assert.Less(t, domain.PriorityNormal.Rank(), domain.PriorityLow.Rank())
	// Unknown priorities sort with normal.
	assert.Equal(t, domain.PriorityNormal.Rank(), domain.TaskPriority("").Rank())
}

func TestTaskError_Retryable(t *testing.T) {
	t.Parallel()
	cases := []struct {
		code      string
		retryable bool
	}{
		{domain.CodeTimeout, false},
		{domain.CodeCancelled, false},
		{domain.CodeShutdown, false},
		{domain.CodeNoResponses, false},
		{domain.CodeInvalidApplication, false},
		{domain.CodeWorkerCrashed, true},
		{domain.CodeScoringFailed, true},
		{"", true},
	}
	for _, tc := range cases {
		e := &domain.TaskError{Code: tc.code, Message: "x"}
		assert.Equal(t, tc.retryable, e.Retryable(), "code %q", tc.code)
	}
}

func TestTaskError_Error(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "timeout: worker exceeded deadline", (&domain.TaskError{Code: domain.CodeTimeout, Message: "worker exceeded deadline"}).Error())
	assert.Equal(t, "boom", (&domain.TaskError{Message: "boom"}).Error())
	var nilErr *domain.TaskError
	assert.Empty(t, nilErr.Error())
}

func TestInterviewResponse_HasTranscript(t *testing.T) {
	t.Parallel()
	r := domain.InterviewResponse{TranscriptionStatus: domain.TranscriptionCompleted, TranscriptText: "hello"}
	assert.True(t, r.HasTranscript())
	r.TranscriptText = ""
	assert.False(t, r.HasTranscript())
	r = domain.InterviewResponse{TranscriptionStatus: domain.TranscriptionFailed, TranscriptText: "partial"}
	assert.False(t, r.HasTranscript())
}
