package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fairyhunter13/ai-interview-analyzer/internal/domain"
)

const appID = "64f1b2c3d4e5f60718293a4b"

func TestIsHexID(t *testing.T) {
	t.Parallel()
	assert.True(t, domain.IsHexID(appID))
	assert.True(t, domain.IsHexID("ABCDEF0123456789abcdef01"))
	assert.False(t, domain.IsHexID(""))
	assert.False(t, domain.IsHexID("too-short"))
	assert.False(t, domain.IsHexID("zzf1b2c3d4e5f60718293a4b"))
	assert.False(t, domain.IsHexID(appID+"00"))
}

func TestNewTaskID_RoundTrip(t *testing.T) {
	t.Parallel()
	id := domain.NewTaskID(appID, "a1b2c3d4")
	assert.Equal(t, "task_"+appID+"_a1b2c3d4", id)
	assert.Equal(t, appID, domain.ApplicationIDFromTaskID(id))
}

func TestApplicationIDFromTaskID_Malformed(t *testing.T) {
	t.Parallel()
	assert.Empty(t, domain.ApplicationIDFromTaskID("not-a-task-id"))
	assert.Empty(t, domain.ApplicationIDFromTaskID("task_"+appID))
	assert.Empty(t, domain.ApplicationIDFromTaskID("task_corrupted_suffix"))
}
