package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsValidTransition(t *testing.T) {
	allowed := map[Transition]bool{
		{ActionPending, ActionInProgress}:   true,
		{ActionPending, ActionCancelled}:    true,
		{ActionInProgress, ActionCompleted}: true,
		{ActionInProgress, ActionFailed}:    true,
		{ActionInProgress, ActionPending}:   true,
	}

	for _, from := range ActionStatuses {
		for _, to := range ActionStatuses {
			want := allowed[Transition{From: from, To: to}]
			assert.Equal(t, want, IsValidTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	assert.False(t, ActionPending.Terminal())
	assert.False(t, ActionInProgress.Terminal())
	assert.True(t, ActionCompleted.Terminal())
	assert.True(t, ActionFailed.Terminal())
	assert.True(t, ActionCancelled.Terminal())
}

func TestActionTypeValid(t *testing.T) {
	assert.True(t, ActionOnboard.Valid())
	assert.True(t, ActionRestore.Valid())
	assert.False(t, ActionType("archive").Valid())
}

func TestApprovalSatisfied(t *testing.T) {
	now := time.Now()
	action := &ScheduledAction{}
	assert.True(t, action.ApprovalSatisfied())

	action.RequiresApproval = true
	assert.False(t, action.ApprovalSatisfied())
	assert.False(t, action.ApprovalResolved())

	action.ApprovedAt = &now
	assert.True(t, action.ApprovalSatisfied())
	assert.True(t, action.ApprovalResolved())
}

func TestCloneIsolatesConfig(t *testing.T) {
	action := &ScheduledAction{ActionConfig: JSONB{"groups": "eng"}}
	cp := action.Clone()
	cp.ActionConfig["groups"] = "ops"
	assert.Equal(t, "eng", action.ActionConfig["groups"])
}

func TestNewActionEvent(t *testing.T) {
	now := time.Now()
	action := &ScheduledAction{ActionType: ActionOffboard, Status: ActionFailed, RetryCount: 2, LastError: "boom", ScheduledFor: now}
	event := NewActionEvent(EventActionResolved, action, now)

	assert.Equal(t, OutboxStatusPending, event.Status)
	assert.Equal(t, "failed", event.Payload["status"])
	assert.Equal(t, 2, event.Payload["retry_count"])
	assert.Equal(t, "boom", event.Payload["error_message"])
}
