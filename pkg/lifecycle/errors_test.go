package lifecycle

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestErrorKinds(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w", InvalidStateError(msgCancelNotPending))
	assert.True(t, IsInvalidState(wrapped))
	assert.False(t, IsValidation(wrapped))
	assert.Equal(t, msgCancelNotPending, Message(wrapped))

	source := errors.New("connection refused")
	infra := InfrastructureError("list due actions", source)
	assert.True(t, IsInfrastructure(infra))
	assert.Contains(t, Message(infra), "connection refused")

	step := StepExecutionError(StepApplyLicense, "no seats left", nil)
	assert.True(t, IsStepExecution(step))
	assert.Equal(t, "step apply_license failed: no seats left", Message(step))

	assert.True(t, IsNotFound(NotFoundError(uuid.New())))
	assert.Equal(t, "plain", Message(errors.New("plain")))
	assert.Equal(t, "", Message(nil))
}
