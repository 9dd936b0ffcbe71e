package lifecycle

import (
	stderrors "errors"
	"fmt"
	"strings"

	apperrors "github.com/goliatone/go-errors"
)

const (
	ErrCodeValidation     = "VALIDATION_ERROR"
	ErrCodeInvalidState   = "INVALID_STATE"
	ErrCodeStepExecution  = "STEP_EXECUTION_FAILED"
	ErrCodeInfrastructure = "INFRASTRUCTURE_ERROR"
	ErrCodeNotFound       = "ACTION_NOT_FOUND"
)

var (
	ErrValidation = apperrors.New("validation failed", apperrors.CategoryValidation).
			WithTextCode(ErrCodeValidation)
	ErrInvalidState = apperrors.New("invalid state", apperrors.CategoryConflict).
			WithTextCode(ErrCodeInvalidState)
	ErrStepExecution = apperrors.New("step execution failed", apperrors.CategoryHandler).
				WithTextCode(ErrCodeStepExecution)
	ErrInfrastructure = apperrors.New("infrastructure failure", apperrors.CategoryExternal).
				WithTextCode(ErrCodeInfrastructure)
	ErrNotFound = apperrors.New("action not found", apperrors.CategoryBadInput).
			WithTextCode(ErrCodeNotFound)
)

const (
	msgCancelNotPending  = "Can only cancel pending actions"
	msgUpdateNotPending  = "Can only update pending actions"
	msgApprovalNotNeeded = "This action does not require approval"
	msgAlreadyApproved   = "Action has already been approved"
	msgAlreadyRejected   = "Action has already been rejected"
	msgApproveNotPending = "Can only approve pending actions"
	msgRejectNotPending  = "Can only reject pending actions"
	msgActionNotFoundFmt = "Action %s not found"
	msgStepFailedFmt     = "step %s failed: %s"
	msgInfrastructureFmt = "%s: %v"
)

func newKind(base *apperrors.Error, message string, source error, metadata map[string]any) *apperrors.Error {
	err := base.Clone()
	if text := strings.TrimSpace(message); text != "" {
		err.Message = text
	}
	if source != nil {
		err.Source = source
	}
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

func ValidationError(message string) error {
	return newKind(ErrValidation, message, nil, nil)
}

func InvalidStateError(message string) error {
	return newKind(ErrInvalidState, message, nil, nil)
}

func NotFoundError(id fmt.Stringer) error {
	return newKind(ErrNotFound, fmt.Sprintf(msgActionNotFoundFmt, id), nil, map[string]any{"action_id": id.String()})
}

// StepExecutionError records which step failed.
func StepExecutionError(step, reason string, source error) error {
	return newKind(ErrStepExecution, fmt.Sprintf(msgStepFailedFmt, step, reason), source, map[string]any{"step": step})
}

// InfrastructureError wraps a storage or network failure.
func InfrastructureError(op string, source error) error {
	return newKind(ErrInfrastructure, fmt.Sprintf(msgInfrastructureFmt, op, source), source, nil)
}

func errorCode(err error) string {
	var ge *apperrors.Error
	if stderrors.As(err, &ge) {
		return ge.TextCode
	}
	return ""
}

func IsValidation(err error) bool     { return errorCode(err) == ErrCodeValidation }
func IsInvalidState(err error) bool   { return errorCode(err) == ErrCodeInvalidState }
func IsStepExecution(err error) bool  { return errorCode(err) == ErrCodeStepExecution }
func IsInfrastructure(err error) bool { return errorCode(err) == ErrCodeInfrastructure }
func IsNotFound(err error) bool       { return errorCode(err) == ErrCodeNotFound }

// Message returns the human-readable reason carried by err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var ge *apperrors.Error
	if stderrors.As(err, &ge) {
		return ge.Message
	}
	return err.Error()
}
