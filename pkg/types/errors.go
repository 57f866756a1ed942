package types

import (
	"fmt"
	"net/http"
)

// ErrorCode identifies a domain error kind. The set is closed: codes are
// the only error vocabulary that crosses the worker pipe, and the router
// rebuilds typed errors from them on the far side.
type ErrorCode string

const (
	CodeEnvNotFound     ErrorCode = "ENV_NOT_FOUND"
	CodeEnvNotReady     ErrorCode = "ENV_NOT_READY"
	CodeEnvClosed       ErrorCode = "ENV_CLOSED"
	CodeEpisodeFinished ErrorCode = "EPISODE_FINISHED"
	CodeTaskOutOfRange  ErrorCode = "TASK_OUT_OF_RANGE"
	CodeInvalidAction   ErrorCode = "INVALID_ACTION"
	CodeConfigMissing   ErrorCode = "CONFIG_MISSING"
	CodeInternalError   ErrorCode = "INTERNAL_ERROR"
)

// EnvError is a domain error with a stable code, an HTTP status, and a
// retryable flag. ENV_NOT_READY is the only retryable kind.
type EnvError struct {
	Code      ErrorCode
	Status    int
	Retryable bool
	Message   string
}

func (e *EnvError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// errorKind holds the fixed attributes of one taxonomy entry.
type errorKind struct {
	status    int
	retryable bool
}

var errorKinds = map[ErrorCode]errorKind{
	CodeEnvNotFound:     {status: http.StatusNotFound},
	CodeEnvNotReady:     {status: http.StatusServiceUnavailable, retryable: true},
	CodeEnvClosed:       {status: http.StatusConflict},
	CodeEpisodeFinished: {status: http.StatusConflict},
	CodeTaskOutOfRange:  {status: http.StatusBadRequest},
	CodeInvalidAction:   {status: http.StatusBadRequest},
	CodeConfigMissing:   {status: http.StatusServiceUnavailable},
	CodeInternalError:   {status: http.StatusInternalServerError},
}

// NewError builds an EnvError for a known code. Unknown codes collapse to
// INTERNAL_ERROR, which is what the router does with codes it cannot map.
func NewError(code ErrorCode, message string) *EnvError {
	kind, ok := errorKinds[code]
	if !ok {
		code = CodeInternalError
		kind = errorKinds[CodeInternalError]
	}
	return &EnvError{
		Code:      code,
		Status:    kind.status,
		Retryable: kind.retryable,
		Message:   message,
	}
}

// NewErrorf builds an EnvError with a formatted message.
func NewErrorf(code ErrorCode, format string, args ...any) *EnvError {
	return NewError(code, fmt.Sprintf(format, args...))
}

func ErrEnvNotFound(envID int) *EnvError {
	return NewErrorf(CodeEnvNotFound, "environment %d not found", envID)
}

func ErrEnvClosed(envID int) *EnvError {
	return NewErrorf(CodeEnvClosed, "environment %d has been closed", envID)
}

func ErrEpisodeFinished(envID int) *EnvError {
	return NewErrorf(CodeEpisodeFinished, "episode in environment %d has finished", envID)
}

func ErrEnvNotReady(message string) *EnvError {
	return NewError(CodeEnvNotReady, message)
}

func ErrInternal(err error) *EnvError {
	return NewError(CodeInternalError, err.Error())
}
