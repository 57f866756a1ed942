package ipc

import (
	"encoding/json"

	"github.com/brick-pid/simplegym/pkg/types"
)

// Command names an operation a worker can execute.
type Command string

const (
	CommandCreate   Command = "CREATE"
	CommandStep     Command = "STEP"
	CommandReset    Command = "RESET"
	CommandClose    Command = "CLOSE"
	CommandShutdown Command = "SHUTDOWN"
	CommandPing     Command = "PING"
)

// NoEnvID is the env_id sentinel for commands that target no environment
// (PING, SHUTDOWN).
const NoEnvID = -1

// InitRequestID is the reserved request id of the readiness message a
// worker sends once, before entering its serve loop.
const InitRequestID = "__init__"

// Request is one framed request on a worker pipe. Requests and responses
// are strictly 1:1 and FIFO on a given pipe.
type Request struct {
	RequestID string             `json:"request_id"`
	Command   Command            `json:"command"`
	EnvID     int                `json:"env_id"`
	Action    string             `json:"action,omitempty"`
	Params    types.ResetOptions `json:"params,omitempty"`
}

// Response answers exactly one Request; RequestID must match.
type Response struct {
	RequestID    string          `json:"request_id"`
	Success      bool            `json:"success"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	ErrorCode    string          `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Retryable    bool            `json:"retryable,omitempty"`
}

// OK builds a success response carrying payload.
func OK(requestID string, payload any) Response {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Fail(requestID, types.ErrInternal(err))
	}
	return Response{RequestID: requestID, Success: true, Payload: raw}
}

// Fail builds a failure response from a typed error, preserving its code
// across the pipe.
func Fail(requestID string, envErr *types.EnvError) Response {
	return Response{
		RequestID:    requestID,
		Success:      false,
		ErrorCode:    string(envErr.Code),
		ErrorMessage: envErr.Message,
		Retryable:    envErr.Retryable,
	}
}

// Err reconstructs the typed error carried by a failure response. The code
// is the discriminator; unknown codes collapse to INTERNAL_ERROR. The
// retryable flag is taken from the taxonomy, not the wire, so a corrupted
// flag cannot widen retry semantics.
func (r *Response) Err() *types.EnvError {
	if r.Success {
		return nil
	}
	msg := r.ErrorMessage
	if msg == "" {
		msg = "unknown error"
	}
	return types.NewError(types.ErrorCode(r.ErrorCode), msg)
}

// DecodePayload unmarshals the response payload into v.
func (r *Response) DecodePayload(v any) error {
	return json.Unmarshal(r.Payload, v)
}
