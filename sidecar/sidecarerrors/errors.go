// Package sidecarerrors defines the error taxonomy from spec.md §7: each
// failure mode the sidecar can hit is its own type so callers can
// errors.As/errors.Is their way to the right handling, the way
// commbus/errors.go structures CommBusError and its siblings.
package sidecarerrors

import "fmt"

// TransportError wraps a failure sending or receiving on a channel.
type TransportError struct {
	Channel string
	Cause   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error on %s channel: %v", e.Channel, e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

func NewTransportError(channel string, cause error) *TransportError {
	return &TransportError{Channel: channel, Cause: cause}
}

// ParseError is raised when an inbound frame does not match any known
// message variant. It must be loud: an unparsed reply can strand an Action.
type ParseError struct {
	MsgType string
	Cause   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unparseable message of type %q: %v", e.MsgType, e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

func NewParseError(msgType string, cause error) *ParseError {
	return &ParseError{MsgType: msgType, Cause: cause}
}

// UntrackedMessageError is raised for a frame whose parent_header.msg_id is
// not present in the registry — typically another client talking to the
// same kernel.
type UntrackedMessageError struct {
	ParentMsgID string
	MsgType     string
}

func (e *UntrackedMessageError) Error() string {
	return fmt.Sprintf("untracked message %q for unknown parent %q", e.MsgType, e.ParentMsgID)
}

func NewUntrackedMessageError(parentMsgID, msgType string) *UntrackedMessageError {
	return &UntrackedMessageError{ParentMsgID: parentMsgID, MsgType: msgType}
}

// OrphanMessageError is raised for a frame with no parent header at all
// (the canonical example being the "starting" status).
type OrphanMessageError struct {
	MsgType string
}

func (e *OrphanMessageError) Error() string {
	return fmt.Sprintf("orphan message %q with no parent_header", e.MsgType)
}

func NewOrphanMessageError(msgType string) *OrphanMessageError {
	return &OrphanMessageError{MsgType: msgType}
}

// HandlerTimeoutError is raised when a single message's handler pipeline
// exceeds the configured handler timeout.
type HandlerTimeoutError struct {
	MsgID   string
	MsgType string
}

func (e *HandlerTimeoutError) Error() string {
	return fmt.Sprintf("handler pipeline timed out for %q (msg_id=%s)", e.MsgType, e.MsgID)
}

func NewHandlerTimeoutError(msgID, msgType string) *HandlerTimeoutError {
	return &HandlerTimeoutError{MsgID: msgID, MsgType: msgType}
}

// HandlerExceptionError wraps an error returned from a user handler.
// Dispatch continues to subsequent handlers regardless. Panics are not
// recovered, so they are not wrapped here.
type HandlerExceptionError struct {
	MsgType string
	Cause   error
}

func (e *HandlerExceptionError) Error() string {
	return fmt.Sprintf("handler for %q failed: %v", e.MsgType, e.Cause)
}

func (e *HandlerExceptionError) Unwrap() error { return e.Cause }

func NewHandlerExceptionError(msgType string, cause error) *HandlerExceptionError {
	return &HandlerExceptionError{MsgType: msgType, Cause: cause}
}

// ResubmissionError is raised when an Action is submitted twice, or a
// msg_id is already registered. Fatal to the call, not the process.
type ResubmissionError struct {
	MsgID string
}

func (e *ResubmissionError) Error() string {
	return fmt.Sprintf("action for msg_id %q already sent or registered", e.MsgID)
}

func NewResubmissionError(msgID string) *ResubmissionError {
	return &ResubmissionError{MsgID: msgID}
}

// CommTargetNotFoundError is raised to a comm_open caller when the kernel
// rejects the comm (observed via a comm_close for the same comm_id; Stderr
// holds the text of a stderr stream seen during the same Action, if any).
type CommTargetNotFoundError struct {
	TargetName string
	CommID     string
	Stderr     string
}

func (e *CommTargetNotFoundError) Error() string {
	return fmt.Sprintf("comm target %q not found: %s", e.TargetName, e.Stderr)
}

func NewCommTargetNotFoundError(targetName, commID, stderr string) *CommTargetNotFoundError {
	return &CommTargetNotFoundError{TargetName: targetName, CommID: commID, Stderr: stderr}
}

// SafetyNetTriggeredError records that an Action's safety net force-completed
// it after idle was seen but the expected reply never arrived.
type SafetyNetTriggeredError struct {
	MsgID        string
	ExpectedType string
}

func (e *SafetyNetTriggeredError) Error() string {
	return fmt.Sprintf(
		"safety net fired for msg_id %q: expected reply %q never arrived", e.MsgID, e.ExpectedType,
	)
}

func NewSafetyNetTriggeredError(msgID, expectedType string) *SafetyNetTriggeredError {
	return &SafetyNetTriggeredError{MsgID: msgID, ExpectedType: expectedType}
}
