// Package request builds outbound request records (spec.md §3 "Request
// record") and holds the static reply table (spec.md §6) used by
// sidecar/action to know which inbound msg_type completes a request.
package request

import (
	"time"

	"github.com/google/uuid"

	"github.com/jeeves-cluster-organization/kernelsidecar/sidecar/message"
	"github.com/jeeves-cluster-organization/kernelsidecar/sidecar/transport"
)

// Request is the outbound counterpart to message.Message: header, content,
// metadata, parent_header, and the channel it must be sent on.
type Request struct {
	Header       message.Header
	Content      map[string]any
	Metadata     map[string]any
	ParentHeader message.Header
	Channel      transport.ChannelName
}

// MsgID and MsgType are read off the header for convenience at call sites
// that only have a Request in hand (e.g. Client.Send).
func (r Request) MsgID() string   { return r.Header.MsgID }
func (r Request) MsgType() string { return r.Header.MsgType }

// Frame renders the Request into the dict-like shape a transport.Channel
// sends.
func (r Request) Frame() transport.Frame {
	content := r.Content
	if content == nil {
		content = map[string]any{}
	}
	metadata := r.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return transport.Frame{
		Content:      content,
		Header:       r.Header.Serialize(),
		Metadata:     metadata,
		MsgID:        r.Header.MsgID,
		MsgType:      r.Header.MsgType,
		ParentHeader: map[string]any{},
	}
}

// ReplyMsgType is the static table from spec.md §6/§4.3: the inbound
// msg_type whose arrival (together with idle) completes an Action started
// by this request type. The bool return is false for request types with no
// expected reply (the three comm requests), matching
// original_source/.../actions.py's REPLY_MSG_TYPES.
func ReplyMsgType(requestMsgType string) (string, bool) {
	reply, known := replyTable[requestMsgType]
	return reply, known && reply != ""
}

// IsKnownRequestType reports whether requestMsgType has an entry in the
// reply table at all (including the null-reply comm requests), mirroring
// actions.py's ValueError when an unrecognized request type is used.
func IsKnownRequestType(requestMsgType string) bool {
	_, known := replyTable[requestMsgType]
	return known
}

var replyTable = map[string]string{
	"kernel_info_request": "kernel_info_reply",
	"execute_request":     "execute_reply",
	"inspect_request":     "inspect_reply",
	"complete_request":    "complete_reply",
	"history_request":     "history_reply",
	"is_complete_request": "is_complete_reply",
	"comm_info_request":   "comm_info_reply",
	"shutdown_request":    "shutdown_reply",
	"interrupt_request":   "interrupt_reply",
	"debug_request":       "debug_reply",
	"comm_open":           "",
	"comm_msg":            "",
	"comm_close":          "",
}

// Builder mints fresh request records sharing one session id and username,
// mirroring original_source/.../models/requests.py's module-level SESSION_ID
// and RequestHeader defaults.
type Builder struct {
	Session  string
	Username string
}

// NewBuilder creates a Builder with a fresh session id, matching
// requests.py's `SESSION_ID = str(uuid.uuid4())` computed once per process.
func NewBuilder() *Builder {
	return &Builder{
		Session:  uuid.NewString(),
		Username: "kernel-sidecar",
	}
}

func (b *Builder) header(msgType string) message.Header {
	return message.Header{
		MsgID:    uuid.NewString(),
		MsgType:  msgType,
		Session:  b.Session,
		Username: b.Username,
		Version:  "5.3",
		Date:     time.Now().UTC().Format(time.RFC3339Nano),
	}
}

func (b *Builder) KernelInfo() Request {
	return Request{Header: b.header("kernel_info_request"), Channel: transport.Shell}
}

// ExecuteOptions carries the execute_request knobs with spec-mandated
// defaults (spec.md §4.4: "silent=false, store_history=true,
// allow_stdin=true, stop_on_error=true for execute").
type ExecuteOptions struct {
	Silent          bool
	StoreHistory    bool
	UserExpressions map[string]any
	AllowStdin      bool
	StopOnError     bool
}

func DefaultExecuteOptions() ExecuteOptions {
	return ExecuteOptions{StoreHistory: true, AllowStdin: true, StopOnError: true}
}

func (b *Builder) Execute(code string, opts ExecuteOptions) Request {
	userExpr := opts.UserExpressions
	if userExpr == nil {
		userExpr = map[string]any{}
	}
	return Request{
		Header: b.header("execute_request"),
		Content: map[string]any{
			"code":             code,
			"silent":           opts.Silent,
			"store_history":    opts.StoreHistory,
			"user_expressions": userExpr,
			"allow_stdin":      opts.AllowStdin,
			"stop_on_error":    opts.StopOnError,
		},
		Channel: transport.Shell,
	}
}

func (b *Builder) Inspect(code string, cursorPos, detailLevel int) Request {
	return Request{
		Header: b.header("inspect_request"),
		Content: map[string]any{
			"code":         code,
			"cursor_pos":   cursorPos,
			"detail_level": detailLevel,
		},
		Channel: transport.Shell,
	}
}

// Complete defaults cursor_pos to len(code) when cursorPos < 0, matching
// client.py's complete_request.
func (b *Builder) Complete(code string, cursorPos int) Request {
	if cursorPos < 0 {
		cursorPos = len(code)
	}
	return Request{
		Header:  b.header("complete_request"),
		Content: map[string]any{"code": code, "cursor_pos": cursorPos},
		Channel: transport.Shell,
	}
}

type HistoryOptions struct {
	Output         bool
	Raw            bool
	HistAccessType string
	Session        int
	Start          int
	Stop           int
	N              int
	Pattern        string
	Unique         bool
}

func DefaultHistoryOptions() HistoryOptions {
	return HistoryOptions{HistAccessType: "range"}
}

func (b *Builder) History(opts HistoryOptions) Request {
	return Request{
		Header: b.header("history_request"),
		Content: map[string]any{
			"output":           opts.Output,
			"raw":              opts.Raw,
			"hist_access_type": opts.HistAccessType,
			"session":          opts.Session,
			"start":            opts.Start,
			"stop":             opts.Stop,
			"n":                opts.N,
			"pattern":          opts.Pattern,
			"unique":           opts.Unique,
		},
		Channel: transport.Shell,
	}
}

func (b *Builder) IsComplete(code string) Request {
	return Request{
		Header:  b.header("is_complete_request"),
		Content: map[string]any{"code": code},
		Channel: transport.Shell,
	}
}

func (b *Builder) CommInfo(targetName string) Request {
	return Request{
		Header:  b.header("comm_info_request"),
		Content: map[string]any{"target_name": targetName},
		Channel: transport.Shell,
	}
}

func (b *Builder) CommOpen(targetName string, data map[string]any) Request {
	if data == nil {
		data = map[string]any{}
	}
	return Request{
		Header: b.header("comm_open"),
		Content: map[string]any{
			"target_name": targetName,
			"data":        data,
			"comm_id":     uuid.NewString(),
		},
		Channel: transport.Shell,
	}
}

func (b *Builder) CommMsg(commID string, data map[string]any) Request {
	if data == nil {
		data = map[string]any{}
	}
	return Request{
		Header:  b.header("comm_msg"),
		Content: map[string]any{"comm_id": commID, "data": data},
		Channel: transport.Shell,
	}
}

func (b *Builder) CommClose(commID string, data map[string]any) Request {
	if data == nil {
		data = map[string]any{}
	}
	return Request{
		Header:  b.header("comm_close"),
		Content: map[string]any{"comm_id": commID, "data": data},
		Channel: transport.Shell,
	}
}

func (b *Builder) Interrupt() Request {
	return Request{Header: b.header("interrupt_request"), Channel: transport.Control}
}

func (b *Builder) Shutdown(restart bool) Request {
	return Request{
		Header:  b.header("shutdown_request"),
		Content: map[string]any{"restart": restart},
		Channel: transport.Control,
	}
}

// DebugDumpCell and the other Debug* builders below each send one
// debug_request shape; content is nested/discriminated on `command`, matching
// original_source/.../models/requests.py's DebugRequestContent union.
func (b *Builder) DebugDumpCell(code string) Request {
	return Request{
		Header: b.header("debug_request"),
		Content: map[string]any{
			"type":      "request",
			"command":   "dumpCell",
			"arguments": map[string]any{"code": code},
		},
		Channel: transport.Control,
	}
}

func (b *Builder) DebugInfo() Request {
	return Request{
		Header:  b.header("debug_request"),
		Content: map[string]any{"type": "request", "command": "debugInfo"},
		Channel: transport.Control,
	}
}

func (b *Builder) DebugInspectVariables() Request {
	return Request{
		Header:  b.header("debug_request"),
		Content: map[string]any{"type": "request", "command": "inspectVariables"},
		Channel: transport.Control,
	}
}

func (b *Builder) DebugRichInspectVariables(variablesReference int) Request {
	return Request{
		Header: b.header("debug_request"),
		Content: map[string]any{
			"type":      "request",
			"command":   "richInspectVariables",
			"arguments": map[string]any{"variablesReference": variablesReference},
		},
		Channel: transport.Control,
	}
}

func (b *Builder) InputReply(value string) Request {
	return Request{
		Header:  b.header("input_reply"),
		Content: map[string]any{"value": value},
		Channel: transport.Stdin,
	}
}
