package request_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeeves-cluster-organization/kernelsidecar/sidecar/request"
	"github.com/jeeves-cluster-organization/kernelsidecar/sidecar/transport"
)

func TestReplyMsgType_KnownRequestsHaveReplies(t *testing.T) {
	cases := map[string]string{
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
	}
	for reqType, wantReply := range cases {
		reply, ok := request.ReplyMsgType(reqType)
		assert.True(t, ok, "%s should have a reply", reqType)
		assert.Equal(t, wantReply, reply)
	}
}

func TestReplyMsgType_CommRequestsHaveNoReply(t *testing.T) {
	for _, reqType := range []string{"comm_open", "comm_msg", "comm_close"} {
		reply, ok := request.ReplyMsgType(reqType)
		assert.False(t, ok)
		assert.Empty(t, reply)
	}
}

func TestReplyMsgType_UnknownRequestIsNotFound(t *testing.T) {
	reply, ok := request.ReplyMsgType("frobnicate_request")
	assert.False(t, ok)
	assert.Empty(t, reply)
}

func TestIsKnownRequestType(t *testing.T) {
	assert.True(t, request.IsKnownRequestType("comm_open"))
	assert.True(t, request.IsKnownRequestType("execute_request"))
	assert.False(t, request.IsKnownRequestType("frobnicate_request"))
}

func TestBuilder_SharesSessionAcrossRequestsButMintsFreshMsgIDs(t *testing.T) {
	b := request.NewBuilder()
	r1 := b.KernelInfo()
	r2 := b.KernelInfo()

	assert.Equal(t, b.Session, r1.Header.Session)
	assert.Equal(t, r1.Header.Session, r2.Header.Session)
	assert.NotEmpty(t, r1.Header.MsgID)
	assert.NotEqual(t, r1.Header.MsgID, r2.Header.MsgID)
}

func TestBuilder_KernelInfo_UsesShellChannel(t *testing.T) {
	b := request.NewBuilder()
	r := b.KernelInfo()
	assert.Equal(t, transport.Shell, r.Channel)
	assert.Equal(t, "kernel_info_request", r.MsgType())
	assert.Equal(t, r.Header.MsgID, r.MsgID())
}

func TestDefaultExecuteOptions(t *testing.T) {
	opts := request.DefaultExecuteOptions()
	assert.False(t, opts.Silent)
	assert.True(t, opts.StoreHistory)
	assert.True(t, opts.AllowStdin)
	assert.True(t, opts.StopOnError)
}

func TestBuilder_Execute_FillsNilUserExpressions(t *testing.T) {
	b := request.NewBuilder()
	r := b.Execute("1+1", request.DefaultExecuteOptions())
	assert.Equal(t, transport.Shell, r.Channel)
	assert.Equal(t, map[string]any{}, r.Content["user_expressions"])
	assert.Equal(t, "1+1", r.Content["code"])
}

func TestBuilder_Complete_DefaultsCursorPosToEndOfCode(t *testing.T) {
	b := request.NewBuilder()
	r := b.Complete("foo.bar", -1)
	assert.Equal(t, len("foo.bar"), r.Content["cursor_pos"])
}

func TestBuilder_Complete_HonorsExplicitCursorPos(t *testing.T) {
	b := request.NewBuilder()
	r := b.Complete("foo.bar", 3)
	assert.Equal(t, 3, r.Content["cursor_pos"])
}

func TestDefaultHistoryOptions(t *testing.T) {
	opts := request.DefaultHistoryOptions()
	assert.Equal(t, "range", opts.HistAccessType)
}

func TestBuilder_Interrupt_UsesControlChannel(t *testing.T) {
	b := request.NewBuilder()
	r := b.Interrupt()
	assert.Equal(t, transport.Control, r.Channel)
	assert.Equal(t, "interrupt_request", r.MsgType())
}

func TestBuilder_Shutdown_CarriesRestartFlag(t *testing.T) {
	b := request.NewBuilder()
	r := b.Shutdown(true)
	assert.Equal(t, transport.Control, r.Channel)
	assert.Equal(t, true, r.Content["restart"])
}

func TestBuilder_CommOpen_MintsFreshCommIDPerCall(t *testing.T) {
	b := request.NewBuilder()
	r1 := b.CommOpen("jupyter.widget", nil)
	r2 := b.CommOpen("jupyter.widget", nil)

	id1, _ := r1.Content["comm_id"].(string)
	id2, _ := r2.Content["comm_id"].(string)
	assert.NotEmpty(t, id1)
	assert.NotEqual(t, id1, id2)
	assert.Equal(t, map[string]any{}, r1.Content["data"])
}

func TestBuilder_DebugDumpCell_NestsArguments(t *testing.T) {
	b := request.NewBuilder()
	r := b.DebugDumpCell("print(1)")
	assert.Equal(t, "dumpCell", r.Content["command"])
	args, ok := r.Content["arguments"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "print(1)", args["code"])
}

func TestBuilder_CommInfo_UsesShellChannel(t *testing.T) {
	b := request.NewBuilder()
	r := b.CommInfo("test_comm")
	assert.Equal(t, transport.Shell, r.Channel)
	assert.Equal(t, "test_comm", r.Content["target_name"])
	assert.Equal(t, "comm_info_request", r.Header.MsgType)
}

func TestBuilder_DebugRichInspectVariables_NestsArguments(t *testing.T) {
	b := request.NewBuilder()
	r := b.DebugRichInspectVariables(7)
	assert.Equal(t, "richInspectVariables", r.Content["command"])
	assert.Equal(t, transport.Control, r.Channel)
	args, ok := r.Content["arguments"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 7, args["variablesReference"])
}

func TestBuilder_DebugInspectVariables_UsesControlChannel(t *testing.T) {
	b := request.NewBuilder()
	r := b.DebugInspectVariables()
	assert.Equal(t, "inspectVariables", r.Content["command"])
	assert.Equal(t, transport.Control, r.Channel)
}

func TestBuilder_InputReply_UsesStdinChannel(t *testing.T) {
	b := request.NewBuilder()
	r := b.InputReply("42")
	assert.Equal(t, transport.Stdin, r.Channel)
	assert.Equal(t, "42", r.Content["value"])
}

func TestRequest_Frame_FillsNilContentAndMetadataWithEmptyMaps(t *testing.T) {
	b := request.NewBuilder()
	r := b.KernelInfo()
	frame := r.Frame()

	assert.Equal(t, map[string]any{}, frame.Content)
	assert.Equal(t, map[string]any{}, frame.Metadata)
	assert.Equal(t, r.Header.MsgID, frame.MsgID)
	assert.Equal(t, "kernel_info_request", frame.MsgType)
	assert.Equal(t, map[string]any{}, frame.ParentHeader)
	assert.Equal(t, r.Header.MsgID, frame.Header["msg_id"])
}
