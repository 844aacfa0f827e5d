package message

import (
	"fmt"

	"github.com/jeeves-cluster-organization/kernelsidecar/sidecar/transport"
	"github.com/jeeves-cluster-organization/kernelsidecar/sidecar/typeutil"
)

func newBase(f transport.Frame) base {
	return base{
		H:   parseHeader(f.Header),
		P:   parseHeader(f.ParentHeader),
		M:   f.Metadata,
		Buf: f.Buffers,
	}
}

// Parse validates a raw frame into one of the typed Message variants.
// Unknown msg_type values return a *sidecarerrors.ParseError-wrapped error
// (wrapping is left to the caller, which knows the channel/context); Parse
// itself just reports what went wrong.
func Parse(f transport.Frame) (Message, error) {
	b := newBase(f)
	c := f.Content

	switch f.MsgType {
	case "status":
		state, _ := typeutil.SafeString(c["execution_state"])
		return Status{base: b, Content: StatusContent{ExecutionState: ExecutionState(state)}}, nil

	case "execute_input":
		return ExecuteInput{base: b, Content: ExecuteInputContent{
			Code:           typeutil.SafeStringDefault(c["code"], ""),
			ExecutionCount: typeutil.SafeIntDefault(c["execution_count"], 0),
		}}, nil

	case "execute_result":
		return ExecuteResult{base: b, Content: ExecuteResultContent{
			ExecutionCount: typeutil.SafeIntDefault(c["execution_count"], 0),
			Data:           typeutil.SafeMapStringAnyDefault(c["data"], map[string]any{}),
			Metadata:       typeutil.SafeMapStringAnyDefault(c["metadata"], map[string]any{}),
		}}, nil

	case "stream":
		return Stream{base: b, Content: StreamContent{
			Name: StreamName(typeutil.SafeStringDefault(c["name"], "")),
			Text: typeutil.SafeStringDefault(c["text"], ""),
		}}, nil

	case "display_data":
		return DisplayData{base: b, Content: parseDisplayDataContent(c)}, nil

	case "update_display_data":
		return UpdateDisplayData{base: b, Content: parseDisplayDataContent(c)}, nil

	case "error":
		return ErrorMsg{base: b, Content: ErrorContent{
			EName:     typeutil.SafeStringDefault(c["ename"], ""),
			EValue:    typeutil.SafeStringDefault(c["evalue"], ""),
			Traceback: toStringSlice(c["traceback"]),
		}}, nil

	case "execute_reply":
		content, err := parseExecuteReplyContent(c)
		if err != nil {
			return nil, err
		}
		return ExecuteReply{base: b, Content: content}, nil

	case "kernel_info_reply":
		return KernelInfoReply{base: b, Content: parseKernelInfoReplyContent(c)}, nil

	case "inspect_reply":
		return InspectReply{base: b, Content: InspectReplyContent{
			Status:   typeutil.SafeStringDefault(c["status"], ""),
			Found:    typeutil.SafeBoolDefault(c["found"], false),
			Data:     typeutil.SafeMapStringAnyDefault(c["data"], map[string]any{}),
			Metadata: typeutil.SafeMapStringAnyDefault(c["metadata"], map[string]any{}),
		}}, nil

	case "complete_reply":
		return CompleteReply{base: b, Content: CompleteReplyContent{
			Status:      typeutil.SafeStringDefault(c["status"], ""),
			Matches:     toStringSlice(c["matches"]),
			CursorStart: typeutil.SafeIntDefault(c["cursor_start"], 0),
			CursorEnd:   typeutil.SafeIntDefault(c["cursor_end"], 0),
			Metadata:    typeutil.SafeMapStringAnyDefault(c["metadata"], map[string]any{}),
		}}, nil

	case "history_reply":
		return HistoryReply{base: b, Content: HistoryReplyContent{
			Status:  typeutil.SafeStringDefault(c["status"], ""),
			History: toAnySliceSlice(c["history"]),
		}}, nil

	case "is_complete_reply":
		return IsCompleteReply{base: b, Content: IsCompleteReplyContent{
			Status: typeutil.SafeStringDefault(c["status"], ""),
			Indent: typeutil.SafeStringDefault(c["indent"], ""),
		}}, nil

	case "comm_info_reply":
		return CommInfoReply{base: b, Content: CommInfoReplyContent{
			Comms: toCommsMap(c["comms"]),
		}}, nil

	case "interrupt_reply":
		return InterruptReply{base: b}, nil

	case "shutdown_reply":
		return ShutdownReply{base: b, Content: ShutdownReplyContent{
			Status:  typeutil.SafeStringDefault(c["status"], ""),
			Restart: typeutil.SafeBoolDefault(c["restart"], false),
		}}, nil

	case "debug_reply":
		content, err := parseDebugReplyContent(c)
		if err != nil {
			return nil, err
		}
		return DebugReply{base: b, Content: content}, nil

	case "input_request":
		return InputRequest{base: b, Content: InputRequestContent{
			Prompt:   typeutil.SafeStringDefault(c["prompt"], ""),
			Password: typeutil.SafeBoolDefault(c["password"], false),
		}}, nil

	case "comm_open":
		return CommOpen{base: b, Content: CommOpenContent{
			CommID:     typeutil.SafeStringDefault(c["comm_id"], ""),
			TargetName: typeutil.SafeStringDefault(c["target_name"], ""),
			Data:       c["data"],
		}}, nil

	case "comm_msg":
		return CommMsg{base: b, Content: CommMsgContent{
			CommID: typeutil.SafeStringDefault(c["comm_id"], ""),
			Data:   c["data"],
		}}, nil

	case "comm_close":
		return CommClose{base: b, Content: CommCloseContent{
			CommID: typeutil.SafeStringDefault(c["comm_id"], ""),
			Data:   c["data"],
		}}, nil

	default:
		return nil, fmt.Errorf("unknown msg_type %q", f.MsgType)
	}
}

func parseDisplayDataContent(c map[string]any) DisplayDataContent {
	return DisplayDataContent{
		Data:      typeutil.SafeMapStringAnyDefault(c["data"], map[string]any{}),
		Metadata:  typeutil.SafeMapStringAnyDefault(c["metadata"], map[string]any{}),
		Transient: typeutil.SafeMapStringAnyDefault(c["transient"], map[string]any{}),
	}
}

func parseExecuteReplyContent(c map[string]any) (ExecuteReplyContent, error) {
	status, _ := typeutil.SafeString(c["status"])
	switch CellStatus(status) {
	case CellOK:
		return ExecuteReplyOk{
			ExecutionCount:  typeutil.SafeIntDefault(c["execution_count"], 0),
			Payload:         toAnySlice(c["payload"]),
			UserExpressions: typeutil.SafeMapStringAnyDefault(c["user_expressions"], map[string]any{}),
		}, nil
	case CellError:
		return ExecuteReplyError{
			ExecutionCount:  typeutil.SafeIntDefault(c["execution_count"], 0),
			Payload:         toAnySlice(c["payload"]),
			UserExpressions: typeutil.SafeMapStringAnyDefault(c["user_expressions"], map[string]any{}),
			EName:           typeutil.SafeStringDefault(c["ename"], ""),
			EValue:          typeutil.SafeStringDefault(c["evalue"], ""),
			Traceback:       toStringSlice(c["traceback"]),
			EngineInfo:      typeutil.SafeMapStringAnyDefault(c["engine_info"], map[string]any{}),
		}, nil
	case CellAborted:
		return ExecuteReplyAborted{}, nil
	default:
		return nil, fmt.Errorf("execute_reply with unknown content.status %q", status)
	}
}

func parseKernelInfoReplyContent(c map[string]any) KernelInfoReplyContent {
	li := typeutil.SafeMapStringAnyDefault(c["language_info"], map[string]any{})
	var debugger *bool
	if d, ok := typeutil.SafeBool(c["debugger"]); ok {
		debugger = &d
	}
	return KernelInfoReplyContent{
		Banner:                typeutil.SafeStringDefault(c["banner"], ""),
		HelpLinks:             toMapSlice(c["help_links"]),
		Implementation:        typeutil.SafeStringDefault(c["implementation"], ""),
		ImplementationVersion: typeutil.SafeStringDefault(c["implementation_version"], ""),
		LanguageInfo: LanguageInfo{
			Name:              typeutil.SafeStringDefault(li["name"], ""),
			Version:           typeutil.SafeStringDefault(li["version"], ""),
			Mimetype:          typeutil.SafeStringDefault(li["mimetype"], ""),
			FileExtension:     typeutil.SafeStringDefault(li["file_extension"], ""),
			PygmentsLexer:     typeutil.SafeStringDefault(li["pygments_lexer"], ""),
			CodemirrorMode:    li["codemirror_mode"],
			NbconvertExporter: typeutil.SafeStringDefault(li["nbconvert_exporter"], ""),
		},
		ProtocolVersion: typeutil.SafeStringDefault(c["protocol_version"], ""),
		Status:          typeutil.SafeStringDefault(c["status"], ""),
		Debugger:        debugger,
	}
}

func parseDebugReplyContent(c map[string]any) (DebugReplyContent, error) {
	command, _ := typeutil.SafeString(c["command"])
	success := typeutil.SafeBoolDefault(c["success"], false)
	body := typeutil.SafeMapStringAnyDefault(c["body"], map[string]any{})
	switch command {
	case "dumpCell":
		return DumpCellReply{
			Success:    success,
			SourcePath: typeutil.SafeStringDefault(body["sourcePath"], ""),
		}, nil
	case "debugInfo":
		return DebugInfoReply{
			Success:        success,
			IsStarted:      typeutil.SafeBoolDefault(body["isStarted"], false),
			HashMethod:     typeutil.SafeStringDefault(body["hashMethod"], ""),
			HashSeed:       typeutil.SafeStringDefault(body["hashSeed"], ""),
			Breakpoints:    toBreakpointsGroups(body["breakpoints"]),
			StoppedThreads: toIntSlice(body["stoppedThreads"]),
		}, nil
	case "inspectVariables":
		return InspectVariablesReply{
			Variables: toDebugVariables(body["variables"]),
		}, nil
	case "richInspectVariables":
		return RichInspectVariablesReply{
			Data: body["data"],
		}, nil
	default:
		return nil, fmt.Errorf("debug_reply with unknown command %q", command)
	}
}

func toDebugVariables(v any) []DebugVariable {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]DebugVariable, 0, len(items))
	for _, item := range items {
		m, ok := typeutil.SafeMapStringAny(item)
		if !ok {
			continue
		}
		out = append(out, DebugVariable{
			Name:               typeutil.SafeStringDefault(m["name"], ""),
			Value:              typeutil.SafeStringDefault(m["value"], ""),
			Type:               typeutil.SafeStringDefault(m["type"], ""),
			VariablesReference: typeutil.SafeIntDefault(m["variablesReference"], 0),
		})
	}
	return out
}

func toCommsMap(v any) map[string]map[string]any {
	raw, ok := typeutil.SafeMapStringAny(v)
	if !ok {
		return map[string]map[string]any{}
	}
	out := make(map[string]map[string]any, len(raw))
	for k, val := range raw {
		out[k] = typeutil.SafeMapStringAnyDefault(val, map[string]any{})
	}
	return out
}

func toBreakpointsGroups(v any) []BreakpointsGroup {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]BreakpointsGroup, 0, len(items))
	for _, item := range items {
		m, ok := typeutil.SafeMapStringAny(item)
		if !ok {
			continue
		}
		out = append(out, BreakpointsGroup{
			Source:      typeutil.SafeStringDefault(m["source"], ""),
			Breakpoints: toStringSlice(m["breakpoints"]),
		})
	}
	return out
}

func toStringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		if s, ok := v.([]string); ok {
			return s
		}
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := typeutil.SafeString(item); ok {
			out = append(out, s)
		}
	}
	return out
}

func toIntSlice(v any) []int {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]int, 0, len(items))
	for _, item := range items {
		if i, ok := typeutil.SafeInt(item); ok {
			out = append(out, i)
		}
	}
	return out
}

func toAnySlice(v any) []any {
	items, ok := v.([]any)
	if !ok {
		return []any{}
	}
	return items
}

func toAnySliceSlice(v any) [][]any {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([][]any, 0, len(items))
	for _, item := range items {
		if inner, ok := item.([]any); ok {
			out = append(out, inner)
		}
	}
	return out
}

func toMapSlice(v any) []map[string]any {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		out = append(out, typeutil.SafeMapStringAnyDefault(item, map[string]any{}))
	}
	return out
}
