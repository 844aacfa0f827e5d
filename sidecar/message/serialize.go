package message

import (
	"fmt"

	"github.com/jeeves-cluster-organization/kernelsidecar/sidecar/transport"
)

// Serialize is the inverse of Parse. Round-trip requirement (spec.md §4.1):
// Parse(Serialize(m)) must equal m for every supported variant, with
// default-populated optional fields normalized on both sides — Parse
// fills missing map fields with empty maps (missing slice fields stay nil),
// and Serialize writes nil maps and slices as empty ones.
func Serialize(m Message) (transport.Frame, error) {
	f := transport.Frame{
		Header:       m.Header().Serialize(),
		ParentHeader: m.ParentHeader().Serialize(),
		Metadata:     m.Metadata(),
		MsgID:        m.Header().MsgID,
		MsgType:      m.MsgType(),
		Buffers:      m.Buffers(),
	}
	if f.Metadata == nil {
		f.Metadata = map[string]any{}
	}
	if f.Buffers == nil {
		f.Buffers = [][]byte{}
	}

	switch v := m.(type) {
	case Status:
		f.Content = map[string]any{"execution_state": string(v.Content.ExecutionState)}
	case ExecuteInput:
		f.Content = map[string]any{"code": v.Content.Code, "execution_count": v.Content.ExecutionCount}
	case ExecuteResult:
		f.Content = map[string]any{
			"execution_count": v.Content.ExecutionCount,
			"data":            orEmptyMap(v.Content.Data),
			"metadata":        orEmptyMap(v.Content.Metadata),
		}
	case Stream:
		f.Content = map[string]any{"name": string(v.Content.Name), "text": v.Content.Text}
	case DisplayData:
		f.Content = serializeDisplayDataContent(v.Content)
	case UpdateDisplayData:
		f.Content = serializeDisplayDataContent(v.Content)
	case ErrorMsg:
		f.Content = map[string]any{
			"ename":     v.Content.EName,
			"evalue":    v.Content.EValue,
			"traceback": orEmptySlice(v.Content.Traceback),
		}
	case ExecuteReply:
		f.Content = serializeExecuteReplyContent(v.Content)
	case KernelInfoReply:
		f.Content = serializeKernelInfoReplyContent(v.Content)
	case InspectReply:
		f.Content = map[string]any{
			"status":   v.Content.Status,
			"found":    v.Content.Found,
			"data":     orEmptyMap(v.Content.Data),
			"metadata": orEmptyMap(v.Content.Metadata),
		}
	case CompleteReply:
		f.Content = map[string]any{
			"status":       v.Content.Status,
			"matches":      orEmptySlice(v.Content.Matches),
			"cursor_start": v.Content.CursorStart,
			"cursor_end":   v.Content.CursorEnd,
			"metadata":     orEmptyMap(v.Content.Metadata),
		}
	case HistoryReply:
		history := make([]any, len(v.Content.History))
		for i, h := range v.Content.History {
			history[i] = h
		}
		f.Content = map[string]any{"status": v.Content.Status, "history": history}
	case IsCompleteReply:
		f.Content = map[string]any{"status": v.Content.Status, "indent": v.Content.Indent}
	case CommInfoReply:
		comms := make(map[string]any, len(v.Content.Comms))
		for k, val := range v.Content.Comms {
			comms[k] = val
		}
		f.Content = map[string]any{"comms": comms}
	case InterruptReply:
		f.Content = map[string]any{}
	case ShutdownReply:
		f.Content = map[string]any{"status": v.Content.Status, "restart": v.Content.Restart}
	case DebugReply:
		content, err := serializeDebugReplyContent(v.Content)
		if err != nil {
			return transport.Frame{}, err
		}
		f.Content = content
	case InputRequest:
		f.Content = map[string]any{"prompt": v.Content.Prompt, "password": v.Content.Password}
	case CommOpen:
		f.Content = map[string]any{
			"comm_id":     v.Content.CommID,
			"target_name": v.Content.TargetName,
			"data":        v.Content.Data,
		}
	case CommMsg:
		f.Content = map[string]any{"comm_id": v.Content.CommID, "data": v.Content.Data}
	case CommClose:
		f.Content = map[string]any{"comm_id": v.Content.CommID, "data": v.Content.Data}
	default:
		return transport.Frame{}, fmt.Errorf("serialize: unsupported message type %T", m)
	}
	return f, nil
}

func serializeDisplayDataContent(c DisplayDataContent) map[string]any {
	return map[string]any{
		"data":      orEmptyMap(c.Data),
		"metadata":  orEmptyMap(c.Metadata),
		"transient": orEmptyMap(c.Transient),
	}
}

func serializeExecuteReplyContent(c ExecuteReplyContent) map[string]any {
	switch v := c.(type) {
	case ExecuteReplyOk:
		return map[string]any{
			"status":           string(CellOK),
			"execution_count":  v.ExecutionCount,
			"payload":          orEmptyAnySlice(v.Payload),
			"user_expressions": orEmptyMap(v.UserExpressions),
		}
	case ExecuteReplyError:
		return map[string]any{
			"status":           string(CellError),
			"execution_count":  v.ExecutionCount,
			"payload":          orEmptyAnySlice(v.Payload),
			"user_expressions": orEmptyMap(v.UserExpressions),
			"ename":            v.EName,
			"evalue":           v.EValue,
			"traceback":        orEmptySlice(v.Traceback),
			"engine_info":      orEmptyMap(v.EngineInfo),
		}
	default:
		return map[string]any{"status": string(CellAborted)}
	}
}

func serializeKernelInfoReplyContent(c KernelInfoReplyContent) map[string]any {
	helpLinks := make([]any, len(c.HelpLinks))
	for i, h := range c.HelpLinks {
		helpLinks[i] = h
	}
	out := map[string]any{
		"banner":                 c.Banner,
		"help_links":             helpLinks,
		"implementation":         c.Implementation,
		"implementation_version": c.ImplementationVersion,
		"language_info": map[string]any{
			"name":                c.LanguageInfo.Name,
			"version":             c.LanguageInfo.Version,
			"mimetype":            c.LanguageInfo.Mimetype,
			"file_extension":      c.LanguageInfo.FileExtension,
			"pygments_lexer":      c.LanguageInfo.PygmentsLexer,
			"codemirror_mode":     c.LanguageInfo.CodemirrorMode,
			"nbconvert_exporter":  c.LanguageInfo.NbconvertExporter,
		},
		"protocol_version": c.ProtocolVersion,
		"status":           c.Status,
	}
	if c.Debugger != nil {
		out["debugger"] = *c.Debugger
	}
	return out
}

func serializeDebugReplyContent(c DebugReplyContent) (map[string]any, error) {
	switch v := c.(type) {
	case DumpCellReply:
		return map[string]any{
			"type":    "response",
			"command": "dumpCell",
			"success": v.Success,
			"body":    map[string]any{"sourcePath": v.SourcePath},
		}, nil
	case DebugInfoReply:
		breakpoints := make([]any, len(v.Breakpoints))
		for i, bp := range v.Breakpoints {
			breakpoints[i] = map[string]any{"source": bp.Source, "breakpoints": orEmptySlice(bp.Breakpoints)}
		}
		stopped := make([]any, len(v.StoppedThreads))
		for i, t := range v.StoppedThreads {
			stopped[i] = t
		}
		return map[string]any{
			"type":    "response",
			"command": "debugInfo",
			"success": v.Success,
			"body": map[string]any{
				"isStarted":      v.IsStarted,
				"hashMethod":     v.HashMethod,
				"hashSeed":       v.HashSeed,
				"breakpoints":    breakpoints,
				"stoppedThreads": stopped,
			},
		}, nil
	case InspectVariablesReply:
		variables := make([]any, len(v.Variables))
		for i, dv := range v.Variables {
			variables[i] = map[string]any{
				"name":               dv.Name,
				"value":              dv.Value,
				"type":               dv.Type,
				"variablesReference": dv.VariablesReference,
			}
		}
		return map[string]any{
			"type":    "response",
			"command": "inspectVariables",
			"success": true,
			"body":    map[string]any{"variables": variables},
		}, nil
	case RichInspectVariablesReply:
		return map[string]any{
			"type":    "response",
			"command": "richInspectVariables",
			"success": true,
			"body":    map[string]any{"data": v.Data},
		}, nil
	default:
		return nil, fmt.Errorf("serialize: unsupported debug_reply content %T", c)
	}
}

func orEmptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func orEmptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func orEmptyAnySlice(s []any) []any {
	if s == nil {
		return []any{}
	}
	return s
}
