// Package message models the discriminated union of inbound kernel messages
// (spec.md §3, §4.1) and provides Parse/Serialize between the dict-like
// transport.Frame shape and these typed variants. The discriminator is
// always the outer msg_type; unknown variants fail loudly (ParseError)
// rather than degrade silently, per spec.md §4.1.
package message

// Message is satisfied by every inbound variant below. Handlers type-switch
// on the concrete type rather than on a string tag, per the REDESIGN FLAGS
// note in spec.md §9 ("replace attribute-name dispatch with an explicit
// interface/pattern-match table").
type Message interface {
	Header() Header
	ParentHeader() Header
	MsgType() string
	Metadata() map[string]any
	Buffers() [][]byte
}

// base is embedded by every concrete message type and supplies the common
// envelope accessors.
type base struct {
	H   Header
	P   Header
	M   map[string]any
	Buf [][]byte
}

func (b base) Header() Header           { return b.H }
func (b base) ParentHeader() Header     { return b.P }
func (b base) MsgType() string          { return b.H.MsgType }
func (b base) Metadata() map[string]any { return b.M }
func (b base) Buffers() [][]byte        { return b.Buf }

// Kernel execution state, carried on `status` messages.
type ExecutionState string

const (
	Busy     ExecutionState = "busy"
	Idle     ExecutionState = "idle"
	Starting ExecutionState = "starting"
)

type StatusContent struct {
	ExecutionState ExecutionState
}

type Status struct {
	base
	Content StatusContent
}

type ExecuteInputContent struct {
	Code           string
	ExecutionCount int
}

type ExecuteInput struct {
	base
	Content ExecuteInputContent
}

type ExecuteResultContent struct {
	ExecutionCount int
	Data           map[string]any
	Metadata       map[string]any
}

type ExecuteResult struct {
	base
	Content ExecuteResultContent
}

// StreamName is the output stream a `stream` message was written to.
type StreamName string

const (
	Stdout StreamName = "stdout"
	Stderr StreamName = "stderr"
)

type StreamContent struct {
	Name StreamName
	Text string
}

type Stream struct {
	base
	Content StreamContent
}

type DisplayDataContent struct {
	Data      map[string]any
	Metadata  map[string]any
	Transient map[string]any
}

type DisplayData struct {
	base
	Content DisplayDataContent
}

type UpdateDisplayData struct {
	base
	Content DisplayDataContent
}

type ErrorContent struct {
	EName     string
	EValue    string
	Traceback []string
}

// ErrorMsg is the `error` iopub message (named to avoid colliding with the
// error builtin).
type ErrorMsg struct {
	base
	Content ErrorContent
}

// CellStatus discriminates the three execute_reply shapes (spec.md §4.1:
// "execute_reply uses a secondary discriminator on content.status").
type CellStatus string

const (
	CellOK       CellStatus = "ok"
	CellError    CellStatus = "error"
	CellAborted  CellStatus = "aborted"
)

// ExecuteReplyContent is satisfied by the three execute_reply shapes.
type ExecuteReplyContent interface {
	CellStatus() CellStatus
}

type ExecuteReplyOk struct {
	ExecutionCount  int
	Payload         []any
	UserExpressions map[string]any
}

func (ExecuteReplyOk) CellStatus() CellStatus { return CellOK }

type ExecuteReplyError struct {
	ExecutionCount  int
	Payload         []any
	UserExpressions map[string]any
	EName           string
	EValue          string
	Traceback       []string
	EngineInfo      map[string]any
}

func (ExecuteReplyError) CellStatus() CellStatus { return CellError }

type ExecuteReplyAborted struct{}

func (ExecuteReplyAborted) CellStatus() CellStatus { return CellAborted }

type ExecuteReply struct {
	base
	Content ExecuteReplyContent
}

type LanguageInfo struct {
	Name              string
	Version           string
	Mimetype          string
	FileExtension     string
	PygmentsLexer     string
	CodemirrorMode    any
	NbconvertExporter string
}

type KernelInfoReplyContent struct {
	Banner                 string
	HelpLinks               []map[string]any
	Implementation         string
	ImplementationVersion  string
	LanguageInfo           LanguageInfo
	ProtocolVersion        string
	Status                 string
	Debugger               *bool
}

type KernelInfoReply struct {
	base
	Content KernelInfoReplyContent
}

type InspectReplyContent struct {
	Status   string
	Found    bool
	Data     map[string]any
	Metadata map[string]any
}

type InspectReply struct {
	base
	Content InspectReplyContent
}

type CompleteReplyContent struct {
	Status      string
	Matches     []string
	CursorStart int
	CursorEnd   int
	Metadata    map[string]any
}

type CompleteReply struct {
	base
	Content CompleteReplyContent
}

type HistoryReplyContent struct {
	Status  string
	History [][]any
}

type HistoryReply struct {
	base
	Content HistoryReplyContent
}

type IsCompleteReplyContent struct {
	Status string
	Indent string
}

type IsCompleteReply struct {
	base
	Content IsCompleteReplyContent
}

type CommInfoReplyContent struct {
	Comms map[string]map[string]any
}

type CommInfoReply struct {
	base
	Content CommInfoReplyContent
}

type InterruptReply struct {
	base
}

type ShutdownReplyContent struct {
	Status  string
	Restart bool
}

type ShutdownReply struct {
	base
	Content ShutdownReplyContent
}

// DebugReplyContent is discriminated on `command`, nested rather than
// hoisted, per spec.md §4.1.
type DebugReplyContent interface {
	Command() string
}

type DumpCellReply struct {
	Success    bool
	SourcePath string
}

func (DumpCellReply) Command() string { return "dumpCell" }

type BreakpointsGroup struct {
	Source      string
	Breakpoints []string
}

type DebugInfoReply struct {
	Success        bool
	IsStarted      bool
	HashMethod     string
	HashSeed       string
	Breakpoints    []BreakpointsGroup
	StoppedThreads []int
}

func (DebugInfoReply) Command() string { return "debugInfo" }

type DebugVariable struct {
	Name               string
	Value              string
	Type               string
	VariablesReference int
}

type InspectVariablesReply struct {
	Variables []DebugVariable
}

func (InspectVariablesReply) Command() string { return "inspectVariables" }

type RichInspectVariablesReply struct {
	Data any
}

func (RichInspectVariablesReply) Command() string { return "richInspectVariables" }

type DebugReply struct {
	base
	Content DebugReplyContent
}

type InputRequestContent struct {
	Prompt   string
	Password bool
}

type InputRequest struct {
	base
	Content InputRequestContent
}

type CommOpenContent struct {
	CommID     string
	TargetName string
	Data       any
}

type CommOpen struct {
	base
	Content CommOpenContent
}

type CommMsgContent struct {
	CommID string
	Data   any
}

type CommMsg struct {
	base
	Content CommMsgContent
}

type CommCloseContent struct {
	CommID string
	Data   any
}

type CommClose struct {
	base
	Content CommCloseContent
}
