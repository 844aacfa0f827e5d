package message

import (
	"github.com/jeeves-cluster-organization/kernelsidecar/sidecar/typeutil"
)

// Header mirrors the six contractual fields spec.md §3 puts on both
// `header` and `parent_header`.
type Header struct {
	MsgID    string
	MsgType  string
	Session  string
	Username string
	Version  string
	Date     string
}

func parseHeader(m map[string]any) Header {
	return Header{
		MsgID:    typeutil.SafeStringDefault(m["msg_id"], ""),
		MsgType:  typeutil.SafeStringDefault(m["msg_type"], ""),
		Session:  typeutil.SafeStringDefault(m["session"], ""),
		Username: typeutil.SafeStringDefault(m["username"], ""),
		Version:  typeutil.SafeStringDefault(m["version"], ""),
		Date:     typeutil.SafeStringDefault(m["date"], ""),
	}
}

// Serialize renders the header back to its dict-like wire shape.
func (h Header) Serialize() map[string]any {
	return map[string]any{
		"msg_id":   h.MsgID,
		"msg_type": h.MsgType,
		"session":  h.Session,
		"username": h.Username,
		"version":  h.Version,
		"date":     h.Date,
	}
}
