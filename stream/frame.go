package stream

import "encoding/json"

// FrameKind distinguishes incremental frames from the two terminal kinds.
type FrameKind int

const (
	FrameToken FrameKind = iota
	FrameDone
	FrameError
)

// Frame is one decoded unit of the generation protocol.
type Frame struct {
	Kind   FrameKind
	Token  string  // FrameToken
	Result *Result // FrameDone
	Error  string  // FrameError
}

// Terminal reports whether the frame ends the stream.
func (f Frame) Terminal() bool {
	return f.Kind != FrameToken
}

// Result is the finished payload of a generation.
type Result struct {
	Output         string `json:"-"`
	Code           string `json:"code,omitempty"`
	Summary        string `json:"summary,omitempty"`
	Repaired       bool   `json:"repaired,omitempty"`
	RepairAttempts int    `json:"repair_attempts,omitempty"`
}

type wireFrame struct {
	Token          *string `json:"token"`
	Done           bool    `json:"done"`
	Error          *string `json:"error"`
	Code           string  `json:"code"`
	Summary        string  `json:"summary"`
	Repaired       bool    `json:"repaired"`
	RepairAttempts int     `json:"repair_attempts"`
}

// parseFrame decodes one JSON payload. Payloads that are not JSON objects or
// carry none of token/done/error are rejected.
func parseFrame(payload []byte) (Frame, bool) {
	var w wireFrame
	if err := json.Unmarshal(payload, &w); err != nil {
		return Frame{}, false
	}
	switch {
	case w.Error != nil:
		return Frame{Kind: FrameError, Error: *w.Error}, true
	case w.Done:
		return Frame{Kind: FrameDone, Result: &Result{
			Code:           w.Code,
			Summary:        w.Summary,
			Repaired:       w.Repaired,
			RepairAttempts: w.RepairAttempts,
		}}, true
	case w.Token != nil:
		return Frame{Kind: FrameToken, Token: *w.Token}, true
	}
	return Frame{}, false
}
