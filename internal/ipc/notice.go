package ipc

import (
	"encoding/json"
	"fmt"
)

// MaxNoticeSize bounds a single notice line on the client side.
const MaxNoticeSize = 64 << 10

// Event is one piece of the daemon-to-client stream: either command output
// or a notice.
type Event struct {
	Output []byte
	Notice *Notice
}

type noticeState int

const (
	stateOutput noticeState = iota
	stateEscape
	stateNotice
)

// NoticeDecoder splits the daemon-to-client stream into output bytes and
// notices across arbitrary read boundaries.
type NoticeDecoder struct {
	state noticeState
	line  []byte
}

// Feed consumes the next chunk and returns the events it completes.
func (d *NoticeDecoder) Feed(p []byte) ([]Event, error) {
	var events []Event
	var out []byte

	flush := func() {
		if len(out) > 0 {
			events = append(events, Event{Output: out})
			out = nil
		}
	}

	for _, b := range p {
		switch d.state {
		case stateOutput:
			if b == Delimiter {
				d.state = stateEscape
				continue
			}
			out = append(out, b)
		case stateEscape:
			if b == Delimiter {
				out = append(out, Delimiter)
				d.state = stateOutput
				continue
			}
			d.state = stateNotice
			d.line = append(d.line[:0], b)
			if b == '\n' {
				return events, fmt.Errorf("empty notice")
			}
		case stateNotice:
			if b != '\n' {
				if len(d.line) >= MaxNoticeSize {
					return events, fmt.Errorf("notice exceeds %d bytes", MaxNoticeSize)
				}
				d.line = append(d.line, b)
				continue
			}
			var n Notice
			if err := json.Unmarshal(d.line, &n); err != nil {
				return events, fmt.Errorf("decoding notice: %w", err)
			}
			flush()
			events = append(events, Event{Notice: &n})
			d.line = d.line[:0]
			d.state = stateOutput
		}
	}
	flush()
	return events, nil
}
