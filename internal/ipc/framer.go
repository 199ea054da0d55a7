package ipc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// FrameErrorKind classifies inbound framing errors. Every kind ends the
// connection; the daemon never tries to resynchronize.
type FrameErrorKind int

const (
	// FrameErrorMalformed indicates envelope text that is not JSON or
	// matches neither envelope shape.
	FrameErrorMalformed FrameErrorKind = iota + 1
	// FrameErrorDesync indicates tail bytes that do not line up with the
	// declared stdinLength.
	FrameErrorDesync
	// FrameErrorTooLarge indicates envelope text beyond MaxEnvelopeSize.
	FrameErrorTooLarge
)

func (k FrameErrorKind) String() string {
	switch k {
	case FrameErrorMalformed:
		return "malformed"
	case FrameErrorDesync:
		return "desync"
	case FrameErrorTooLarge:
		return "too_large"
	default:
		return fmt.Sprintf("frame_error(%d)", int(k))
	}
}

// FrameError represents an inbound framing error. Raw holds the offending
// envelope text, when there is any.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Raw  []byte
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// Frame is one complete inbound envelope plus its stdin tail.
type Frame struct {
	Message *Message
	Raw     []byte
	Stdin   []byte
}

var errIncomplete = errors.New("incomplete envelope")

// Framer turns an inbound byte stream into frames, independent of how the
// stream is split into reads.
type Framer struct {
	buf       []byte
	pending   *Frame
	needDelim bool
	last      []byte
	relay     StdinRelay
}

// Feed consumes the next chunk of the stream and returns every frame it
// completes. Once Feed returns an error the framer must not be used again.
func (f *Framer) Feed(chunk []byte) ([]Frame, error) {
	var frames []Frame
	data := chunk

	for {
		if f.pending != nil {
			if f.needDelim {
				if len(data) == 0 {
					return frames, nil
				}
				if data[0] != Delimiter {
					return frames, &FrameError{
						Kind: FrameErrorDesync,
						Msg:  fmt.Sprintf("expected delimiter before %d byte stdin, got %q", f.relay.Remaining(), data[0]),
						Raw:  f.pending.Raw,
					}
				}
				data = data[1:]
				f.needDelim = false
			}

			rest, complete := f.relay.Append(data)
			if !complete {
				return frames, nil
			}
			frame := *f.pending
			frame.Stdin = f.relay.Take()
			f.pending = nil
			frames = append(frames, frame)
			data = rest
			continue
		}

		f.buf = append(f.buf, data...)
		data = nil
		f.buf = trimSeparators(f.buf)
		if len(f.buf) == 0 {
			f.buf = nil
			return frames, nil
		}
		if f.buf[0] == Delimiter {
			raw := append(bytes.Clone(f.last), f.buf...)
			return frames, &FrameError{
				Kind: FrameErrorDesync,
				Msg:  "stdin tail sent without a declared stdinLength",
				Raw:  raw,
			}
		}

		end, err := envelopeEnd(f.buf)
		if errors.Is(err, errIncomplete) {
			if len(f.buf) > MaxEnvelopeSize {
				return frames, &FrameError{
					Kind: FrameErrorTooLarge,
					Msg:  fmt.Sprintf("envelope exceeds %d bytes", MaxEnvelopeSize),
					Raw:  bytes.Clone(f.buf),
				}
			}
			return frames, nil
		}
		if err != nil {
			return frames, &FrameError{
				Kind: FrameErrorMalformed,
				Msg:  "invalid envelope json",
				Raw:  bytes.Clone(f.buf),
				Err:  err,
			}
		}

		raw := bytes.Clone(f.buf[:end])
		rest := f.buf[end:]
		f.buf = nil

		msg, err := DecodeMessage(raw)
		if err != nil {
			return frames, &FrameError{
				Kind: FrameErrorMalformed,
				Msg:  "invalid envelope",
				Raw:  raw,
				Err:  err,
			}
		}

		frame := Frame{Message: msg, Raw: raw}
		f.last = raw
		if msg.Kind == KindRequest && !f.relay.BeginExpecting(msg.Request.StdinLength) {
			f.pending = &frame
			f.needDelim = true
		} else {
			f.relay.Take()
			frames = append(frames, frame)
		}
		data = bytes.Clone(rest)
	}
}

// AwaitingStdin reports whether the framer is collecting a stdin tail.
func (f *Framer) AwaitingStdin() bool {
	return f.pending != nil
}

// Pending returns the partially received envelope, if any.
func (f *Framer) Pending() []byte {
	if f.pending != nil {
		return f.pending.Raw
	}
	return f.buf
}

// Finish reports an error when the stream ended in the middle of an
// envelope or a stdin tail.
func (f *Framer) Finish() error {
	if f.pending != nil {
		return &FrameError{
			Kind: FrameErrorDesync,
			Msg: fmt.Sprintf("connection ended with %d of %d stdin bytes",
				f.relay.Received(), f.pending.Message.Request.StdinLength),
			Raw: f.pending.Raw,
		}
	}
	if len(trimSeparators(f.buf)) > 0 {
		return &FrameError{
			Kind: FrameErrorMalformed,
			Msg:  "connection ended inside an envelope",
			Raw:  bytes.Clone(f.buf),
		}
	}
	return nil
}

// envelopeEnd returns the offset just past the first JSON value in buf.
func envelopeEnd(buf []byte) (int, error) {
	dec := json.NewDecoder(bytes.NewReader(buf))
	var v json.RawMessage
	if err := dec.Decode(&v); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, errIncomplete
		}
		return 0, err
	}
	return int(dec.InputOffset()), nil
}

// trimSeparators drops JSON whitespace between envelopes.
func trimSeparators(b []byte) []byte {
	for len(b) > 0 {
		switch b[0] {
		case ' ', '\t', '\r', '\n':
			b = b[1:]
		default:
			return b
		}
	}
	return b
}
