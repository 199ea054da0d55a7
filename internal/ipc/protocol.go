package ipc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

const (
	// Delimiter separates an envelope from its raw stdin tail, and introduces
	// notices in the daemon-to-client direction.
	Delimiter byte = '\f'

	// ControlChar is the Ctrl-C prompt answer. It cancels the running command,
	// or stops the daemon when shutdown is armed for the session.
	ControlChar = "\x03"

	// MaxEnvelopeSize bounds how much envelope text is buffered while waiting
	// for a complete JSON value.
	MaxEnvelopeSize = 1 << 20

	// DiagnosticHeadSize is how much raw request text goes into malformed
	// request diagnostics.
	DiagnosticHeadSize = 1024
)

// Exit codes.
const (
	ExitOK          = 0
	ExitCommandErr  = 1
	ExitUsageErr    = 2
	ExitInternal    = 3
	ExitInterrupted = 130
)

// Request is one command invocation sent from the front end to the daemon.
// StdinLength raw bytes follow the envelope after a Delimiter byte.
type Request struct {
	Argv        []string          `json:"argv"`
	Cwd         string            `json:"cwd"`
	Env         map[string]string `json:"env"`
	StdinLength int               `json:"stdinLength"`
	Stdin       *string           `json:"stdin"` // reserved; raw input travels in the tail
}

// PromptResponse answers an outstanding prompt, or carries ControlChar.
type PromptResponse struct {
	Stdin string `json:"stdin"`
}

// IsControl reports whether the response is the Ctrl-C control character.
func (p *PromptResponse) IsControl() bool {
	return p.Stdin == ControlChar
}

// Kind discriminates the two inbound envelope shapes.
type Kind int

const (
	KindRequest Kind = iota + 1
	KindPrompt
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindPrompt:
		return "prompt"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Message is a decoded inbound envelope. Exactly one of Request or Prompt is
// set, matching Kind.
type Message struct {
	Kind    Kind
	Request *Request
	Prompt  *PromptResponse
}

const envelopeSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "oneOf": [
    {"$ref": "#/definitions/request"},
    {"$ref": "#/definitions/prompt"}
  ],
  "definitions": {
    "request": {
      "type": "object",
      "required": ["argv"],
      "properties": {
        "argv": {"type": "array", "items": {"type": "string"}},
        "cwd": {"type": "string"},
        "env": {"type": "object", "additionalProperties": {"type": "string"}},
        "stdinLength": {"type": "integer", "minimum": 0},
        "stdin": {"type": ["string", "null"]}
      }
    },
    "prompt": {
      "type": "object",
      "required": ["stdin"],
      "not": {"required": ["argv"]},
      "properties": {
        "stdin": {"type": "string"}
      }
    }
  }
}`

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(envelopeSchema))
	})
	return schema, schemaErr
}

// DecodeMessage validates raw envelope text against both inbound shapes in a
// single pass and returns the matching variant.
func DecodeMessage(raw []byte) (*Message, error) {
	s, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("compiling envelope schema: %w", err)
	}

	result, err := s.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing envelope: %w", err)
	}
	if !result.Valid() {
		return nil, schemaError(result.Errors())
	}

	// Field presence decides the variant; the schema guarantees it is unambiguous.
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("parsing envelope: %w", err)
	}

	if _, ok := probe["argv"]; ok {
		var req Request
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("decoding request: %w", err)
		}
		return &Message{Kind: KindRequest, Request: &req}, nil
	}

	var prompt PromptResponse
	if err := json.Unmarshal(raw, &prompt); err != nil {
		return nil, fmt.Errorf("decoding prompt response: %w", err)
	}
	return &Message{Kind: KindPrompt, Prompt: &prompt}, nil
}

func schemaError(errs []gojsonschema.ResultError) error {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, fmt.Sprintf("%s: %s", e.Field(), e.Description()))
	}
	return errors.New("envelope matches neither request nor prompt response: " + strings.Join(msgs, "; "))
}

// EncodeRequest renders req followed by the delimiter and stdin, setting
// StdinLength from len(stdin).
func EncodeRequest(req *Request, stdin []byte) ([]byte, error) {
	out := *req
	out.StdinLength = len(stdin)
	out.Stdin = nil
	if out.Env == nil {
		out.Env = map[string]string{}
	}

	data, err := json.Marshal(&out)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	if len(stdin) == 0 {
		return data, nil
	}

	buf := make([]byte, 0, len(data)+1+len(stdin))
	buf = append(buf, data...)
	buf = append(buf, Delimiter)
	buf = append(buf, stdin...)
	return buf, nil
}

// EncodePrompt renders a prompt response envelope.
func EncodePrompt(answer string) ([]byte, error) {
	data, err := json.Marshal(&PromptResponse{Stdin: answer})
	if err != nil {
		return nil, fmt.Errorf("encoding prompt response: %w", err)
	}
	return data, nil
}

// NoticeKind identifies an out-of-band record in the daemon-to-client stream.
type NoticeKind string

const (
	NoticePrompt   NoticeKind = "prompt"
	NoticeExit     NoticeKind = "exit"
	NoticeShutdown NoticeKind = "shutdown"
)

// Notice is an out-of-band record written between command output bytes as
// Delimiter, one JSON line, '\n'.
type Notice struct {
	Kind     NoticeKind `json:"notice"`
	Text     string     `json:"text,omitempty"`
	Secure   bool       `json:"secure,omitempty"`
	ExitCode int        `json:"exitCode,omitempty"`
	Message  string     `json:"message,omitempty"`
}

// EncodeNotice renders n in its wire form.
func EncodeNotice(n Notice) ([]byte, error) {
	data, err := json.Marshal(&n)
	if err != nil {
		return nil, fmt.Errorf("encoding notice: %w", err)
	}
	buf := make([]byte, 0, len(data)+2)
	buf = append(buf, Delimiter)
	buf = append(buf, data...)
	buf = append(buf, '\n')
	return buf, nil
}

var (
	delim        = []byte{Delimiter}
	escapedDelim = []byte{Delimiter, Delimiter}
)

// escapeOutput doubles every Delimiter byte in command output so the client
// can tell output apart from notices.
func escapeOutput(p []byte) []byte {
	if bytes.IndexByte(p, Delimiter) < 0 {
		return p
	}
	return bytes.ReplaceAll(p, delim, escapedDelim)
}

// head returns at most DiagnosticHeadSize bytes of raw as text.
func head(raw []byte) string {
	if len(raw) > DiagnosticHeadSize {
		raw = raw[:DiagnosticHeadSize]
	}
	return string(raw)
}
