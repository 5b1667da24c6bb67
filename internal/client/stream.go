package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pdfbot/pdfbot/internal/sse"
)

// EventKind discriminates stream events.
type EventKind int

const (
	// EventContent carries response text to display.
	EventContent EventKind = iota
	// EventSession carries the session key from the stream's trailer frame.
	EventSession
)

// Event is one parsed item of a chat stream.
type Event struct {
	Kind       EventKind
	Text       string // set for EventContent
	SessionKey string // set for EventSession
}

// AgentError is a terminal in-stream failure reported by the server.
type AgentError struct {
	Detail string
}

func (e *AgentError) Error() string {
	return "agent error: " + e.Detail
}

// frameScanner reassembles SSE frames from arbitrarily fragmented reads.
//
// Network reads may split a frame anywhere, including inside the "data: "
// prefix or between the two delimiter newlines. The scanner buffers input and
// releases a payload only once its blank-line delimiter has fully arrived.
type frameScanner struct {
	buf []byte
}

var frameDelimiter = []byte("\n\n")

// feed appends a read to the buffer and returns the payloads of all frames
// completed by it, in order. Frames without the "data: " prefix are dropped,
// as SSE comment/event lines would be.
func (s *frameScanner) feed(p []byte) []string {
	s.buf = append(s.buf, p...)

	var payloads []string
	for {
		i := bytes.Index(s.buf, frameDelimiter)
		if i < 0 {
			return payloads
		}
		frame := string(s.buf[:i])
		s.buf = s.buf[i+len(frameDelimiter):]

		if payload, ok := strings.CutPrefix(frame, "data: "); ok {
			payloads = append(payloads, payload)
		}
	}
}

// parseFrame turns one frame payload into stream events.
//
// A payload containing the session marker splits into an optional content
// event for the pre-marker text (still displayed, it may carry a trailing
// newline of real output) followed by a session event for the key, which runs
// up to the next "__". A JSON error payload terminates parsing with an
// AgentError.
func parseFrame(payload string) ([]Event, error) {
	if detail, ok := errorPayload(payload); ok {
		return nil, &AgentError{Detail: detail}
	}

	i := strings.Index(payload, sse.SessionMarker)
	if i < 0 {
		return []Event{{Kind: EventContent, Text: payload}}, nil
	}

	var events []Event
	if pre := payload[:i]; pre != "" {
		events = append(events, Event{Kind: EventContent, Text: pre})
	}

	rest := payload[i+len(sse.SessionMarker):]
	key, _, found := strings.Cut(rest, "__")
	if !found {
		return nil, fmt.Errorf("unterminated session marker in frame %q", payload)
	}
	events = append(events, Event{Kind: EventSession, SessionKey: key})
	return events, nil
}

// errorPayload reports whether payload is a terminal error frame and returns
// its detail. Ordinary content that merely starts with "{" is not mistaken
// for an error unless it carries the error field.
func errorPayload(payload string) (string, bool) {
	if !strings.HasPrefix(payload, "{") {
		return "", false
	}
	var ep sse.ErrorPayload
	if err := json.Unmarshal([]byte(payload), &ep); err != nil {
		return "", false
	}
	if ep.Error == "" {
		return "", false
	}
	return ep.Detail, true
}
