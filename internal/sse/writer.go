// Package sse encodes the chat stream's Server-Sent-Events wire format.
//
// The stream is a plain data-frame channel: every frame is the literal prefix
// "data: ", UTF-8 payload text, and a blank-line delimiter. The session key
// and error reports travel in-band as specially formatted payloads rather
// than as named SSE event types, so the stream survives intermediaries that
// only relay data lines.
//
// Frame grammar:
//
//	("data: " FRAME "\n\n")*
//
// where FRAME is a content fragment, the session trailer
// "\n__SESSION_ID__:<key>__", or a JSON error object.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// SessionMarker introduces the in-band session trailer payload. The client
// scans processed frames for this substring; text up to the following "__" is
// the session key.
//
// Known wart: a fragment whose literal text contains the marker would be
// misread as a trailer. Accepted for wire compatibility with existing
// clients; a dedicated "event: session" type would remove the ambiguity at
// the cost of breaking data-line-only intermediaries.
const SessionMarker = "__SESSION_ID__:"

// Writer frames payloads onto an http.ResponseWriter opened as an SSE stream.
//
// Each frame is written with a single Fprintf and flushed immediately, so a
// frame is never larger or smaller than one payload and never reaches the
// client partially buffered.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewWriter prepares w for streaming and sets the SSE response headers.
// Returns an error if w does not support flushing; callers must treat that
// as a pre-stream failure since no frame can be delivered incrementally.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not implement http.Flusher")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	return &Writer{w: w, flusher: flusher}, nil
}

// WriteContent emits one content frame carrying a single fragment.
// The fragment text is never split across frames.
func (w *Writer) WriteContent(text string) error {
	return w.writeFrame(text)
}

// WriteSessionTrailer emits the stream's completion frame carrying the
// session key. The payload keeps its leading newline so clients render any
// preceding content cleanly before extracting the key.
func (w *Writer) WriteSessionTrailer(key string) error {
	return w.writeFrame("\n" + SessionMarker + key + "__")
}

// ErrorPayload is the JSON body of a terminal error frame.
type ErrorPayload struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

// WriteError emits the terminal error frame for a mid-stream failure.
// The detail is JSON-encoded, so failure messages containing quotes or
// newlines cannot corrupt the frame.
func (w *Writer) WriteError(detail string) error {
	payload, err := json.Marshal(ErrorPayload{Error: "Agent error", Detail: detail})
	if err != nil {
		return fmt.Errorf("marshal error payload: %w", err)
	}
	return w.writeFrame(string(payload))
}

// writeFrame writes one complete frame and flushes it to the client.
func (w *Writer) writeFrame(payload string) error {
	if _, err := fmt.Fprintf(w.w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	w.flusher.Flush()
	return nil
}
