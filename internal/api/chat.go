package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pdfbot/pdfbot/internal/agent"
	"github.com/pdfbot/pdfbot/internal/session"
	"github.com/pdfbot/pdfbot/internal/sse"
)

// maxChatBodySize limits chat request bodies to 1MB.
const maxChatBodySize = 1 << 20

// chatRequest is the request body for the chat stream endpoint.
type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

// chatHandler relays fragment sequences from the agent onto SSE streams.
type chatHandler struct {
	source agent.FragmentSource
	logger *slog.Logger
}

// stream handles POST /api/chat/stream (and its /api/chat alias).
//
// Error handling is split by whether the stream is open. Before the first
// frame, failures surface as plain HTTP errors (400/500 with a detail body).
// Once frames are flowing the response is committed as 200, so producer
// failures become a terminal in-stream error frame instead, and no session
// trailer follows.
func (h *chatHandler) stream(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxChatBodySize)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeDetail(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeDetail(w, http.StatusBadRequest, "message cannot be empty")
		return
	}

	// A supplied key is echoed verbatim; otherwise a fresh one is generated
	// and revealed to the client in the stream's trailer frame.
	sessionKey := session.Resolve(req.SessionID)

	if h.source == nil {
		writeDetail(w, http.StatusInternalServerError, "agent is not available")
		return
	}

	sw, err := sse.NewWriter(w)
	if err != nil {
		h.logger.Error("opening SSE stream failed", "error", err)
		writeDetail(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx := r.Context()
	for frag, err := range h.source.Fragments(ctx, sessionKey, req.Message) {
		if err != nil {
			h.logger.Error("agent stream failed",
				"session", sessionKey,
				"error", err,
			)
			if werr := sw.WriteError(err.Error()); werr != nil {
				h.logger.Debug("writing error frame failed", "error", werr)
			}
			return
		}

		text := agent.Text(frag)
		if text == "" {
			// Empty fragments carry no information and must not
			// terminate the stream.
			continue
		}

		select {
		case <-ctx.Done():
			h.logger.Debug("client disconnected mid-stream", "session", sessionKey)
			return
		default:
		}

		if err := sw.WriteContent(text); err != nil {
			h.logger.Debug("writing content frame failed",
				"session", sessionKey,
				"error", err,
			)
			return
		}
	}

	if err := sw.WriteSessionTrailer(sessionKey); err != nil {
		h.logger.Debug("writing session trailer failed",
			"session", sessionKey,
			"error", err,
		)
	}
}
