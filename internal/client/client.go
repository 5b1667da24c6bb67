// Package client talks to the chatbot service: it opens chat streams,
// reassembles SSE frames from raw network reads, and drives the upload
// endpoints including completion polling.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// Defaults for upload completion polling.
const (
	defaultPollInterval = 5 * time.Second
	defaultPollAttempts = 60
)

// ErrPollTimeout indicates an upload did not finish processing within the
// polling budget.
var ErrPollTimeout = errors.New("upload processing did not finish in time")

// StatusError is a non-200 HTTP response from the service.
type StatusError struct {
	StatusCode int
	Detail     string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("server returned %d", e.StatusCode)
}

// Client is an HTTP client for the chatbot service.
type Client struct {
	baseURL string
	httpc   *http.Client

	// PollInterval and PollAttempts bound WaitForIngestion.
	PollInterval time.Duration
	PollAttempts int
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpc = h }
}

// New creates a client for the service at baseURL (e.g. "http://localhost:8000").
// The underlying HTTP client carries no overall timeout: chat streams are
// open-ended, so deadlines come from the caller's context instead.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		httpc:        &http.Client{},
		PollInterval: defaultPollInterval,
		PollAttempts: defaultPollAttempts,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// StreamChat sends one chat turn and yields parsed stream events.
//
// sessionKey may be empty on the first turn; the server then generates one
// and reveals it in the final EventSession event, which callers keep for
// subsequent turns. Iteration ends after the session event, after a yielded
// error, or when the caller breaks.
func (c *Client) StreamChat(ctx context.Context, message, sessionKey string) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		body, err := json.Marshal(chatRequest{Message: message, SessionID: sessionKey})
		if err != nil {
			yield(Event{}, fmt.Errorf("encoding chat request: %w", err))
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+"/api/chat/stream", bytes.NewReader(body))
		if err != nil {
			yield(Event{}, fmt.Errorf("building chat request: %w", err))
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "text/event-stream")

		resp, err := c.httpc.Do(req)
		if err != nil {
			yield(Event{}, fmt.Errorf("connecting to chat stream: %w", err))
			return
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			yield(Event{}, c.statusError(resp))
			return
		}

		var sc frameScanner
		buf := make([]byte, 4096)
		for {
			n, readErr := resp.Body.Read(buf)
			if n > 0 {
				for _, payload := range sc.feed(buf[:n]) {
					events, perr := parseFrame(payload)
					if perr != nil {
						yield(Event{}, perr)
						return
					}
					for _, ev := range events {
						if !yield(ev, nil) {
							return
						}
					}
				}
			}
			if readErr != nil {
				if errors.Is(readErr, io.EOF) {
					return
				}
				yield(Event{}, fmt.Errorf("reading chat stream: %w", readErr))
				return
			}
		}
	}
}

// Upload is the server's acknowledgement of an accepted PDF.
type Upload struct {
	Message  string `json:"message"`
	FileID   string `json:"file_id"`
	Filename string `json:"filename"`
	Status   string `json:"status"`
}

// UploadPDF uploads one PDF document for ingestion.
func (c *Client) UploadPDF(ctx context.Context, filename string, r io.Reader) (Upload, error) {
	body := new(bytes.Buffer)
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return Upload{}, fmt.Errorf("building multipart body: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return Upload{}, fmt.Errorf("reading upload content: %w", err)
	}
	if err := mw.Close(); err != nil {
		return Upload{}, fmt.Errorf("finalizing multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/upload/pdf", body)
	if err != nil {
		return Upload{}, fmt.Errorf("building upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var up Upload
	if err := c.doJSON(req, &up); err != nil {
		return Upload{}, err
	}
	return up, nil
}

// UploadStatus is one upload's processing state.
type UploadStatus struct {
	FileID  string `json:"file_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Status fetches the processing state of an uploaded file.
func (c *Client) Status(ctx context.Context, fileID string) (UploadStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/upload/status/"+fileID, nil)
	if err != nil {
		return UploadStatus{}, fmt.Errorf("building status request: %w", err)
	}

	var st UploadStatus
	if err := c.doJSON(req, &st); err != nil {
		return UploadStatus{}, err
	}
	return st, nil
}

// UploadList is the full upload inventory.
type UploadList struct {
	Uploads []UploadListEntry `json:"uploads"`
	Total   int               `json:"total"`
}

// UploadListEntry is one upload in the inventory.
type UploadListEntry struct {
	FileID   string `json:"file_id"`
	Filename string `json:"filename"`
	Status   string `json:"status"`
	Message  string `json:"message"`
}

// List fetches all uploads.
func (c *Client) List(ctx context.Context) (UploadList, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/upload/list", nil)
	if err != nil {
		return UploadList{}, fmt.Errorf("building list request: %w", err)
	}

	var ul UploadList
	if err := c.doJSON(req, &ul); err != nil {
		return UploadList{}, err
	}
	return ul, nil
}

// WaitForIngestion polls an upload's status until it reaches a terminal state
// (completed or failed) or the polling budget runs out.
func (c *Client) WaitForIngestion(ctx context.Context, fileID string) (UploadStatus, error) {
	interval := c.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	attempts := c.PollAttempts
	if attempts <= 0 {
		attempts = defaultPollAttempts
	}

	var last UploadStatus
	for i := 0; i < attempts; i++ {
		st, err := c.Status(ctx, fileID)
		if err != nil {
			return UploadStatus{}, err
		}
		last = st

		switch st.Status {
		case "completed", "failed":
			return st, nil
		}

		select {
		case <-ctx.Done():
			return last, fmt.Errorf("waiting for ingestion: %w", ctx.Err())
		case <-time.After(interval):
		}
	}
	return last, ErrPollTimeout
}

// doJSON executes a request expecting a 200 JSON response decoded into out.
func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return c.statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", req.URL.Path, err)
	}
	return nil
}

// statusError reads the error body, extracting the detail field when the
// server sent one.
func (c *Client) statusError(resp *http.Response) error {
	se := &StatusError{StatusCode: resp.StatusCode}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return se
	}
	var dr struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &dr) == nil && dr.Detail != "" {
		se.Detail = dr.Detail
	} else {
		se.Detail = strings.TrimSpace(string(body))
	}
	return se
}
