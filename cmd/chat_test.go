package cmd

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pdfbot/pdfbot/internal/client"
)

// fakeChatServer streams a fixed reply and records the session key each
// request carried.
func fakeChatServer(t *testing.T, sessionKeys *[]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Message   string `json:"message"`
			SessionID string `json:"session_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding chat request: %v", err)
		}
		*sessionKeys = append(*sessionKeys, req.SessionID)

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: Hello\n\n"))
		_, _ = w.Write([]byte("data:  there\n\n"))
		_, _ = w.Write([]byte("data: \n__SESSION_ID__:key-1__\n\n"))
	}))
}

func TestRunChatLoop_StreamsAndKeepsSession(t *testing.T) {
	var sessionKeys []string
	srv := fakeChatServer(t, &sessionKeys)
	defer srv.Close()

	in := strings.NewReader("hi\nhow are you\nexit\n")
	var out strings.Builder

	c := client.New(srv.URL)
	if err := runChatLoop(context.Background(), c, in, &out); err != nil {
		t.Fatalf("runChatLoop failed: %v", err)
	}

	if !strings.Contains(out.String(), "Bot: Hello there") {
		t.Errorf("output missing streamed reply:\n%s", out.String())
	}
	if len(sessionKeys) != 2 {
		t.Fatalf("server saw %d turns, want 2", len(sessionKeys))
	}
	if sessionKeys[0] != "" {
		t.Errorf("first turn carried session key %q, want empty", sessionKeys[0])
	}
	if sessionKeys[1] != "key-1" {
		t.Errorf("second turn carried session key %q, want key-1", sessionKeys[1])
	}
}

func TestRunChatLoop_AgentErrorKeepsRunning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: partial\n\n"))
		_, _ = w.Write([]byte(`data: {"error":"Agent error","detail":"model unavailable"}` + "\n\n"))
	}))
	defer srv.Close()

	in := strings.NewReader("hi\nexit\n")
	var out strings.Builder

	c := client.New(srv.URL)
	if err := runChatLoop(context.Background(), c, in, &out); err != nil {
		t.Fatalf("runChatLoop failed: %v", err)
	}

	if !strings.Contains(out.String(), "Agent error: model unavailable") {
		t.Errorf("output missing agent error:\n%s", out.String())
	}
	// The loop survived the error and prompted again.
	if strings.Count(out.String(), "You: ") != 2 {
		t.Errorf("expected two prompts, got:\n%s", out.String())
	}
}

func TestRunChatLoop_SkipsBlankInput(t *testing.T) {
	var sessionKeys []string
	srv := fakeChatServer(t, &sessionKeys)
	defer srv.Close()

	in := strings.NewReader("\n   \nquit\n")
	var out strings.Builder

	c := client.New(srv.URL)
	if err := runChatLoop(context.Background(), c, in, &out); err != nil {
		t.Fatalf("runChatLoop failed: %v", err)
	}
	if len(sessionKeys) != 0 {
		t.Errorf("server saw %d turns, want 0", len(sessionKeys))
	}
}
