package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdfbot/pdfbot/internal/client"
)

var chatServerURL string

// typingDelay paces fragment printing so responses read as typed text.
const typingDelay = 10 * time.Millisecond

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat interactively with a running pdfbot server",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(chatServerURL)
		return runChatLoop(cmd.Context(), c, os.Stdin, os.Stdout)
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatServerURL, "server", "http://localhost:8000",
		"base URL of the pdfbot server")
	rootCmd.AddCommand(chatCmd)
}

// runChatLoop reads messages from in and streams responses to out. The
// session key returned by the first turn is carried into subsequent turns so
// the server keeps one conversation.
func runChatLoop(ctx context.Context, c *client.Client, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "Connected. Type a message, or 'exit' to quit.")

	var sessionKey string
	scanner := bufio.NewScanner(in)

	for {
		fmt.Fprint(out, "You: ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		message := strings.TrimSpace(scanner.Text())
		if message == "" {
			continue
		}
		if message == "exit" || message == "quit" {
			return nil
		}

		fmt.Fprint(out, "Bot: ")
		var streamErr error
		for ev, err := range c.StreamChat(ctx, message, sessionKey) {
			if err != nil {
				streamErr = err
				break
			}
			switch ev.Kind {
			case client.EventContent:
				fmt.Fprint(out, ev.Text)
				sleepCtx(ctx, typingDelay)
			case client.EventSession:
				sessionKey = ev.SessionKey
			}
		}
		fmt.Fprintln(out)

		if streamErr != nil {
			var agentErr *client.AgentError
			if errors.As(streamErr, &agentErr) {
				fmt.Fprintf(out, "Agent error: %s\n", agentErr.Detail)
				continue
			}
			return streamErr
		}
	}
}

// sleepCtx sleeps for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
