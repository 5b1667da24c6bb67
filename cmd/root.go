// Package cmd implements the pdfbot command line interface.
//
// Following the pattern used by kubectl, hugo, and other standard Go CLI
// tools, all application logic is contained in the cmd package, leaving
// main.go as a minimal entry point.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdfbot/pdfbot/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "pdfbot",
	Short: "PDF-aware chatbot service",
	Long: `pdfbot serves a streaming chat API backed by a Gemini model and a
PDF knowledge base. Uploaded PDFs are chunked, embedded, and stored in
PostgreSQL with pgvector so the assistant can draw on them.

Run 'pdfbot serve' to start the HTTP server, 'pdfbot chat' for an
interactive client, and 'pdfbot upload' to index a document.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Bare invocation starts the server.
		return runServe(cmd.Context())
	},
}

// Execute runs the root command.
func Execute() error {
	initLogger()
	return rootCmd.Execute()
}

// initLogger installs the default structured logger.
// DEBUG set in the environment enables debug level logging.
func initLogger() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(log.New(log.Config{Level: level}))
}
