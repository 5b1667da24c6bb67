package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pdfbot/pdfbot/internal/client"
)

var (
	uploadServerURL string
	uploadWait      bool
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file.pdf>",
	Short: "Upload a PDF to a running pdfbot server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUpload(cmd, args[0])
	},
}

func init() {
	uploadCmd.Flags().StringVar(&uploadServerURL, "server", "http://localhost:8000",
		"base URL of the pdfbot server")
	uploadCmd.Flags().BoolVar(&uploadWait, "wait", false,
		"poll until indexing completes or fails")
	rootCmd.AddCommand(uploadCmd)
}

func runUpload(cmd *cobra.Command, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	c := client.New(uploadServerURL)
	ctx := cmd.Context()

	up, err := c.UploadPDF(ctx, filepath.Base(path), f)
	if err != nil {
		return fmt.Errorf("uploading: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s (file_id=%s)\n", up.Filename, up.FileID)

	if !uploadWait {
		fmt.Fprintf(cmd.OutOrStdout(), "Check progress with: pdfbot status, or GET /api/upload/status/%s\n", up.FileID)
		return nil
	}

	status, err := c.WaitForIngestion(ctx, up.FileID)
	if err != nil {
		return fmt.Errorf("waiting for ingestion: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Status: %s", status.Status)
	if status.Message != "" {
		fmt.Fprintf(cmd.OutOrStdout(), " (%s)", status.Message)
	}
	fmt.Fprintln(cmd.OutOrStdout())
	return nil
}
