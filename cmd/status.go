package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdfbot/pdfbot/internal/client"
)

var statusServerURL string

var statusCmd = &cobra.Command{
	Use:   "status [file_id]",
	Short: "Show upload processing status",
	Long: `Without arguments, lists all uploads known to the server.
With a file_id, shows that upload's processing status.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(statusServerURL)
		out := cmd.OutOrStdout()

		if len(args) == 1 {
			status, err := c.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s\t%s\t%s\n", status.FileID, status.Status, status.Message)
			return nil
		}

		list, err := c.List(cmd.Context())
		if err != nil {
			return err
		}
		for _, u := range list.Uploads {
			fmt.Fprintf(out, "%s\t%s\t%s\n", u.FileID, u.Status, u.Filename)
		}
		fmt.Fprintf(out, "%d upload(s)\n", list.Total)
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusServerURL, "server", "http://localhost:8000",
		"base URL of the pdfbot server")
	rootCmd.AddCommand(statusCmd)
}
