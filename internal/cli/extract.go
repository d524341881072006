package cli

import (
	"github.com/spf13/cobra"

	"github.com/test7679/gold-rate-alert/internal/app"
)

var extractFile string

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Dry run: print the rates found on the page without notifying",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Extract(cmd.Context(), app.ExtractOptions{File: extractFile})
	},
}

func init() {
	extractCmd.Flags().StringVar(&extractFile, "file", "", "Read a saved HTML dump instead of rendering the live page")
}
