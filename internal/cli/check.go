package cli

import (
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Fetch the rates once and notify when they changed",
	RunE:  runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	return getApp().Check(cmd.Context())
}
