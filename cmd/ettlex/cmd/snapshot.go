package cmd

import (
	"github.com/spf13/cobra"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Commands to manage snapshots",
	Long:  `Commands to commit and inspect snapshots of the workspace tree`,
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
}
