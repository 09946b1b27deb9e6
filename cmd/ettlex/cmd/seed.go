package cmd

import (
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Commands to manage seed files",
	Long:  `Commands to import declarative seed files into the workspace tree`,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
