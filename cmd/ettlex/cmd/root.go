// Package cmd wires the ettlex command tree. Commands stay thin: flag
// parsing and output only, with all semantics in the library packages.
package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/nickout/ettlex/pkg/dlogger"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ettlex",
	Short: "ettlex manages versioned refinement trees",
	Long: `ettlex maintains a tree of intent nodes and their ordered partitions,
imports seed files, and commits deterministic snapshots of any leaf to an
append-only ledger backed by a content-addressed store.
`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		osExit(1)
	}
}

func init() {
	log.SetFlags(0)
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&ettlexFlags.root.workspace, "workspace", "",
		"workspace directory holding state, blobs and the ledger (default .ettlex)")
	rootCmd.PersistentFlags().StringVar(&ettlexFlags.root.logLevel, "loglevel", "info",
		"log level (debug, info, none)")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	viper.SetDefault("workspace", ".ettlex")
	if os.Getenv("ETTLEX_CONFIG") != "" {
		viper.SetConfigFile(os.Getenv("ETTLEX_CONFIG"))
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.ettlex")
		viper.SetConfigName("ettlex")
	}
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err == nil {
		infoLogger.Println("Using config file:", viper.ConfigFileUsed())
	}
	if ettlexFlags.root.workspace == "" {
		ettlexFlags.root.workspace = viper.GetString("workspace")
	}
}

func mustLogger() *zap.Logger {
	l, err := dlogger.GetLogger(ettlexFlags.root.logLevel)
	if err != nil {
		wrapFatalln("set up logger", err)
		return zap.NewNop()
	}
	return l
}
