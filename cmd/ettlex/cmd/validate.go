package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/nickout/ettlex/pkg/kernel"
	"github.com/nickout/ettlex/pkg/seed"
)

var validateCmd = &cobra.Command{
	Use:   "validate [seed-file...]",
	Short: "Check tree invariants",
	Long: `Check the structural invariants of the workspace tree: partition
ownership, ordinal uniqueness, refinement mappings and acyclicity.

With seed file arguments, the files are imported into a scratch tree and
that tree is checked instead; the workspace is left untouched.`,
	Run: func(cmd *cobra.Command, args []string) {
		l := mustLogger()

		var state *kernel.Store
		if len(args) == 0 {
			var err error
			state, err = currentWorkspace(l).LoadState()
			if err != nil {
				wrapFatalln("load workspace state", err)
				return
			}
		} else {
			state = kernel.New()
			mapping := seed.NewMapping()
			imp := seed.NewImporter(l)
			for _, name := range args {
				data, err := os.ReadFile(name)
				if err != nil {
					wrapFatalln("read seed file "+name, err)
					return
				}
				s, err := seed.Parse(data)
				if err != nil {
					wrapFatalln("parse seed file "+name, err)
					return
				}
				res, err := imp.Import(state, s, mapping)
				if err != nil {
					wrapFatalln("import seed file "+name, err)
					return
				}
				state, mapping = res.State, res.Mapping
			}
		}

		if err := state.ValidateTree(); err != nil {
			wrapFatalln("tree validation failed", err)
			return
		}
		infoLogger.Printf("ok: %d ettles, %d partitions",
			len(state.EttleIDs()), len(state.PartitionIDs()))
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
