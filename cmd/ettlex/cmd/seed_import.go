package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nickout/ettlex/pkg/ledger"
	"github.com/nickout/ettlex/pkg/seed"
)

var seedImportCmd = &cobra.Command{
	Use:   "import <seed-file> [seed-file...]",
	Short: "Import seed files into the workspace",
	Long: `Import one or more seed files into the workspace tree.

Files are replayed in argument order. Seed handles resolve against the
handles of every earlier import, so a later file may link into ettles
declared by an earlier one. The provenance digest of the last imported
file is recorded in the ledger and stamped into subsequent snapshots.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		l := mustLogger()
		w := currentWorkspace(l)

		state, err := w.LoadState()
		if err != nil {
			wrapFatalln("load workspace state", err)
			return
		}
		mapping, err := w.LoadMapping()
		if err != nil {
			wrapFatalln("load seed mapping", err)
			return
		}

		imp := seed.NewImporter(l)
		var lastDigest string
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
			state, mapping, lastDigest = res.State, res.Mapping, res.Digest
			infoLogger.Printf("%s %s", name, res.Digest)
		}

		if err := w.SaveState(state); err != nil {
			wrapFatalln("save workspace state", err)
			return
		}
		if err := w.SaveMapping(mapping); err != nil {
			wrapFatalln("save seed mapping", err)
			return
		}

		ld, err := openLedger(w, l)
		if err != nil {
			wrapFatalln("open ledger", err)
			return
		}
		defer func() { _ = ld.Close() }()
		if err := ld.SetMetadata(ctx, ledger.MetadataKeySeedDigest, lastDigest); err != nil {
			wrapFatalln("record seed digest", err)
			return
		}
		l.Info("seed import complete", zap.Int("files", len(args)), zap.String("seed_digest", lastDigest))
	},
}

func init() {
	seedCmd.AddCommand(seedImportCmd)
}
