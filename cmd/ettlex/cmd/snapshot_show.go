package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var snapshotShowCmd = &cobra.Command{
	Use:   "show <snapshot-id>",
	Short: "Show the manifest of a snapshot",
	Long:  `Fetch a snapshot row from the ledger and print its manifest from the blob store`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		l := mustLogger()
		w := currentWorkspace(l)

		ld, err := openLedger(w, l)
		if err != nil {
			wrapFatalln("open ledger", err)
			return
		}
		defer func() { _ = ld.Close() }()
		blobs, closeBlobs, err := openBlobs(w, l)
		if err != nil {
			wrapFatalln("open blob store", err)
			return
		}
		defer closeBlobs()

		rec, err := ld.Get(ctx, args[0])
		if err != nil {
			wrapFatalln("fetch snapshot "+args[0], err)
			return
		}
		data, err := blobs.Read(rec.ManifestDigest)
		if err != nil {
			wrapFatalln("read manifest "+rec.ManifestDigest, err)
			return
		}
		infoLogger.Println(string(data))
	},
}

func init() {
	snapshotCmd.AddCommand(snapshotShowCmd)
}
