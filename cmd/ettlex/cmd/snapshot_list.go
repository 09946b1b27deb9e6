package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots of a root",
	Long:  `List the snapshot chain of a root ettle, oldest first`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		l := mustLogger()
		w := currentWorkspace(l)

		mapping, err := w.LoadMapping()
		if err != nil {
			wrapFatalln("load seed mapping", err)
			return
		}
		ld, err := openLedger(w, l)
		if err != nil {
			wrapFatalln("open ledger", err)
			return
		}
		defer func() { _ = ld.Close() }()

		rootID := resolveHandle(mapping.Ettles, ettlexFlags.snapshot.rootEttle)
		records, err := ld.List(ctx, rootID)
		if err != nil {
			wrapFatalln("list snapshots", err)
			return
		}
		for _, rec := range records {
			infoLogger.Printf("%s , %s , %s , %s",
				rec.SnapshotID,
				rec.CreatedAt.Format(time.RFC3339),
				rec.ManifestDigest,
				rec.Status,
			)
		}
	},
}

func init() {
	snapshotListCmd.Flags().StringVar(&ettlexFlags.snapshot.rootEttle, "root", "",
		"root ettle (handle or id)")
	err := snapshotListCmd.MarkFlagRequired("root")
	if err != nil {
		logFatalln(err)
	}

	snapshotCmd.AddCommand(snapshotListCmd)
}
