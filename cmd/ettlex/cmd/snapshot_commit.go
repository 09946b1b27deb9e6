package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/nickout/ettlex/pkg/ledger"
	"github.com/nickout/ettlex/pkg/snapshot"
	"github.com/nickout/ettlex/pkg/status"
)

var snapshotCommitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Commit a snapshot of a leaf",
	Long: `Commit a snapshot: compute the traversal from a leaf up to its root,
build the manifest, write it to the blob store and append a row to the
ledger. Leaf and root may be given as seed handles or kernel ids.

With --dry-run everything is computed and nothing is written.`,
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

		req := snapshot.CommitRequest{
			LeafPartitionID: resolveHandle(mapping.Partitions, ettlexFlags.snapshot.leaf),
			RootEttleID:     resolveHandle(mapping.Ettles, ettlexFlags.snapshot.rootEttle),
			ProfileRef:      ettlexFlags.snapshot.profile,
			PolicyRef:       ettlexFlags.snapshot.policy,
			AmbiguityPolicy: snapshot.AmbiguityPolicy(ettlexFlags.snapshot.ambiguity),
			DryRun:          ettlexFlags.snapshot.dryRun,
			Dedup:           ettlexFlags.snapshot.dedup,
		}
		if ettlexFlags.snapshot.leafOrdinal >= 0 {
			ordinal := uint32(ettlexFlags.snapshot.leafOrdinal)
			req.LeafOrdinal = &ordinal
		}
		if ettlexFlags.snapshot.noHead {
			empty := ""
			req.ExpectedHead = &empty
		} else if ettlexFlags.snapshot.expectHead != "" {
			head := ettlexFlags.snapshot.expectHead
			req.ExpectedHead = &head
		}
		if digest, err := ld.GetMetadata(ctx, ledger.MetadataKeySeedDigest); err == nil {
			req.SeedProvenanceDigest = digest
		}

		committer := snapshot.NewCommitter(blobs, ld,
			snapshot.CommitterLogger(l),
			snapshot.CommitterApprovalRouter(ld),
		)
		out, err := committer.Commit(ctx, state, req)
		if err != nil {
			wrapFatalln("commit snapshot", err)
			return
		}

		switch out.State {
		case snapshot.Committed:
			infoLogger.Printf("committed %s", out.Record.SnapshotID)
			infoLogger.Printf("manifest %s", out.Record.ManifestDigest)
		case snapshot.Deduplicated:
			infoLogger.Printf("deduplicated: equivalent snapshot %s already committed",
				out.Record.SnapshotID)
		case snapshot.RoutedForApprovalOutcome:
			infoLogger.Printf("routed for approval, token %s", out.ApprovalToken)
			for _, a := range out.Resolution.Ambiguities {
				infoLogger.Printf("  contested %s", a)
			}
		case snapshot.DryRunOutcome:
			if out.Manifest != nil {
				infoLogger.Printf("dry run: manifest %s", out.Manifest.ManifestDigest)
				infoLogger.Printf("dry run: semantic %s", out.Manifest.SemanticManifestDigest)
			}
			for _, a := range out.Resolution.Ambiguities {
				infoLogger.Printf("dry run: contested %s", a)
			}
		default:
			wrapFatalln("unexpected outcome", status.ErrInternal.WrapMessage("%s", out.State))
			return
		}
	},
}

func init() {
	snapshotCommitCmd.Flags().StringVar(&ettlexFlags.snapshot.leaf, "leaf", "",
		"leaf partition to snapshot (handle or id); mutually exclusive with --root")
	snapshotCommitCmd.Flags().StringVar(&ettlexFlags.snapshot.rootEttle, "root", "",
		"root ettle whose single leaf partition is snapshotted (handle or id)")
	snapshotCommitCmd.Flags().IntVar(&ettlexFlags.snapshot.leafOrdinal, "leaf-ordinal", -1,
		"ordinal selecting the leaf partition when the leaf ettle has several")
	snapshotCommitCmd.Flags().StringVar(&ettlexFlags.snapshot.profile, "profile", "",
		"profile reference resolved through the ledger")
	snapshotCommitCmd.Flags().StringVar(&ettlexFlags.snapshot.policy, "policy", "",
		"policy reference recorded in the manifest")
	snapshotCommitCmd.Flags().StringVar(&ettlexFlags.snapshot.ambiguity, "ambiguity",
		string(snapshot.FailFast),
		"constraint ambiguity policy (fail_fast, choose_deterministic, route_for_approval)")
	snapshotCommitCmd.Flags().BoolVar(&ettlexFlags.snapshot.dryRun, "dry-run", false,
		"compute everything, write nothing")
	snapshotCommitCmd.Flags().StringVar(&ettlexFlags.snapshot.expectHead, "expect-head", "",
		"fail unless the current head has this manifest digest")
	snapshotCommitCmd.Flags().BoolVar(&ettlexFlags.snapshot.noHead, "expect-no-head", false,
		"fail unless the root has no snapshots yet")
	snapshotCommitCmd.Flags().BoolVar(&ettlexFlags.snapshot.dedup, "dedup", false,
		"return the existing snapshot when an equivalent one was already committed")

	snapshotCmd.AddCommand(snapshotCommitCmd)
}
