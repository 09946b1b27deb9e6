package cmd

import (
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/nickout/ettlex/pkg/cas"
	"github.com/nickout/ettlex/pkg/ledger"
	"github.com/nickout/ettlex/pkg/workspace"
)

// currentWorkspace opens the workspace named by flags or config.
func currentWorkspace(l *zap.Logger) *workspace.Workspace {
	return workspace.New(afero.NewOsFs(), ettlexFlags.root.workspace, workspace.WithLogger(l))
}

// openLedger opens the workspace ledger. Callers own the Close.
func openLedger(w *workspace.Workspace, l *zap.Logger) (*ledger.Ledger, error) {
	return ledger.Open(w.LedgerPath(), ledger.WithLogger(l))
}

// openBlobs opens the workspace blob store with its auxiliary index when
// the index can be opened, without it otherwise.
func openBlobs(w *workspace.Workspace, l *zap.Logger) (*cas.FsStore, func(), error) {
	ix, err := cas.OpenIndex(w.IndexPath())
	if err != nil {
		l.Warn("blob index unavailable, reads fall back to probing", zap.Error(err))
		blobs, berr := w.Blobs(cas.WithLogger(l))
		return blobs, func() {}, berr
	}
	blobs, err := w.Blobs(cas.WithLogger(l), cas.WithIndex(ix))
	if err != nil {
		_ = ix.Close()
		return nil, nil, err
	}
	return blobs, func() { _ = ix.Close() }, nil
}

// resolveHandle maps a seed handle to its kernel id, passing raw kernel
// ids through untouched.
func resolveHandle(m map[string]string, ref string) string {
	if id, ok := m[ref]; ok {
		return id
	}
	return ref
}
