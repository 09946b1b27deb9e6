// Package workspace manages the on-disk working directory of a project:
// the serialized tree state, the seed handle mapping, the blob store root
// and the ledger database path.
package workspace

import (
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/nickout/ettlex/pkg/cas"
	"github.com/nickout/ettlex/pkg/kernel"
	"github.com/nickout/ettlex/pkg/seed"
	"github.com/nickout/ettlex/pkg/status"
)

const (
	stateFile   = "state.json"
	mappingFile = "mapping.json"
	blobsDir    = "blobs"
	ledgerFile  = "ledger.db"
	indexDir    = "index"
)

var mappingJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// Workspace is a project directory. Files are written with the same
// temp-then-rename discipline as the blob store, so a crashed save never
// leaves a truncated state file behind.
type Workspace struct {
	fs  afero.Fs
	dir string
	l   *zap.Logger
}

// Option configures a workspace.
type Option func(*Workspace)

// WithLogger sets the workspace logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Workspace) { w.l = l }
}

// New creates a workspace over a directory. The directory is created on
// first save, not here.
func New(fs afero.Fs, dir string, opts ...Option) *Workspace {
	w := &Workspace{fs: fs, dir: dir, l: zap.NewNop()}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Dir returns the workspace directory.
func (w *Workspace) Dir() string {
	return w.dir
}

// LedgerPath returns the path of the sqlite ledger database. The ledger
// opens its own file handle, so the workspace only names the location.
func (w *Workspace) LedgerPath() string {
	return filepath.Join(w.dir, ledgerFile)
}

// IndexPath returns the directory of the auxiliary blob index.
func (w *Workspace) IndexPath() string {
	return filepath.Join(w.dir, indexDir)
}

// Blobs returns the content-addressed store rooted in the workspace.
func (w *Workspace) Blobs(opts ...cas.Option) (*cas.FsStore, error) {
	root := filepath.Join(w.dir, blobsDir)
	if err := w.fs.MkdirAll(root, 0700); err != nil {
		return nil, status.ErrPersistence.Wrap(err)
	}
	return cas.New(afero.NewBasePathFs(w.fs, root), opts...), nil
}

// LoadState reads the serialized tree state. A missing file yields a fresh
// empty store.
func (w *Workspace) LoadState() (*kernel.Store, error) {
	data, err := afero.ReadFile(w.fs, filepath.Join(w.dir, stateFile))
	if os.IsNotExist(err) {
		return kernel.New(), nil
	}
	if err != nil {
		return nil, status.ErrPersistence.Wrap(err)
	}
	return kernel.LoadState(data)
}

// SaveState writes the serialized tree state.
func (w *Workspace) SaveState(s *kernel.Store) error {
	data, err := s.MarshalState()
	if err != nil {
		return err
	}
	if err := w.writeFile(stateFile, data); err != nil {
		return err
	}
	w.l.Debug("state saved", zap.String("dir", w.dir), zap.Int("bytes", len(data)))
	return nil
}

// LoadMapping reads the seed handle mapping. A missing file yields an
// empty mapping.
func (w *Workspace) LoadMapping() (*seed.Mapping, error) {
	data, err := afero.ReadFile(w.fs, filepath.Join(w.dir, mappingFile))
	if os.IsNotExist(err) {
		return seed.NewMapping(), nil
	}
	if err != nil {
		return nil, status.ErrPersistence.Wrap(err)
	}
	m := seed.NewMapping()
	if err := mappingJSON.Unmarshal(data, m); err != nil {
		return nil, status.ErrInvalidInput.Wrap(err)
	}
	return m, nil
}

// SaveMapping writes the seed handle mapping.
func (w *Workspace) SaveMapping(m *seed.Mapping) error {
	data, err := mappingJSON.MarshalIndent(m, "", "  ")
	if err != nil {
		return status.ErrInternal.Wrap(err)
	}
	return w.writeFile(mappingFile, data)
}

func (w *Workspace) writeFile(name string, data []byte) error {
	if err := w.fs.MkdirAll(w.dir, 0700); err != nil {
		return status.ErrPersistence.Wrap(err)
	}
	tmp, err := afero.TempFile(w.fs, w.dir, "."+name+".tmp")
	if err != nil {
		return status.ErrPersistence.Wrap(err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = w.fs.Remove(tmpName)
		return status.ErrPersistence.Wrap(err)
	}
	if err := tmp.Close(); err != nil {
		_ = w.fs.Remove(tmpName)
		return status.ErrPersistence.Wrap(err)
	}
	if err := w.fs.Rename(tmpName, filepath.Join(w.dir, name)); err != nil {
		_ = w.fs.Remove(tmpName)
		return status.ErrPersistence.Wrap(err)
	}
	return nil
}
