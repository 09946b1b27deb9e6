// Package cas implements the content-addressed blob store: immutable byte
// sequences keyed by their digest, laid out in sharded directories, written
// atomically via temp-file-then-rename.
package cas

import (
	"bytes"
	"os"
	"path"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/nickout/ettlex/pkg/status"
	"github.com/nickout/ettlex/pkg/traversal"
)

// Kind tags a blob with its document type and determines the file
// extension of its stored form.
type Kind string

const (
	// KindManifest is a canonically-serialized JSON manifest.
	KindManifest Kind = "manifest"
	// KindDocument is a markdown authoring document.
	KindDocument Kind = "document"
)

var kindExt = map[Kind]string{
	KindManifest: ".json",
	KindDocument: ".md",
}

// knownExts is the lookup order for reads when the blob index has no
// answer. Keep in sync with kindExt.
var knownExts = []string{".json", ".md"}

// FsStore is a filesystem-backed content-addressed store. Blobs live at
// <root>/<first-2-hex-of-digest>/<digest>.<ext>.
type FsStore struct {
	fs    afero.Fs
	index *Index
	l     *zap.Logger
}

// Option configures an FsStore.
type Option func(*FsStore)

// WithIndex attaches an auxiliary blob index. The index is not load
// bearing: reads work correctly when it is absent or stale.
func WithIndex(ix *Index) Option {
	return func(s *FsStore) { s.index = ix }
}

// WithLogger sets the store logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *FsStore) { s.l = l }
}

// New creates a store over the given filesystem. Pass a base-path fs to
// root the store in a directory.
func New(fs afero.Fs, opts ...Option) *FsStore {
	s := &FsStore{fs: fs, l: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func blobPath(digest string, ext string) string {
	return path.Join(digest[:2], digest+ext)
}

// Write stores a blob and returns its digest. Rewriting identical bytes is
// a no-op; finding different bytes at the computed address is a corruption
// signal and fails.
func (s *FsStore) Write(data []byte, kind Kind) (string, error) {
	ext, ok := kindExt[kind]
	if !ok {
		return "", status.ErrInvalidInput.WrapMessage("unknown blob kind %q", kind)
	}
	digest, err := traversal.Sum(data)
	if err != nil {
		return "", err
	}
	target := blobPath(digest, ext)

	existing, err := afero.ReadFile(s.fs, target)
	if err == nil {
		if bytes.Equal(existing, data) {
			return digest, nil
		}
		return "", status.ErrCasCollision.WrapMessage("digest %s", digest)
	}
	if !os.IsNotExist(err) {
		return "", status.ErrPersistence.Wrap(err)
	}

	if err := s.fs.MkdirAll(digest[:2], 0700); err != nil {
		return "", status.ErrPersistence.Wrap(err)
	}
	tmp, err := afero.TempFile(s.fs, digest[:2], "."+digest+".tmp")
	if err != nil {
		return "", status.ErrPersistence.Wrap(err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)
		return "", status.ErrPersistence.Wrap(err)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return "", status.ErrPersistence.Wrap(err)
	}
	if err := s.fs.Rename(tmpName, target); err != nil {
		_ = s.fs.Remove(tmpName)
		return "", status.ErrPersistence.Wrap(err)
	}
	s.l.Debug("blob written", zap.String("digest", digest), zap.String("kind", string(kind)))

	if s.index != nil {
		if err := s.index.Put(digest, kind); err != nil {
			// index failures never fail the write
			s.l.Warn("blob index update failed", zap.String("digest", digest), zap.Error(err))
		}
	}
	return digest, nil
}

// Read returns the bytes of a stored blob.
func (s *FsStore) Read(digest string) ([]byte, error) {
	if len(digest) < 2 {
		return nil, status.ErrInvalidInput.WrapMessage("malformed digest %q", digest)
	}
	for _, ext := range s.extCandidates(digest) {
		data, err := afero.ReadFile(s.fs, blobPath(digest, ext))
		if err == nil {
			return data, nil
		}
		if !os.IsNotExist(err) {
			return nil, status.ErrPersistence.Wrap(err)
		}
	}
	return nil, status.ErrCasMissing.WrapMessage("digest %s", digest)
}

// Exists tells whether a blob with the given digest is stored.
func (s *FsStore) Exists(digest string) (bool, error) {
	if len(digest) < 2 {
		return false, status.ErrInvalidInput.WrapMessage("malformed digest %q", digest)
	}
	for _, ext := range s.extCandidates(digest) {
		ok, err := afero.Exists(s.fs, blobPath(digest, ext))
		if err != nil {
			return false, status.ErrPersistence.Wrap(err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// extCandidates orders extension lookups, consulting the index first when
// present. A stale or missing index answer only changes the probe order,
// never the outcome.
func (s *FsStore) extCandidates(digest string) []string {
	if s.index == nil {
		return knownExts
	}
	kind, err := s.index.Get(digest)
	if err != nil {
		return knownExts
	}
	ext, ok := kindExt[kind]
	if !ok {
		return knownExts
	}
	out := []string{ext}
	for _, e := range knownExts {
		if e != ext {
			out = append(out, e)
		}
	}
	return out
}
