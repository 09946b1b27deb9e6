package cas

import (
	"os"

	"github.com/dgraph-io/badger"

	"github.com/nickout/ettlex/pkg/status"
)

// Index is an auxiliary digest-to-kind lookup backed by badger. It only
// speeds up extension resolution on reads; the filesystem layout stays the
// source of truth and every read works with the index absent or stale.
type Index struct {
	db *badger.DB
}

// OpenIndex opens (or creates) a blob index at dir.
func OpenIndex(dir string) (*Index, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, status.ErrPersistence.Wrap(err)
	}
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, status.ErrPersistence.Wrap(err)
	}
	return &Index{db: db}, nil
}

// Put records the kind of a stored blob.
func (ix *Index) Put(digest string, kind Kind) error {
	err := ix.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(digest), []byte(kind))
	})
	if err != nil {
		return status.ErrPersistence.Wrap(err)
	}
	return nil
}

// Get returns the recorded kind of a digest.
func (ix *Index) Get(digest string) (Kind, error) {
	var kind Kind
	err := ix.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(digest))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			kind = Kind(val)
			return nil
		})
	})
	switch {
	case err == nil:
		return kind, nil
	case err == badger.ErrKeyNotFound:
		return "", status.ErrNotFound.WrapMessage("digest %s not indexed", digest)
	default:
		return "", status.ErrPersistence.Wrap(err)
	}
}

// Close releases the underlying database.
func (ix *Index) Close() error {
	return ix.db.Close()
}
