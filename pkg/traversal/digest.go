package traversal

import (
	"encoding/hex"
	"strings"

	jsoniter "github.com/json-iterator/go"
	blake2b "github.com/minio/blake2b-simd"

	"github.com/nickout/ettlex/pkg/kernel"
	"github.com/nickout/ettlex/pkg/model"
	"github.com/nickout/ettlex/pkg/status"
)

// digestSize is the blake2b output size in bytes; digests are hex-encoded.
const digestSize = 32

// canonical serializes with sorted map keys so byte output never depends on
// insertion order. Struct fields marshal in declaration order, which is
// stable by construction.
var canonical = jsoniter.Config{SortMapKeys: true}.Froze()

// Sum computes the hex-encoded blake2b digest of a byte payload. All ettlex
// digests (partition, traversal, manifest, blob address) go through here.
func Sum(data []byte) (string, error) {
	hasher, err := blake2b.New(&blake2b.Config{Size: digestSize})
	if err != nil {
		return "", status.ErrInternal.Wrap(err)
	}
	if _, err := hasher.Write(data); err != nil {
		return "", status.ErrInternal.Wrap(err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// partitionContent is the canonical digest payload of a partition: the
// normalized content fields only, no identity, ordering or timestamps.
type partitionContent struct {
	Why  string `json:"why"`
	What string `json:"what"`
	How  string `json:"how"`
}

// PartitionDigest computes the stable content digest of a partition over
// its normalized why/what/how payload.
func PartitionDigest(p *model.Partition) (string, error) {
	payload := partitionContent{
		Why:  strings.TrimSpace(p.Why),
		What: strings.TrimSpace(p.What),
		How:  strings.TrimSpace(p.How),
	}
	b, err := canonical.Marshal(payload)
	if err != nil {
		return "", status.ErrInternal.Wrap(err)
	}
	return Sum(b)
}

// eptItem is one entry of the EPT digest payload.
type eptItem struct {
	ID      string `json:"id"`
	Ordinal uint32 `json:"ordinal"`
	Digest  string `json:"digest"`
}

// EPTDigest computes the stable digest of an ordered partition traversal:
// the canonical serialization of (id, ordinal, content digest) per step, in
// traversal order.
func EPTDigest(s *kernel.Store, ept []string) (string, error) {
	items := make([]eptItem, 0, len(ept))
	for _, pid := range ept {
		p, err := s.GetPartition(pid)
		if err != nil {
			return "", err
		}
		d, err := PartitionDigest(p)
		if err != nil {
			return "", err
		}
		items = append(items, eptItem{ID: p.ID, Ordinal: p.Ordinal, Digest: d})
	}
	b, err := canonical.Marshal(items)
	if err != nil {
		return "", status.ErrInternal.Wrap(err)
	}
	return Sum(b)
}

// CanonicalMarshal serializes a value with the traversal engine's canonical
// encoder. The manifest builder shares this so every digested document uses
// one serialization discipline.
func CanonicalMarshal(v interface{}) ([]byte, error) {
	b, err := canonical.Marshal(v)
	if err != nil {
		return nil, status.ErrInternal.Wrap(err)
	}
	return b, nil
}
