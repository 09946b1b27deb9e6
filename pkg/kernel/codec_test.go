package kernel

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nickout/ettlex/pkg/errors"
	"github.com/nickout/ettlex/pkg/model"
	"github.com/nickout/ettlex/pkg/status"
)

func TestStateRoundtrip(t *testing.T) {
	s := New()
	root := mustCreateEttle(t, s, "Root")
	child := mustCreateEttle(t, s, "Child")
	pid, err := s.CreatePartition(root, contentPartition())
	require.NoError(t, err)
	require.NoError(t, s.LinkChild(pid, child))
	require.NoError(t, s.AttachConstraint(pid, model.ConstraintRef{
		ConstraintID: "c-1", Family: "safety", Kind: "limit", Scope: "global", Ordinal: 1,
	}))
	spare, err := s.CreatePartition(root, PartitionCreate{What: "spare", How: "spare"})
	require.NoError(t, err)
	require.NoError(t, s.DeletePartition(spare))

	data, err := s.MarshalState()
	require.NoError(t, err)

	loaded, err := LoadState(data)
	require.NoError(t, err)
	require.Equal(t, s.EttleIDs(), loaded.EttleIDs())
	require.Equal(t, s.PartitionIDs(), loaded.PartitionIDs())
	require.Equal(t, s.ConstraintRefs(pid), loaded.ConstraintRefs(pid))

	p, err := loaded.GetPartition(pid)
	require.NoError(t, err)
	require.Equal(t, child, p.ChildID)

	// tombstones survive the roundtrip and retired ordinals stay retired
	origNext, err := s.NextOrdinal(root)
	require.NoError(t, err)
	loadedNext, err := loaded.NextOrdinal(root)
	require.NoError(t, err)
	require.Equal(t, origNext, loadedNext)

	// the same state marshals to the same bytes
	again, err := loaded.MarshalState()
	require.NoError(t, err)
	require.Equal(t, data, again)
}

func TestLoadStateRejectsBadDocuments(t *testing.T) {
	_, err := LoadState([]byte("not json"))
	require.True(t, errors.Is(err, status.ErrInvalidInput))

	_, err = LoadState([]byte(`{"schemaVersion": 99, "ettles": [], "partitions": []}`))
	require.True(t, errors.Is(err, status.ErrInvalidInput))

	// a partition pointing at a missing owner fails validation on load
	doc := `{
		"schemaVersion": 1,
		"config": {},
		"ettles": [],
		"partitions": [
			{"id": "ep-x", "ettleId": "ettle-gone", "ordinal": 0, "normative": true,
			 "createdAt": "2024-01-01T00:00:00Z", "updatedAt": "2024-01-01T00:00:00Z"}
		]
	}`
	_, err = LoadState([]byte(doc))
	require.True(t, errors.Is(err, status.ErrInvalidInput))

	// so does a mapping partition whose child ettle does not exist
	doc = `{
		"schemaVersion": 1,
		"config": {},
		"ettles": [
			{"id": "ettle-a", "title": "a", "partitions": ["ep-a0"],
			 "createdAt": "2024-01-01T00:00:00Z", "updatedAt": "2024-01-01T00:00:00Z"}
		],
		"partitions": [
			{"id": "ep-a0", "ettleId": "ettle-a", "ordinal": 0, "normative": true,
			 "childId": "ettle-ghost",
			 "createdAt": "2024-01-01T00:00:00Z", "updatedAt": "2024-01-01T00:00:00Z"}
		]
	}`
	_, err = LoadState([]byte(doc))
	require.True(t, errors.Is(err, status.ErrInvalidInput))
}
