package kernel

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/nickout/ettlex/pkg/model"
	"github.com/nickout/ettlex/pkg/status"
)

// StateSchemaVersion tags serialized store documents.
const StateSchemaVersion = 1

var stateJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// stateDoc is the serialized form of a Store: entities in sorted-id order
// so the same state always marshals to the same bytes.
type stateDoc struct {
	SchemaVersion  int                              `json:"schemaVersion"`
	Config         Config                           `json:"config"`
	Ettles         []*model.Ettle                   `json:"ettles"`
	Partitions     []*model.Partition               `json:"partitions"`
	ConstraintRefs map[string][]model.ConstraintRef `json:"constraintRefs,omitempty"`
}

// MarshalState serializes the store, tombstones included.
func (s *Store) MarshalState() ([]byte, error) {
	doc := stateDoc{
		SchemaVersion: StateSchemaVersion,
		Config:        s.cfg,
		Ettles:        make([]*model.Ettle, 0, len(s.ettles)),
		Partitions:    make([]*model.Partition, 0, len(s.partitions)),
	}
	for _, id := range s.EttleIDs() {
		doc.Ettles = append(doc.Ettles, s.ettles[id])
	}
	for _, id := range s.PartitionIDs() {
		doc.Partitions = append(doc.Partitions, s.partitions[id])
	}
	if len(s.constraintRefs) > 0 {
		doc.ConstraintRefs = s.constraintRefs
	}
	b, err := stateJSON.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, status.ErrInternal.Wrap(err)
	}
	return b, nil
}

// LoadState rebuilds a store from serialized bytes and checks its
// structural invariants before handing it back.
func LoadState(data []byte) (*Store, error) {
	var doc stateDoc
	if err := stateJSON.Unmarshal(data, &doc); err != nil {
		return nil, status.ErrInvalidInput.Wrap(err)
	}
	if doc.SchemaVersion != StateSchemaVersion {
		return nil, status.ErrInvalidInput.WrapMessage(
			"unsupported state schema version %d", doc.SchemaVersion)
	}
	s := NewWithConfig(doc.Config)
	for _, e := range doc.Ettles {
		if e.ID == "" {
			return nil, status.ErrInvalidInput.WrapMessage("ettle without id in state document")
		}
		s.ettles[e.ID] = e
	}
	for _, p := range doc.Partitions {
		if p.ID == "" {
			return nil, status.ErrInvalidInput.WrapMessage("partition without id in state document")
		}
		s.partitions[p.ID] = p
	}
	for id, refs := range doc.ConstraintRefs {
		s.constraintRefs[id] = refs
	}
	if err := s.ValidateTree(); err != nil {
		return nil, status.ErrInvalidInput.WrapMessage("state document fails validation: %v", err)
	}
	return s, nil
}
