package kernel

import (
	"time"

	"github.com/nickout/ettlex/pkg/model"
	"github.com/nickout/ettlex/pkg/status"
)

// EttleUpdate carries a partial ettle update. Nil fields are untouched.
type EttleUpdate struct {
	Title    *string
	Metadata map[string]string

	_ struct{}
}

// CreateEttle creates an ettle with the given title and optional metadata.
// Every ettle starts with an auto-created ordinal-0 partition so the active
// projection is never empty for a fresh node.
func (s *Store) CreateEttle(title string, metadata map[string]string) (string, error) {
	if emptyOrBlank(title) {
		return "", status.ErrInvalidTitle.WrapMessage("title must be non-empty")
	}
	now := time.Now().UTC()
	e := &model.Ettle{
		ID:        model.NewEttleID(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if len(metadata) > 0 {
		e.Metadata = make(map[string]string, len(metadata))
		for k, v := range metadata {
			e.Metadata[k] = v
		}
	}
	p := &model.Partition{
		ID:        model.NewPartitionID(),
		EttleID:   e.ID,
		Ordinal:   0,
		Normative: true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	e.Partitions = []string{p.ID}
	s.ettles[e.ID] = e
	s.partitions[p.ID] = p
	return e.ID, nil
}

// UpdateEttle applies a partial update to an active ettle. Metadata keys are
// merged in; an explicit empty value removes the key.
func (s *Store) UpdateEttle(id string, upd EttleUpdate) error {
	e, err := s.GetEttle(id)
	if err != nil {
		return err
	}
	if upd.Title != nil {
		if emptyOrBlank(*upd.Title) {
			return status.ErrInvalidTitle.WrapMessage("title must be non-empty")
		}
		e.Title = *upd.Title
	}
	if len(upd.Metadata) > 0 {
		if e.Metadata == nil {
			e.Metadata = make(map[string]string, len(upd.Metadata))
		}
		for k, v := range upd.Metadata {
			if v == "" {
				delete(e.Metadata, k)
				continue
			}
			e.Metadata[k] = v
		}
	}
	s.touchEttle(e)
	return nil
}

// DeleteEttle tombstones an ettle. Hard ettle deletion does not exist: the
// record stays in storage and is excluded from every active view. Fails when
// any non-tombstoned child remains attached.
func (s *Store) DeleteEttle(id string) error {
	e, err := s.GetEttle(id)
	if err != nil {
		return err
	}
	children, err := s.Children(id)
	if err != nil {
		return err
	}
	// children attached with a parent pointer but no mapping partition yet
	// block deletion too
	for _, cid := range s.EttleIDs() {
		c := s.ettles[cid]
		if !c.Deleted && c.ParentID == id && !containsString(children, cid) {
			children = append(children, cid)
		}
	}
	if len(children) > 0 {
		return status.ErrHasChildren.WrapMessage(
			"ettle %q has %d active children", id, len(children))
	}
	e.Deleted = true
	s.touchEttle(e)
	return nil
}
