package seed

import (
	"go.uber.org/zap"

	"github.com/nickout/ettlex/pkg/apply"
	"github.com/nickout/ettlex/pkg/kernel"
	"github.com/nickout/ettlex/pkg/status"
)

// Mapping translates seed-local handles to kernel ids. Carry it across
// imports to let a later seed link against entities from an earlier one.
type Mapping struct {
	Ettles     map[string]string `json:"ettles"`
	Partitions map[string]string `json:"partitions"`

	_ struct{}
}

// NewMapping returns an empty handle mapping.
func NewMapping() *Mapping {
	return &Mapping{Ettles: map[string]string{}, Partitions: map[string]string{}}
}

func (m *Mapping) clone() *Mapping {
	c := NewMapping()
	for k, v := range m.Ettles {
		c.Ettles[k] = v
	}
	for k, v := range m.Partitions {
		c.Partitions[k] = v
	}
	return c
}

// ImportResult carries the outcome of a successful import.
type ImportResult struct {
	State   *kernel.Store
	Mapping *Mapping
	Digest  string

	_ struct{}
}

// Importer replays seeds through the apply boundary.
type Importer struct {
	l *zap.Logger
}

// NewImporter creates an importer. A nil logger means silent.
func NewImporter(l *zap.Logger) *Importer {
	if l == nil {
		l = zap.NewNop()
	}
	return &Importer{l: l}
}

// Import replays a parsed seed into a state: ettles and partitions in file
// order, then links in file order, every step through apply. On error the
// input state is untouched. Replays are deterministic: the same seed
// against the same state yields the same structure and provenance digest.
func (imp *Importer) Import(state *kernel.Store, s *Seed, prior *Mapping) (*ImportResult, error) {
	digest, err := Digest(s)
	if err != nil {
		return nil, err
	}
	if prior == nil {
		prior = NewMapping()
	}
	mapping := prior.clone()
	cur := state

	for _, se := range s.Ettles {
		if _, exists := mapping.Ettles[se.ID]; exists {
			return nil, status.ErrConstraintViolation.WrapMessage(
				"ettle handle %q already imported", se.ID)
		}
		res, err := apply.Apply(cur, apply.EttleCreate{Title: se.Title}, nil)
		if err != nil {
			return nil, err
		}
		cur = res.State
		mapping.Ettles[se.ID] = res.CreatedID

		for _, ep := range se.EPs {
			cur, err = imp.importPartition(cur, mapping, res.CreatedID, ep)
			if err != nil {
				return nil, err
			}
		}
	}

	for _, l := range s.Links {
		parentEP, ok := mapping.Partitions[l.ParentEP]
		if !ok {
			return nil, status.ErrNotFound.WrapMessage("partition handle %q", l.ParentEP)
		}
		child, ok := mapping.Ettles[l.Child]
		if !ok {
			return nil, status.ErrNotFound.WrapMessage("ettle handle %q", l.Child)
		}
		res, err := apply.Apply(cur, apply.LinkChild{PartitionID: parentEP, ChildID: child}, nil)
		if err != nil {
			return nil, err
		}
		cur = res.State
	}

	imp.l.Info("seed imported",
		zap.String("project", s.Project.Name),
		zap.String("seed_digest", digest),
		zap.Int("ettles", len(s.Ettles)),
		zap.Int("links", len(s.Links)),
	)
	return &ImportResult{State: cur, Mapping: mapping, Digest: digest}, nil
}

// importPartition maps one seed partition onto the store. Ordinal 0 updates
// the auto-created partition in place; other ordinals create new ones.
func (imp *Importer) importPartition(cur *kernel.Store, mapping *Mapping, ettleID string, ep SeedEP) (*kernel.Store, error) {
	if _, exists := mapping.Partitions[ep.ID]; exists {
		return nil, status.ErrConstraintViolation.WrapMessage(
			"partition handle %q already imported", ep.ID)
	}

	if ep.Ordinal == 0 {
		e, err := cur.GetEttle(ettleID)
		if err != nil {
			return nil, err
		}
		active, err := cur.ActivePartitions(e)
		if err != nil {
			return nil, err
		}
		if len(active) == 0 || active[0].Ordinal != 0 {
			return nil, status.ErrInternal.WrapMessage(
				"fresh ettle %q has no ordinal-0 partition", ettleID)
		}
		what := string(ep.What)
		how := ep.How
		normative := ep.Normative
		upd := kernel.PartitionUpdate{What: &what, How: &how, Normative: &normative}
		if ep.Why != "" {
			why := ep.Why
			upd.Why = &why
		}
		res, err := apply.Apply(cur, apply.PartitionUpdate{ID: active[0].ID, Update: upd}, nil)
		if err != nil {
			return nil, err
		}
		mapping.Partitions[ep.ID] = active[0].ID
		return res.State, nil
	}

	ordinal := ep.Ordinal
	res, err := apply.Apply(cur, apply.PartitionCreate{
		EttleID: ettleID,
		In: kernel.PartitionCreate{
			Ordinal:   &ordinal,
			Why:       ep.Why,
			What:      string(ep.What),
			How:       ep.How,
			Normative: ep.Normative,
		},
	}, nil)
	if err != nil {
		return nil, err
	}
	mapping.Partitions[ep.ID] = res.CreatedID
	return res.State, nil
}
