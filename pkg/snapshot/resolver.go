package snapshot

import (
	"fmt"
	"sort"

	"github.com/nickout/ettlex/pkg/kernel"
	"github.com/nickout/ettlex/pkg/model"
	"github.com/nickout/ettlex/pkg/status"
)

// AmbiguityPolicy selects how competing constraint candidates are handled
// during commit.
type AmbiguityPolicy string

const (
	// FailFast errors out on any ambiguous candidate set.
	FailFast AmbiguityPolicy = "fail_fast"
	// ChooseDeterministic breaks ties lexicographically by constraint id.
	ChooseDeterministic AmbiguityPolicy = "choose_deterministic"
	// RouteForApproval records a durable approval request and short
	// circuits the commit without writing anything.
	RouteForApproval AmbiguityPolicy = "route_for_approval"
)

// Ambiguity describes one contested candidate set: several constraints of
// the same family, kind and scope attached along the traversal.
type Ambiguity struct {
	Family     string
	Kind       string
	Scope      string
	Candidates []string

	_ struct{}
}

func (a Ambiguity) String() string {
	return fmt.Sprintf("%s/%s/%s: %v", a.Family, a.Kind, a.Scope, a.Candidates)
}

// Resolution is the outcome of constraint resolution over one traversal.
type Resolution struct {
	Envelope    ConstraintsEnvelope
	Ambiguities []Ambiguity

	_ struct{}
}

// resolveConstraints gathers every constraint reference attached to the
// traversal's partitions, groups them by family, and resolves candidate
// contention under the given policy.
//
// Declared carries everything attached; effective mirrors declared (scope
// narrowing is owned by profiles, out of this core); resolved carries the
// selection. Under FailFast an ambiguity is an error. Under
// ChooseDeterministic the lexicographically smallest candidate id wins.
// Under RouteForApproval resolution returns the ambiguity list and the
// caller routes it; resolved is left empty for contested groups.
func resolveConstraints(s *kernel.Store, ept []string, policy AmbiguityPolicy) (*Resolution, error) {
	byFamily := map[string][]model.ConstraintRef{}
	for _, pid := range ept {
		for _, ref := range s.ConstraintRefs(pid) {
			byFamily[ref.Family] = append(byFamily[ref.Family], ref)
		}
	}
	families := make([]string, 0, len(byFamily))
	for fam := range byFamily {
		families = append(families, fam)
	}
	sort.Strings(families)

	res := &Resolution{Envelope: ConstraintsEnvelope{Families: []FamilyConstraints{}}}
	for _, fam := range families {
		declared := sortRefs(byFamily[fam])
		resolved, ambiguities, err := resolveFamily(fam, declared, policy)
		if err != nil {
			return nil, err
		}
		res.Ambiguities = append(res.Ambiguities, ambiguities...)
		res.Envelope.Families = append(res.Envelope.Families, FamilyConstraints{
			Family:    fam,
			Declared:  declared,
			Effective: declared,
			Resolved:  resolved,
		})
	}
	return res, nil
}

// resolveFamily resolves one family's candidate groups. Groups are keyed by
// (kind, scope); a group with one candidate resolves to it, a larger group
// is contested.
func resolveFamily(family string, declared []model.ConstraintRef, policy AmbiguityPolicy) ([]model.ConstraintRef, []Ambiguity, error) {
	type groupKey struct{ kind, scope string }
	groups := map[groupKey][]model.ConstraintRef{}
	var keys []groupKey
	for _, ref := range declared {
		k := groupKey{ref.Kind, ref.Scope}
		if _, seen := groups[k]; !seen {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], ref)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].kind != keys[j].kind {
			return keys[i].kind < keys[j].kind
		}
		return keys[i].scope < keys[j].scope
	})

	resolved := []model.ConstraintRef{}
	var ambiguities []Ambiguity
	for _, k := range keys {
		candidates := groups[k]
		if len(candidates) == 1 {
			resolved = append(resolved, candidates[0])
			continue
		}
		ids := make([]string, 0, len(candidates))
		for _, c := range candidates {
			ids = append(ids, c.ConstraintID)
		}
		sort.Strings(ids)

		switch policy {
		case ChooseDeterministic:
			winner := candidates[0]
			for _, c := range candidates[1:] {
				if c.ConstraintID < winner.ConstraintID {
					winner = c
				}
			}
			resolved = append(resolved, winner)
		case RouteForApproval:
			ambiguities = append(ambiguities, Ambiguity{
				Family: family, Kind: k.kind, Scope: k.scope, Candidates: ids,
			})
		default:
			return nil, nil, status.ErrAmbiguousSelection.WrapMessage(
				"family %s kind %s scope %s has %d candidates: %v",
				family, k.kind, k.scope, len(candidates), ids)
		}
	}
	return resolved, ambiguities, nil
}
