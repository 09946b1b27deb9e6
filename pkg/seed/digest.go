package seed

import (
	"sort"

	"github.com/nickout/ettlex/pkg/traversal"
)

// canonicalSeed is the digest payload: the seed's content with ettles
// sorted by id, partitions by ordinal and links by (parent, ep, child), so
// the digest is independent of file formatting and declaration order.
type canonicalSeed struct {
	SchemaVersion int             `json:"schemaVersion"`
	ProjectName   string          `json:"projectName"`
	Ettles        []canonicalNode `json:"ettles"`
	Links         []canonicalLink `json:"links"`
}

type canonicalNode struct {
	ID    string        `json:"id"`
	Title string        `json:"title"`
	EPs   []canonicalEP `json:"eps"`
}

type canonicalEP struct {
	ID        string `json:"id"`
	Ordinal   uint32 `json:"ordinal"`
	Normative bool   `json:"normative"`
	Why       string `json:"why"`
	What      string `json:"what"`
	How       string `json:"how"`
}

type canonicalLink struct {
	Parent   string `json:"parent"`
	ParentEP string `json:"parentEp"`
	Child    string `json:"child"`
}

// Digest computes the stable provenance digest of a seed.
func Digest(s *Seed) (string, error) {
	c := canonicalSeed{
		SchemaVersion: s.SchemaVersion,
		ProjectName:   s.Project.Name,
		Ettles:        make([]canonicalNode, 0, len(s.Ettles)),
		Links:         make([]canonicalLink, 0, len(s.Links)),
	}
	for _, e := range s.Ettles {
		node := canonicalNode{ID: e.ID, Title: e.Title, EPs: make([]canonicalEP, 0, len(e.EPs))}
		for _, ep := range e.EPs {
			node.EPs = append(node.EPs, canonicalEP{
				ID:        ep.ID,
				Ordinal:   ep.Ordinal,
				Normative: ep.Normative,
				Why:       ep.Why,
				What:      string(ep.What),
				How:       ep.How,
			})
		}
		sort.Slice(node.EPs, func(i, j int) bool { return node.EPs[i].Ordinal < node.EPs[j].Ordinal })
		c.Ettles = append(c.Ettles, node)
	}
	sort.Slice(c.Ettles, func(i, j int) bool { return c.Ettles[i].ID < c.Ettles[j].ID })

	for _, l := range s.Links {
		c.Links = append(c.Links, canonicalLink{Parent: l.Parent, ParentEP: l.ParentEP, Child: l.Child})
	}
	sort.Slice(c.Links, func(i, j int) bool {
		a, b := c.Links[i], c.Links[j]
		if a.Parent != b.Parent {
			return a.Parent < b.Parent
		}
		if a.ParentEP != b.ParentEP {
			return a.ParentEP < b.ParentEP
		}
		return a.Child < b.Child
	})

	b, err := traversal.CanonicalMarshal(c)
	if err != nil {
		return "", err
	}
	return traversal.Sum(b)
}
