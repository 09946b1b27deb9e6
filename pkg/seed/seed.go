// Package seed parses v0 seed files and replays them into a kernel store
// through the apply boundary, producing a provenance digest for the
// imported content.
package seed

import (
	yaml "gopkg.in/yaml.v2"

	"github.com/nickout/ettlex/pkg/status"
)

// SchemaVersion is the only seed format this importer accepts.
const SchemaVersion = 0

// Seed is a v0 seed file: a named project, its ettles with nested
// partitions, and the refinement links between them.
type Seed struct {
	SchemaVersion int         `yaml:"schema_version"`
	Project       Project     `yaml:"project"`
	Ettles        []SeedEttle `yaml:"ettles"`
	Links         []SeedLink  `yaml:"links"`

	_ struct{}
}

// Project carries seed-level metadata.
type Project struct {
	Name string `yaml:"name"`

	_ struct{}
}

// SeedEttle declares one ettle and its partitions. Ids are seed-local
// handles, stable across imports of the same file.
type SeedEttle struct {
	ID    string   `yaml:"id"`
	Title string   `yaml:"title"`
	EPs   []SeedEP `yaml:"eps"`

	_ struct{}
}

// SeedEP declares one partition.
type SeedEP struct {
	ID        string   `yaml:"id"`
	Ordinal   uint32   `yaml:"ordinal"`
	Normative bool     `yaml:"normative"`
	Why       string   `yaml:"why"`
	What      flexText `yaml:"what"`
	How       string   `yaml:"how"`

	_ struct{}
}

// SeedLink declares one refinement edge.
type SeedLink struct {
	Parent   string `yaml:"parent"`
	ParentEP string `yaml:"parent_ep"`
	Child    string `yaml:"child"`

	_ struct{}
}

// flexText accepts either a plain string or a typed block with a text
// field, normalizing both to the string content.
type flexText string

func (f *flexText) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err == nil {
		*f = flexText(s)
		return nil
	}
	var block struct {
		Text *string `yaml:"text"`
	}
	if err := unmarshal(&block); err != nil {
		return err
	}
	if block.Text == nil {
		return status.ErrInvalidInput.WrapMessage("what block requires a text field")
	}
	*f = flexText(*block.Text)
	return nil
}

// Parse decodes and validates a v0 seed document.
func Parse(data []byte) (*Seed, error) {
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, status.ErrInvalidInput.Wrap(err)
	}
	if err := validate(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

func validate(s *Seed) error {
	if s.SchemaVersion != SchemaVersion {
		return status.ErrInvalidInput.WrapMessage(
			"unsupported seed schema version %d", s.SchemaVersion)
	}
	seenEttles := map[string]bool{}
	seenEPs := map[string]bool{}
	for _, e := range s.Ettles {
		if e.ID == "" {
			return status.ErrInvalidInput.WrapMessage("ettle without id")
		}
		if seenEttles[e.ID] {
			return status.ErrInvalidInput.WrapMessage("duplicate ettle id %q", e.ID)
		}
		seenEttles[e.ID] = true
		if e.Title == "" {
			return status.ErrInvalidTitle.WrapMessage("ettle %q", e.ID)
		}
		ordinals := map[uint32]bool{}
		for _, ep := range e.EPs {
			if ep.ID == "" {
				return status.ErrInvalidInput.WrapMessage("partition without id in ettle %q", e.ID)
			}
			if seenEPs[ep.ID] {
				return status.ErrInvalidInput.WrapMessage("duplicate partition id %q", ep.ID)
			}
			seenEPs[ep.ID] = true
			if ordinals[ep.Ordinal] {
				return status.ErrConstraintViolation.WrapMessage(
					"duplicate ordinal %d in ettle %q", ep.Ordinal, e.ID)
			}
			ordinals[ep.Ordinal] = true
		}
	}
	// links may reference handles from earlier imports, so only shape is
	// checked here; resolution happens at import time
	for _, l := range s.Links {
		if l.Parent == "" || l.ParentEP == "" || l.Child == "" {
			return status.ErrInvalidInput.WrapMessage(
				"link %q -> %q via %q is incomplete", l.Parent, l.Child, l.ParentEP)
		}
	}
	return nil
}
