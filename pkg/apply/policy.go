package apply

// AnchorPolicy decides whether an entity is anchored, which governs how a
// partition deletion behaves. Injected so callers and tests can supply
// deterministic policies without config plumbing.
type AnchorPolicy interface {
	IsAnchoredPartition(id string) bool
	IsAnchoredEttle(id string) bool
}

// NeverAnchored treats nothing as anchored: every partition delete is a
// hard delete.
type NeverAnchored struct{}

func (NeverAnchored) IsAnchoredPartition(string) bool { return false }
func (NeverAnchored) IsAnchoredEttle(string) bool     { return false }

// SelectedAnchored anchors an explicit set of ids.
type SelectedAnchored struct {
	Partitions map[string]bool
	Ettles     map[string]bool

	_ struct{}
}

func (p SelectedAnchored) IsAnchoredPartition(id string) bool { return p.Partitions[id] }
func (p SelectedAnchored) IsAnchoredEttle(id string) bool     { return p.Ettles[id] }
