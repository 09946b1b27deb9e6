package model

// ConstraintRef is an opaque reference to a constraint attached to a
// partition. The family is an open string discriminator: unknown families
// are carried through manifesting without interpretation, never narrowed
// to a closed enum.
type ConstraintRef struct {
	ConstraintID  string `json:"constraintId" yaml:"constraintId"`
	Family        string `json:"family" yaml:"family"`
	Kind          string `json:"kind" yaml:"kind"`
	Scope         string `json:"scope" yaml:"scope"`
	PayloadDigest string `json:"payloadDigest" yaml:"payloadDigest"`
	Ordinal       uint32 `json:"ordinal" yaml:"ordinal"`
	_             struct{}
}
