package models

// ParameterKind enumerates the value kinds a schema parameter may declare
type ParameterKind string

const (
	KindString ParameterKind = "string"
	KindInt    ParameterKind = "int"
	KindFloat  ParameterKind = "float"
	KindBool   ParameterKind = "bool"
	KindChoice ParameterKind = "choice"
)

// ParameterSpec describes one named parameter of an endpoint's argument schema
type ParameterSpec struct {
	Name        string        `json:"name"`
	Kind        ParameterKind `json:"type"`
	Required    bool          `json:"required"`
	Default     *string       `json:"default,omitempty"`
	Description string        `json:"description,omitempty"`
	Choices     []string      `json:"choices,omitempty"`
}

// HasDefault reports whether a default value is declared
func (p ParameterSpec) HasDefault() bool {
	return p.Default != nil
}

// ArgumentSchema is the ordered parameter list attached to an endpoint.
// Fetched once per run, immutable thereafter.
type ArgumentSchema struct {
	Parameters []ParameterSpec `json:"parameters"`
}

// ResolvedArguments maps parameter name to its validated string value.
// Values are type-checked before they land here; the generator script
// only ever sees name/value pairs.
type ResolvedArguments map[string]string
