package graph

import "fmt"

// EdgeKind is the relationship type of an edge.
type EdgeKind int

const (
	// EdgeFamily is a tree edge from parent to child.
	EdgeFamily EdgeKind = iota
	// EdgeAttr is a typed reference declared as a document attribute.
	EdgeAttr
	// EdgeLink is an inline reference, optionally typed.
	EdgeLink
	// EdgeEmbed is a content inclusion.
	EdgeEmbed
)

var edgeKindNames = map[EdgeKind]string{
	EdgeFamily: "fam",
	EdgeAttr:   "attr",
	EdgeLink:   "link",
	EdgeEmbed:  "embed",
}

// String returns the short name of the kind.
func (k EdgeKind) String() string {
	if name, ok := edgeKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// MarshalText encodes the kind by name.
func (k EdgeKind) MarshalText() ([]byte, error) {
	name, ok := edgeKindNames[k]
	if !ok {
		return nil, fmt.Errorf("graph: unknown edge kind %d", int(k))
	}
	return []byte(name), nil
}

// UnmarshalText decodes a kind name produced by MarshalText.
func (k *EdgeKind) UnmarshalText(text []byte) error {
	kind, err := ParseEdgeKind(string(text))
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// ParseEdgeKind maps a short name back to its kind.
func ParseEdgeKind(name string) (EdgeKind, error) {
	for k, n := range edgeKindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("graph: unknown edge kind %q", name)
}

// RefKinds are the non-family kinds, in a stable order.
var RefKinds = []EdgeKind{EdgeAttr, EdgeLink, EdgeEmbed}

// Edge is a directed relationship between two node ids. RefType is empty for
// family and embed edges.
type Edge struct {
	Kind    EdgeKind `json:"kind"`
	Source  string   `json:"source"`
	Target  string   `json:"target"`
	RefType string   `json:"ref_type,omitempty"`
}

// Reference is an edge seen from one endpoint: the node on the other side
// plus how it is related.
type Reference struct {
	Kind    EdgeKind `json:"kind"`
	RefType string   `json:"ref_type,omitempty"`
	Node    Node     `json:"node"`
}

func (r ref) edge() Edge {
	return Edge{Kind: r.kind, Source: r.source, Target: r.target, RefType: r.refType}
}
