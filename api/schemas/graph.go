package schemas

// EntityKind distinguishes the two graph entity classes that can carry
// properties.
type EntityKind string

const (
	KindNode         EntityKind = "node"
	KindRelationship EntityKind = "relationship"
)

// Properties is the property bag attached to a node or relationship. Values
// are scalars from the GraphML vocabulary (bool, int32, int64, float32,
// float64, string) or homogeneous slices of them.
type Properties map[string]any

// Node is one labeled node of a property graph. ID is the store-internal
// handle, assigned on creation and stable for the lifetime of the store.
type Node struct {
	ID     int64      `json:"id"`
	Labels []string   `json:"labels,omitempty"`
	Props  Properties `json:"properties,omitempty"`
}

// Relationship is one directed, typed relationship between two nodes.
type Relationship struct {
	ID      int64      `json:"id"`
	StartID int64      `json:"start_id"`
	EndID   int64      `json:"end_id"`
	Type    string     `json:"type"`
	Props   Properties `json:"properties,omitempty"`
}

// Subgraph is a fully materialized snapshot of a store's content, consumed
// by the export path. Nodes and Relationships are ordered by ID.
type Subgraph struct {
	Nodes         []Node         `json:"nodes"`
	Relationships []Relationship `json:"relationships"`
}
