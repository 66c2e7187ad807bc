// Package typemap infers a single exportable attribute type per property
// key across all entities of a graph. Individual entities may disagree on
// the concrete numeric representation of a shared key; the reconciler widens
// numeric observations along a fixed priority order and falls back to an
// untyped marker when values cannot be unified at all.
package typemap

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hexfury/graphport/api/schemas"
)

// Kind identifies the concrete runtime type of a property value. The
// numeric kinds must stay contiguous between Int8 and Float64; numeric()
// relies on it.
type Kind int

const (
	// Hetero marks a key whose values cannot be unified under one concrete
	// type. It is absorbing: once a key is heterogeneous it stays so.
	Hetero Kind = iota
	Bool
	Int8
	Int16
	Int32
	Int64
	Int
	Uint8
	Uint16
	Uint32
	Uint64
	Uint
	Float32
	Float64
	String
)

// String returns the Go-style name, used in diagnostics.
func (k Kind) String() string {
	switch k {
	case Bool:
		return "bool"
	case Int8:
		return "int8"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Int:
		return "int"
	case Uint8:
		return "uint8"
	case Uint16:
		return "uint16"
	case Uint32:
		return "uint32"
	case Uint64:
		return "uint64"
	case Uint:
		return "uint"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case String:
		return "string"
	default:
		return "heterogeneous"
	}
}

// typeName returns the attribute type name used in GraphML key declarations.
func (k Kind) typeName() string {
	switch k {
	case Bool:
		return "boolean"
	case Int8:
		return "byte"
	case Int16:
		return "short"
	case Int32:
		return "int"
	case Int64, Int:
		return "long"
	case Float32:
		return "float"
	case Float64:
		return "double"
	case String:
		return "string"
	case Uint8, Uint16, Uint32, Uint64, Uint:
		// No GraphML name of their own; TypeFor degrades them via the
		// allowed set.
		return k.String()
	default:
		return ""
	}
}

// numeric reports whether k takes part in widening.
func (k Kind) numeric() bool {
	return k >= Int8 && k <= Float64
}

// PropKind is the reconciled shape of one property key: its element kind and
// whether values are slices. Slices never widen; two slice observations
// either agree exactly or collapse to Hetero.
type PropKind struct {
	Kind  Kind
	Slice bool
}

// KindOf classifies a runtime property value.
func KindOf(value any) PropKind {
	switch value.(type) {
	case bool:
		return PropKind{Kind: Bool}
	case int8:
		return PropKind{Kind: Int8}
	case int16:
		return PropKind{Kind: Int16}
	case int32:
		return PropKind{Kind: Int32}
	case int64:
		return PropKind{Kind: Int64}
	case int:
		return PropKind{Kind: Int}
	case uint8:
		return PropKind{Kind: Uint8}
	case uint16:
		return PropKind{Kind: Uint16}
	case uint32:
		return PropKind{Kind: Uint32}
	case uint64:
		return PropKind{Kind: Uint64}
	case uint:
		return PropKind{Kind: Uint}
	case float32:
		return PropKind{Kind: Float32}
	case float64:
		return PropKind{Kind: Float64}
	case string:
		return PropKind{Kind: String}
	case []bool:
		return PropKind{Kind: Bool, Slice: true}
	case []int8:
		return PropKind{Kind: Int8, Slice: true}
	case []int16:
		return PropKind{Kind: Int16, Slice: true}
	case []int32:
		return PropKind{Kind: Int32, Slice: true}
	case []int64:
		return PropKind{Kind: Int64, Slice: true}
	case []int:
		return PropKind{Kind: Int, Slice: true}
	case []uint8:
		return PropKind{Kind: Uint8, Slice: true}
	case []uint16:
		return PropKind{Kind: Uint16, Slice: true}
	case []uint32:
		return PropKind{Kind: Uint32, Slice: true}
	case []uint64:
		return PropKind{Kind: Uint64, Slice: true}
	case []uint:
		return PropKind{Kind: Uint, Slice: true}
	case []float32:
		return PropKind{Kind: Float32, Slice: true}
	case []float64:
		return PropKind{Kind: Float64, Slice: true}
	case []string:
		return PropKind{Kind: String, Slice: true}
	default:
		return PropKind{Kind: Hetero}
	}
}

// wideningPriority is the fixed resolution order when two numeric kinds
// collide on one key: whichever of the two appears first wins. This is a
// stability contract for exported documents, not arithmetic promotion.
var wideningPriority = [...]Kind{Int64, Float64, Int32, Float32, Int16, Int8}

// UnsupportedNumericError reports a numeric collision whose participants are
// both outside the widening priority table, such as two distinct unsigned
// kinds meeting on the same key.
type UnsupportedNumericError struct {
	Recorded Kind
	Observed Kind
}

func (e *UnsupportedNumericError) Error() string {
	return fmt.Sprintf("typemap: no widening rule for %s vs %s", e.Recorded, e.Observed)
}

// merge resolves a previously recorded kind against a new observation.
func merge(recorded, observed PropKind) (PropKind, error) {
	if recorded == observed {
		return recorded, nil
	}
	if recorded.Kind == Hetero {
		return recorded, nil
	}
	if recorded.Slice || observed.Slice {
		return PropKind{Kind: Hetero}, nil
	}
	if !recorded.Kind.numeric() || !observed.Kind.numeric() {
		return PropKind{Kind: Hetero}, nil
	}
	for _, k := range wideningPriority {
		if recorded.Kind == k || observed.Kind == k {
			return PropKind{Kind: k}, nil
		}
	}
	return PropKind{}, &UnsupportedNumericError{Recorded: recorded.Kind, Observed: observed.Kind}
}

// Map accumulates one reconciled PropKind per property key. The zero value
// is not usable; construct with New.
type Map struct {
	kinds map[string]PropKind
}

func New() *Map {
	return &Map{kinds: make(map[string]PropKind)}
}

// Observe folds one property value into the map.
func (m *Map) Observe(key string, value any) error {
	observed := KindOf(value)
	recorded, ok := m.kinds[key]
	if !ok {
		m.kinds[key] = observed
		return nil
	}
	merged, err := merge(recorded, observed)
	if err != nil {
		return fmt.Errorf("property %q: %w", key, err)
	}
	m.kinds[key] = merged
	return nil
}

// ObserveProperties folds every property of one entity.
func (m *Map) ObserveProperties(props schemas.Properties) error {
	for key, value := range props {
		if err := m.Observe(key, value); err != nil {
			return err
		}
	}
	return nil
}

// Kind returns the reconciled shape for a key seen during the scan.
func (m *Map) Kind(key string) (PropKind, bool) {
	pk, ok := m.kinds[key]
	return pk, ok
}

// Keys returns every observed key in sorted order, so exports are
// deterministic.
func (m *Map) Keys() []string {
	keys := make([]string, 0, len(m.kinds))
	for key := range m.kinds {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (m *Map) Len() int {
	return len(m.kinds)
}

// ForNodes reconciles the property types across a set of nodes.
func ForNodes(nodes []schemas.Node) (*Map, error) {
	m := New()
	for i := range nodes {
		if err := m.ObserveProperties(nodes[i].Props); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ForRelationships reconciles the property types across a set of
// relationships.
func ForRelationships(rels []schemas.Relationship) (*Map, error) {
	m := New()
	for i := range rels {
		if err := m.ObserveProperties(rels[i].Props); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// GraphMLAllowed is the attribute type vocabulary GraphML consumers accept.
var GraphMLAllowed = map[string]struct{}{
	"boolean": {},
	"int":     {},
	"long":    {},
	"float":   {},
	"double":  {},
	"string":  {},
}

// TypeFor maps a reconciled kind to the attr.type name for a key
// declaration. When the name is missing from allowed, numeric kinds degrade
// to "int" and everything else to the empty string, meaning the key is
// written untyped. A nil allowed set accepts every name.
func TypeFor(k Kind, allowed map[string]struct{}) string {
	if k == Hetero {
		return ""
	}
	name := k.typeName()
	if allowed == nil {
		return name
	}
	if _, ok := allowed[name]; ok {
		return name
	}
	if k.numeric() {
		return "int"
	}
	return ""
}

// LabelsString renders a node's labels in the colon-prefixed form used in
// GraphML documents, e.g. ":Person:Admin". Empty when the node carries no
// labels.
func LabelsString(n schemas.Node) string {
	if len(n.Labels) == 0 {
		return ""
	}
	return ":" + strings.Join(n.Labels, ":")
}
