package graphml

import (
	"strings"

	"github.com/hexfury/graphport/api/schemas"
)

// Key is one GraphML <key> declaration: the property name, value type and
// owning entity kind behind a key id. Keys live for one document pass and
// are only mutated once, when an optional <default> child is read.
type Key struct {
	ID       string
	Name     string
	Type     ScalarType
	ListType ScalarType
	IsList   bool
	For      schemas.EntityKind

	def any
}

// NewKey builds a Key from the attributes of a <key> element. An absent
// attr.type declares a string key; an absent attr.name names the property
// after the id.
func NewKey(id, name, typeText, listText, forText string) (*Key, error) {
	k := &Key{ID: id, Name: name, For: EntityKindFor(forText)}
	if k.Name == "" {
		k.Name = id
	}
	var err error
	if k.Type, err = ScalarTypeFor(typeText); err != nil {
		return nil, err
	}
	if listText != "" {
		if k.ListType, err = ScalarTypeFor(listText); err != nil {
			return nil, err
		}
		k.IsList = true
	}
	return k, nil
}

// EntityKindFor maps a key's for attribute to the entity kind it applies
// to. Only "edge" (case-insensitive) selects relationships; anything else,
// including an absent attribute, selects nodes.
func EntityKindFor(forText string) schemas.EntityKind {
	if strings.EqualFold(forText, "edge") {
		return schemas.KindRelationship
	}
	return schemas.KindNode
}

// SetDefault parses raw under the key's declared type and records it as the
// value used when a <data> element for this key is blank.
func (k *Key) SetDefault(raw string) error {
	v, err := k.parseRaw(raw)
	if err != nil {
		return err
	}
	k.def = v
	return nil
}

// DefaultValue returns the declared default. String keys without an
// explicit default yield the empty string, so blank string data still
// materializes a property. A nil result means the property is skipped.
func (k *Key) DefaultValue() any {
	if k.def != nil {
		return k.def
	}
	if !k.IsList && k.Type == TypeString {
		return ""
	}
	return nil
}

// ParseValue converts the raw text of a <data> element. Blank text selects
// the key's default; only the blank check trims, the parse itself sees the
// text exactly as read.
func (k *Key) ParseValue(text string) (any, error) {
	if strings.TrimSpace(text) == "" {
		return k.DefaultValue(), nil
	}
	return k.parseRaw(text)
}

func (k *Key) parseRaw(text string) (any, error) {
	if k.IsList {
		v, err := k.ListType.ParseList(text)
		if err != nil {
			return nil, &ValueError{KeyID: k.ID, Type: k.ListType.String(), Text: text, Err: err}
		}
		return v, nil
	}
	v, err := k.Type.Parse(text)
	if err != nil {
		return nil, &ValueError{KeyID: k.ID, Type: k.Type.String(), Text: text, Err: err}
	}
	return v, nil
}

// Registry holds the key declarations of one document, split by the entity
// kind they apply to. GraphML allows a node key and an edge key to share an
// id, so the two namespaces never mix.
type Registry struct {
	nodeKeys map[string]*Key
	relKeys  map[string]*Key
}

func NewRegistry() *Registry {
	return &Registry{
		nodeKeys: make(map[string]*Key),
		relKeys:  make(map[string]*Key),
	}
}

// Declare registers a parsed <key> element under its id.
func (r *Registry) Declare(k *Key) {
	if k.For == schemas.KindRelationship {
		r.relKeys[k.ID] = k
	} else {
		r.nodeKeys[k.ID] = k
	}
}

// Resolve returns the declaration for id scoped to the given entity kind.
// Unknown ids synthesize a string key named after the id, so documents with
// undeclared data keys still import.
func (r *Registry) Resolve(id string, kind schemas.EntityKind) *Key {
	keys := r.nodeKeys
	if kind == schemas.KindRelationship {
		keys = r.relKeys
	}
	if k, ok := keys[id]; ok {
		return k
	}
	return &Key{ID: id, Name: id, Type: TypeString, For: kind}
}
