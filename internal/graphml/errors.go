package graphml

import "fmt"

// ValueError reports text that could not be parsed under a key's declared
// attribute type. KeyID and Type identify the declaration, Text is the
// offending raw content.
type ValueError struct {
	KeyID string
	Type  string
	Text  string
	Err   error
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("graphml: key %q: cannot parse %q as %s: %v", e.KeyID, e.Text, e.Type, e.Err)
}

func (e *ValueError) Unwrap() error {
	return e.Err
}

// UnknownEndpointError reports an edge whose source or target id never
// appeared as a node id earlier in the document. The import aborts rather
// than skip the edge.
type UnknownEndpointError struct {
	Attr string // "source" or "target"
	ID   string
}

func (e *UnknownEndpointError) Error() string {
	return fmt.Sprintf("graphml: edge %s %q does not match any node id", e.Attr, e.ID)
}
