package schemas

import (
	"context"
	"errors"
)

// ErrTxClosed is returned by transaction operations after the transaction
// has been committed or rolled back. Store implementations map their
// driver's equivalent sentinel onto this one so callers can test for it
// with errors.Is.
var ErrTxClosed = errors.New("graph: transaction already closed")

// -- Store Interfaces --

// GraphTx is a single write transaction against a graph store. A transaction
// is not safe for concurrent use; the import engine drives one at a time.
type GraphTx interface {
	// CreateNode creates an empty node and returns its internal id.
	CreateNode(ctx context.Context) (int64, error)
	// CreateRelationship creates a relationship of the given type between two
	// existing nodes identified by their internal ids.
	CreateRelationship(ctx context.Context, startID, endID int64, relType string) (int64, error)
	// SetProperty sets one property on the identified entity.
	SetProperty(ctx context.Context, kind EntityKind, id int64, key string, value any) error
	// AddLabel adds a label to the identified node. Labels a node already
	// carries are not duplicated.
	AddLabel(ctx context.Context, id int64, label string) error
	// Commit makes the transaction's writes visible to readers.
	Commit(ctx context.Context) error
	// Rollback discards the transaction's writes.
	Rollback(ctx context.Context) error
}

// GraphStore abstracts the persistent storage backing the codec. This allows
// the import and export engines to be independent of the specific database
// implementation (e.g., Neo4j, PostgreSQL, in-memory).
type GraphStore interface {
	// Begin opens a new write transaction.
	Begin(ctx context.Context) (GraphTx, error)
	// Snapshot returns the committed graph content, ordered by id.
	Snapshot(ctx context.Context) (*Subgraph, error)
	// Close releases connections and other resources held by the store.
	Close(ctx context.Context) error
}
