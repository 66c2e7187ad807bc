package graph

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/hexfury/graphport/api/schemas"
)

// MemoryStore keeps the whole graph in process memory. It backs tests and
// dry runs where standing up a database is not worth the trouble.
type MemoryStore struct {
	mu      sync.Mutex
	nodes   map[int64]*schemas.Node
	rels    map[int64]*schemas.Relationship
	nextID  int64
	commits int
	log     *zap.Logger
}

var (
	_ schemas.GraphStore = (*MemoryStore)(nil)
	_ schemas.GraphTx    = (*memoryTx)(nil)
)

func NewMemoryStore(log *zap.Logger) *MemoryStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &MemoryStore{
		nodes: make(map[int64]*schemas.Node),
		rels:  make(map[int64]*schemas.Relationship),
		log:   log.Named("memstore"),
	}
}

func (s *MemoryStore) Begin(ctx context.Context) (schemas.GraphTx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &memoryTx{
		store: s,
		nodes: make(map[int64]*schemas.Node),
		rels:  make(map[int64]*schemas.Relationship),
	}, nil
}

// Snapshot returns a deep copy of the committed graph ordered by id.
func (s *MemoryStore) Snapshot(ctx context.Context) (*schemas.Subgraph, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g := &schemas.Subgraph{
		Nodes:         make([]schemas.Node, 0, len(s.nodes)),
		Relationships: make([]schemas.Relationship, 0, len(s.rels)),
	}
	for _, n := range s.nodes {
		g.Nodes = append(g.Nodes, cloneNode(n))
	}
	for _, r := range s.rels {
		g.Relationships = append(g.Relationships, cloneRelationship(r))
	}
	slices.SortFunc(g.Nodes, func(a, b schemas.Node) int { return cmp.Compare(a.ID, b.ID) })
	slices.SortFunc(g.Relationships, func(a, b schemas.Relationship) int { return cmp.Compare(a.ID, b.ID) })
	return g, nil
}

func (s *MemoryStore) Close(ctx context.Context) error {
	return nil
}

// NodeByID returns a copy of a committed node.
func (s *MemoryStore) NodeByID(id int64) (schemas.Node, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return schemas.Node{}, false
	}
	return cloneNode(n), true
}

// RelationshipByID returns a copy of a committed relationship.
func (s *MemoryStore) RelationshipByID(id int64) (schemas.Relationship, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rels[id]
	if !ok {
		return schemas.Relationship{}, false
	}
	return cloneRelationship(r), true
}

// Commits reports how many transactions published at least one write.
func (s *MemoryStore) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

func (s *MemoryStore) allocateID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return s.nextID
}

func cloneNode(n *schemas.Node) schemas.Node {
	out := schemas.Node{ID: n.ID}
	if len(n.Labels) > 0 {
		out.Labels = slices.Clone(n.Labels)
	}
	if len(n.Props) > 0 {
		out.Props = cloneProps(n.Props)
	}
	return out
}

func cloneRelationship(r *schemas.Relationship) schemas.Relationship {
	out := schemas.Relationship{ID: r.ID, StartID: r.StartID, EndID: r.EndID, Type: r.Type}
	if len(r.Props) > 0 {
		out.Props = cloneProps(r.Props)
	}
	return out
}

func cloneProps(props schemas.Properties) schemas.Properties {
	out := make(schemas.Properties, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}

// memoryTx stages writes privately and publishes them on Commit. Entities
// touched after an earlier commit are cloned into the staging area first,
// so a rollback never leaves a half-applied update behind.
type memoryTx struct {
	store *MemoryStore
	nodes map[int64]*schemas.Node
	rels  map[int64]*schemas.Relationship
	done  bool
}

func (t *memoryTx) usable(ctx context.Context) error {
	if t.done {
		return schemas.ErrTxClosed
	}
	return ctx.Err()
}

func (t *memoryTx) CreateNode(ctx context.Context) (int64, error) {
	if err := t.usable(ctx); err != nil {
		return 0, err
	}
	id := t.store.allocateID()
	t.nodes[id] = &schemas.Node{ID: id, Props: schemas.Properties{}}
	return id, nil
}

func (t *memoryTx) CreateRelationship(ctx context.Context, startID, endID int64, relType string) (int64, error) {
	if err := t.usable(ctx); err != nil {
		return 0, err
	}
	if !t.hasNode(startID) {
		return 0, fmt.Errorf("memstore: unknown start node %d", startID)
	}
	if !t.hasNode(endID) {
		return 0, fmt.Errorf("memstore: unknown end node %d", endID)
	}
	id := t.store.allocateID()
	t.rels[id] = &schemas.Relationship{
		ID:      id,
		StartID: startID,
		EndID:   endID,
		Type:    relType,
		Props:   schemas.Properties{},
	}
	return id, nil
}

func (t *memoryTx) SetProperty(ctx context.Context, kind schemas.EntityKind, id int64, key string, value any) error {
	if err := t.usable(ctx); err != nil {
		return err
	}
	switch kind {
	case schemas.KindNode:
		n := t.node(id)
		if n == nil {
			return fmt.Errorf("memstore: unknown node %d", id)
		}
		if n.Props == nil {
			n.Props = schemas.Properties{}
		}
		n.Props[key] = value
	case schemas.KindRelationship:
		r := t.rel(id)
		if r == nil {
			return fmt.Errorf("memstore: unknown relationship %d", id)
		}
		if r.Props == nil {
			r.Props = schemas.Properties{}
		}
		r.Props[key] = value
	default:
		return fmt.Errorf("memstore: unknown entity kind %q", kind)
	}
	return nil
}

// AddLabel is idempotent. Labels behave as a set.
func (t *memoryTx) AddLabel(ctx context.Context, id int64, label string) error {
	if err := t.usable(ctx); err != nil {
		return err
	}
	n := t.node(id)
	if n == nil {
		return fmt.Errorf("memstore: unknown node %d", id)
	}
	if !slices.Contains(n.Labels, label) {
		n.Labels = append(n.Labels, label)
	}
	return nil
}

func (t *memoryTx) Commit(ctx context.Context) error {
	if t.done {
		return schemas.ErrTxClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	t.done = true
	if len(t.nodes) == 0 && len(t.rels) == 0 {
		return nil
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for id, n := range t.nodes {
		t.store.nodes[id] = n
	}
	for id, r := range t.rels {
		t.store.rels[id] = r
	}
	t.store.commits++
	t.store.log.Debug("transaction committed",
		zap.Int("nodes", len(t.nodes)),
		zap.Int("relationships", len(t.rels)))
	return nil
}

func (t *memoryTx) Rollback(ctx context.Context) error {
	if t.done {
		return schemas.ErrTxClosed
	}
	t.done = true
	t.nodes = nil
	t.rels = nil
	return nil
}

func (t *memoryTx) node(id int64) *schemas.Node {
	if n, ok := t.nodes[id]; ok {
		return n
	}
	t.store.mu.Lock()
	committed, ok := t.store.nodes[id]
	t.store.mu.Unlock()
	if !ok {
		return nil
	}
	clone := cloneNode(committed)
	t.nodes[id] = &clone
	return &clone
}

func (t *memoryTx) rel(id int64) *schemas.Relationship {
	if r, ok := t.rels[id]; ok {
		return r
	}
	t.store.mu.Lock()
	committed, ok := t.store.rels[id]
	t.store.mu.Unlock()
	if !ok {
		return nil
	}
	clone := cloneRelationship(committed)
	t.rels[id] = &clone
	return &clone
}

func (t *memoryTx) hasNode(id int64) bool {
	if _, ok := t.nodes[id]; ok {
		return true
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	_, ok := t.store.nodes[id]
	return ok
}
