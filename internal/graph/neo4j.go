package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/hexfury/graphport/api/schemas"
	"github.com/hexfury/graphport/internal/config"
)

// Neo4jStore talks to a Neo4j server over Bolt. Each transaction gets its
// own write session.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
	log      *zap.Logger
}

var (
	_ schemas.GraphStore = (*Neo4jStore)(nil)
	_ schemas.GraphTx    = (*neo4jTx)(nil)
)

func NewNeo4jStore(ctx context.Context, cfg config.Neo4jConfig, log *zap.Logger) (*Neo4jStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j: create driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j: verify connectivity: %w", err)
	}
	return &Neo4jStore{driver: driver, database: cfg.Database, log: log.Named("neo4j")}, nil
}

func (s *Neo4jStore) Begin(ctx context.Context) (schemas.GraphTx, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.database,
	})
	tx, err := session.BeginTransaction(ctx)
	if err != nil {
		_ = session.Close(ctx)
		return nil, fmt.Errorf("neo4j: begin: %w", err)
	}
	return &neo4jTx{session: session, tx: tx}, nil
}

func (s *Neo4jStore) Snapshot(ctx context.Context) (*schemas.Subgraph, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: s.database,
	})
	defer func() { _ = session.Close(ctx) }()

	g := &schemas.Subgraph{}

	nodes, err := session.Run(ctx,
		`MATCH (n) RETURN id(n), labels(n), properties(n) ORDER BY id(n)`, nil)
	if err != nil {
		return nil, fmt.Errorf("neo4j: load nodes: %w", err)
	}
	for nodes.Next(ctx) {
		rec := nodes.Record()
		g.Nodes = append(g.Nodes, schemas.Node{
			ID:     rec.Values[0].(int64),
			Labels: stringSlice(rec.Values[1]),
			Props:  properties(rec.Values[2]),
		})
	}
	if err := nodes.Err(); err != nil {
		return nil, fmt.Errorf("neo4j: load nodes: %w", err)
	}

	rels, err := session.Run(ctx,
		`MATCH ()-[r]->() RETURN id(r), id(startNode(r)), id(endNode(r)), type(r), properties(r) ORDER BY id(r)`, nil)
	if err != nil {
		return nil, fmt.Errorf("neo4j: load relationships: %w", err)
	}
	for rels.Next(ctx) {
		rec := rels.Record()
		g.Relationships = append(g.Relationships, schemas.Relationship{
			ID:      rec.Values[0].(int64),
			StartID: rec.Values[1].(int64),
			EndID:   rec.Values[2].(int64),
			Type:    rec.Values[3].(string),
			Props:   properties(rec.Values[4]),
		})
	}
	if err := rels.Err(); err != nil {
		return nil, fmt.Errorf("neo4j: load relationships: %w", err)
	}
	return g, nil
}

func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

type neo4jTx struct {
	session neo4j.SessionWithContext
	tx      neo4j.ExplicitTransaction
	done    bool
}

func (t *neo4jTx) CreateNode(ctx context.Context) (int64, error) {
	if t.done {
		return 0, schemas.ErrTxClosed
	}
	rec, err := t.single(ctx, `CREATE (n) RETURN id(n)`, nil)
	if err != nil {
		return 0, fmt.Errorf("neo4j: create node: %w", err)
	}
	return rec.Values[0].(int64), nil
}

func (t *neo4jTx) CreateRelationship(ctx context.Context, startID, endID int64, relType string) (int64, error) {
	if t.done {
		return 0, schemas.ErrTxClosed
	}
	// Relationship types cannot be parameterized, so the name is escaped
	// into the query text.
	query := fmt.Sprintf(
		`MATCH (a), (b) WHERE id(a) = $start AND id(b) = $end CREATE (a)-[r:%s]->(b) RETURN id(r)`,
		escapeName(relType))
	rec, err := t.single(ctx, query, map[string]any{"start": startID, "end": endID})
	if err != nil {
		return 0, fmt.Errorf("neo4j: create relationship: %w", err)
	}
	return rec.Values[0].(int64), nil
}

func (t *neo4jTx) SetProperty(ctx context.Context, kind schemas.EntityKind, id int64, key string, value any) error {
	if t.done {
		return schemas.ErrTxClosed
	}
	match := `MATCH (e) WHERE id(e) = $id`
	if kind == schemas.KindRelationship {
		match = `MATCH ()-[e]->() WHERE id(e) = $id`
	}
	_, err := t.tx.Run(ctx, match+` SET e += $props`,
		map[string]any{"id": id, "props": map[string]any{key: value}})
	if err != nil {
		return fmt.Errorf("neo4j: set property %q: %w", key, err)
	}
	return nil
}

func (t *neo4jTx) AddLabel(ctx context.Context, id int64, label string) error {
	if t.done {
		return schemas.ErrTxClosed
	}
	query := fmt.Sprintf(`MATCH (n) WHERE id(n) = $id SET n:%s`, escapeName(label))
	if _, err := t.tx.Run(ctx, query, map[string]any{"id": id}); err != nil {
		return fmt.Errorf("neo4j: add label %q: %w", label, err)
	}
	return nil
}

func (t *neo4jTx) Commit(ctx context.Context) error {
	if t.done {
		return schemas.ErrTxClosed
	}
	t.done = true
	err := t.tx.Commit(ctx)
	if closeErr := t.session.Close(ctx); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("neo4j: commit: %w", err)
	}
	return nil
}

func (t *neo4jTx) Rollback(ctx context.Context) error {
	if t.done {
		return schemas.ErrTxClosed
	}
	t.done = true
	err := t.tx.Rollback(ctx)
	if closeErr := t.session.Close(ctx); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("neo4j: rollback: %w", err)
	}
	return nil
}

func (t *neo4jTx) single(ctx context.Context, query string, params map[string]any) (*neo4j.Record, error) {
	res, err := t.tx.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	return res.Single(ctx)
}

// escapeName backticks an identifier for interpolation into Cypher.
func escapeName(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func stringSlice(value any) []string {
	raw, ok := value.([]any)
	if !ok || len(raw) == 0 {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func properties(value any) schemas.Properties {
	m, ok := value.(map[string]any)
	if !ok || len(m) == 0 {
		return nil
	}
	return schemas.Properties(m)
}
