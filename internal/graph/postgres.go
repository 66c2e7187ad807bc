package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hexfury/graphport/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DBPool is the subset of pgxpool.Pool the store uses. Satisfied by
// pgxmock's pool in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS graph_nodes (
	id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	labels TEXT[] NOT NULL DEFAULT '{}',
	properties JSONB NOT NULL DEFAULT '{}'::jsonb
);
CREATE TABLE IF NOT EXISTS graph_relationships (
	id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	start_id BIGINT NOT NULL REFERENCES graph_nodes (id),
	end_id BIGINT NOT NULL REFERENCES graph_nodes (id),
	rel_type TEXT NOT NULL,
	properties JSONB NOT NULL DEFAULT '{}'::jsonb
);
CREATE INDEX IF NOT EXISTS graph_relationships_start_idx ON graph_relationships (start_id);
CREATE INDEX IF NOT EXISTS graph_relationships_end_idx ON graph_relationships (end_id);
`

// PostgresStore persists the graph in two relational tables with JSONB
// property bags.
type PostgresStore struct {
	pool DBPool
	log  *zap.Logger
}

var (
	_ schemas.GraphStore = (*PostgresStore)(nil)
	_ schemas.GraphTx    = (*postgresTx)(nil)
)

// NewPostgresStore connects to url, verifies the connection and creates the
// schema if it is missing.
func NewPostgresStore(ctx context.Context, url string, log *zap.Logger) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("pgstore: parse connection string: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("pgstore: create pool: %w", err)
	}
	store, err := NewPostgresStoreWithPool(pool, log)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgstore: ping: %w", err)
	}
	if err := store.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStoreWithPool wraps an existing pool without touching the
// database.
func NewPostgresStoreWithPool(pool DBPool, log *zap.Logger) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("pgstore: nil pool")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PostgresStore{pool: pool, log: log.Named("pgstore")}, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("pgstore: create schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Begin(ctx context.Context) (schemas.GraphTx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("pgstore: begin: %w", err)
	}
	return &postgresTx{tx: tx}, nil
}

// Snapshot loads both tables ordered by id. Numeric properties come back as
// float64; JSONB does not preserve Go integer width.
func (s *PostgresStore) Snapshot(ctx context.Context) (*schemas.Subgraph, error) {
	var (
		nodes []schemas.Node
		rels  []schemas.Relationship
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		nodes, err = s.loadNodes(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		rels, err = s.loadRelationships(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &schemas.Subgraph{Nodes: nodes, Relationships: rels}, nil
}

func (s *PostgresStore) loadNodes(ctx context.Context) ([]schemas.Node, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, labels, properties FROM graph_nodes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("pgstore: load nodes: %w", err)
	}
	defer rows.Close()

	var nodes []schemas.Node
	for rows.Next() {
		var (
			node schemas.Node
			raw  []byte
		)
		if err := rows.Scan(&node.ID, &node.Labels, &raw); err != nil {
			return nil, fmt.Errorf("pgstore: scan node: %w", err)
		}
		if err := unmarshalProps(raw, &node.Props); err != nil {
			return nil, fmt.Errorf("pgstore: node %d properties: %w", node.ID, err)
		}
		if len(node.Labels) == 0 {
			node.Labels = nil
		}
		nodes = append(nodes, node)
	}
	return nodes, rows.Err()
}

func (s *PostgresStore) loadRelationships(ctx context.Context) ([]schemas.Relationship, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, start_id, end_id, rel_type, properties FROM graph_relationships ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("pgstore: load relationships: %w", err)
	}
	defer rows.Close()

	var rels []schemas.Relationship
	for rows.Next() {
		var (
			rel schemas.Relationship
			raw []byte
		)
		if err := rows.Scan(&rel.ID, &rel.StartID, &rel.EndID, &rel.Type, &raw); err != nil {
			return nil, fmt.Errorf("pgstore: scan relationship: %w", err)
		}
		if err := unmarshalProps(raw, &rel.Props); err != nil {
			return nil, fmt.Errorf("pgstore: relationship %d properties: %w", rel.ID, err)
		}
		rels = append(rels, rel)
	}
	return rels, rows.Err()
}

func unmarshalProps(raw []byte, props *schemas.Properties) error {
	if len(raw) == 0 {
		return nil
	}
	var decoded schemas.Properties
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}
	if len(decoded) > 0 {
		*props = decoded
	}
	return nil
}

func (s *PostgresStore) Close(ctx context.Context) error {
	s.pool.Close()
	return nil
}

type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) CreateNode(ctx context.Context) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO graph_nodes DEFAULT VALUES RETURNING id`).Scan(&id)
	if err != nil {
		return 0, mapTxErr("create node", err)
	}
	return id, nil
}

func (t *postgresTx) CreateRelationship(ctx context.Context, startID, endID int64, relType string) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx,
		`INSERT INTO graph_relationships (start_id, end_id, rel_type) VALUES ($1, $2, $3) RETURNING id`,
		startID, endID, relType,
	).Scan(&id)
	if err != nil {
		return 0, mapTxErr("create relationship", err)
	}
	return id, nil
}

func (t *postgresTx) SetProperty(ctx context.Context, kind schemas.EntityKind, id int64, key string, value any) error {
	payload, err := json.Marshal(schemas.Properties{key: value})
	if err != nil {
		return fmt.Errorf("pgstore: encode property %q: %w", key, err)
	}
	table := "graph_nodes"
	if kind == schemas.KindRelationship {
		table = "graph_relationships"
	}
	tag, err := t.tx.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET properties = properties || $2::jsonb WHERE id = $1`, table),
		id, payload,
	)
	if err != nil {
		return mapTxErr("set property", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pgstore: unknown %s %d", kind, id)
	}
	return nil
}

// AddLabel appends the label unless it is already present, so labels behave
// as a set.
func (t *postgresTx) AddLabel(ctx context.Context, id int64, label string) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE graph_nodes
		    SET labels = CASE WHEN $2 = ANY (labels) THEN labels ELSE array_append(labels, $2) END
		  WHERE id = $1`,
		id, label,
	)
	if err != nil {
		return mapTxErr("add label", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pgstore: unknown node %d", id)
	}
	return nil
}

func (t *postgresTx) Commit(ctx context.Context) error {
	return mapTxErr("commit", t.tx.Commit(ctx))
}

func (t *postgresTx) Rollback(ctx context.Context) error {
	return mapTxErr("rollback", t.tx.Rollback(ctx))
}

// mapTxErr translates pgx's closed-transaction sentinel into the store
// sentinel so callers do not depend on the driver.
func mapTxErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrTxClosed) {
		return schemas.ErrTxClosed
	}
	return fmt.Errorf("pgstore: %s: %w", op, err)
}
