// Package graph implements the storage backends behind the GraphML codec:
// an in-memory store, a PostgreSQL store and a Neo4j store, all speaking
// the same transactional interface.
package graph

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hexfury/graphport/api/schemas"
	"github.com/hexfury/graphport/internal/config"
)

// Open builds the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) (schemas.GraphStore, error) {
	switch cfg.Driver {
	case "memory":
		return NewMemoryStore(log), nil
	case "postgres":
		return NewPostgresStore(ctx, cfg.URL, log)
	case "neo4j":
		return NewNeo4jStore(ctx, cfg.Neo4j, log)
	default:
		return nil, fmt.Errorf("graph: unknown driver %q", cfg.Driver)
	}
}
