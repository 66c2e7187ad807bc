package cmd

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hexfury/graphport/api/schemas"
	"github.com/hexfury/graphport/internal/config"
	"github.com/hexfury/graphport/internal/graph"
)

// graphComponents holds initialized services shared by the commands.
type graphComponents struct {
	Store schemas.GraphStore
	log   *zap.Logger
}

func newGraphComponents(ctx context.Context, cfg *config.Config, log *zap.Logger) (*graphComponents, error) {
	store, err := graph.Open(ctx, cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open graph store: %w", err)
	}
	log.Debug("graph store ready", zap.String("driver", cfg.Database.Driver))
	return &graphComponents{Store: store, log: log}, nil
}

// Shutdown closes the store under a fresh timeout, so cleanup still runs
// when the command context was already canceled.
func (c *graphComponents) Shutdown(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := c.Store.Close(shutdownCtx); err != nil {
		c.log.Warn("error closing graph store", zap.Error(err))
	}
}
