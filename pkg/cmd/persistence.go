package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gangplankhq/gangplank/pkg/persistence"
	"github.com/gangplankhq/gangplank/pkg/persistence/file"
	"github.com/gangplankhq/gangplank/pkg/persistence/postgresql"
)

// NewPersistence builds a persistence layer from a database URL. postgres://
// and postgresql:// URLs select PostgreSQL; anything else falls back to the
// file store, treating the URL as a directory path.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parseProvider(databaseURL) {
	case "postgres", "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgresql persistence: %w", err)
		}

		return p, nil
	default:
		return file.NewPersistence(databaseURL), nil
	}
}

func parseProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	return provider
}
