package diary

import (
	"context"
	"strings"
)

// NewRepository picks Postgres when databaseURL is set, then SQLite when
// sqlitePath is set, otherwise an in-memory repository.
func NewRepository(ctx context.Context, databaseURL, sqlitePath string) (Repository, error) {
	if strings.TrimSpace(databaseURL) != "" {
		return NewPostgresRepository(ctx, databaseURL)
	}
	if strings.TrimSpace(sqlitePath) != "" {
		return NewSQLiteRepository(ctx, sqlitePath)
	}
	return NewInMemoryRepository(), nil
}
