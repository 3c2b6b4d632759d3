package todos

import (
	"context"
	"strings"
)

const (
	ModeInMemory = "in-memory"
	ModePostgres = "postgres"
)

// NewStore creates a postgres-backed store when configured, otherwise in-memory.
func NewStore(ctx context.Context, databaseURL string, clock Clock) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewInMemoryStore(clock), nil
	}
	return NewPostgresStore(ctx, databaseURL, clock)
}

func ModeOf(s Store) string {
	switch s.(type) {
	case *PostgresStore:
		return ModePostgres
	case *InMemoryStore:
		return ModeInMemory
	case nil:
		return "disabled"
	default:
		return "custom"
	}
}
