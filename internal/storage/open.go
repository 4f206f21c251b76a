package storage

import (
	"context"
	"fmt"
)

// Options selects and configures a store backend.
type Options struct {
	Backend     string // "postgres", "qdrant" or "memory"
	Dimension   int
	PostgresDSN string
	QdrantHost  string
	QdrantPort  int
}

// Open constructs the configured Store backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case "postgres":
		return NewPostgresStore(ctx, opts.PostgresDSN, opts.Dimension)
	case "qdrant":
		return NewQdrantStore(opts.QdrantHost, opts.QdrantPort, opts.Dimension)
	case "memory":
		return NewMemoryStore(opts.Dimension), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}

// SchemaEnsurer is implemented by backends that need one-time schema or
// collection setup before first use.
type SchemaEnsurer interface {
	EnsureSchema(ctx context.Context) error
}

// EnsureSchema runs schema setup when the backend requires it.
func EnsureSchema(ctx context.Context, store Store) error {
	if ensurer, ok := store.(SchemaEnsurer); ok {
		return ensurer.EnsureSchema(ctx)
	}
	return nil
}
