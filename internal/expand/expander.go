// Package expand rewrites a user query into variants to improve retrieval
// recall. Every strategy returns the original query as the first variant, so
// expansion can never reduce recall below plain retrieval.
package expand

import (
	"context"
	"fmt"
)

// Expander produces 1..N query variants for one query.
type Expander interface {
	Expand(ctx context.Context, query string) ([]string, error)
}

// Noop returns the query unchanged.
type Noop struct{}

// Expand implements Expander.
func (Noop) Expand(ctx context.Context, query string) ([]string, error) {
	return []string{query}, nil
}

// Static rewrites the query with fixed phrasing templates.
type Static struct{}

// Expand implements Expander.
func (Static) Expand(ctx context.Context, query string) ([]string, error) {
	variants := []string{
		query,
		fmt.Sprintf("Find information about %s", query),
		fmt.Sprintf("What are the key aspects of %s", query),
		fmt.Sprintf("Explain %s in detail", query),
	}
	return dedupe(variants), nil
}

// dedupe removes repeated variants while preserving order; the original
// query stays at index 0.
func dedupe(variants []string) []string {
	seen := make(map[string]bool, len(variants))
	out := variants[:0]
	for _, v := range variants {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
