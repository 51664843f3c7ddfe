// memory.go registers the search_memory tool over the long-term store.
package toolkit

import (
	"context"
)

func registerMemoryTools(c *Catalog, store MemorySearcher) {
	c.Register(
		spec("search_memory", "Search long-term memories for a query and return matching entries.", map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Search query",
			},
			"limit": map[string]any{
				"type":        "integer",
				"description": "Maximum results (default 10)",
			},
		}, "query"),
		func(ctx context.Context, args map[string]any) (any, error) {
			query, err := stringArg(args, "query")
			if err != nil {
				return nil, err
			}
			limit := intArg(args, "limit", 10)
			matches, err := store.SearchMemories(ctx, query, limit)
			if err != nil {
				return nil, err
			}
			return map[string]any{"matches": matches, "count": len(matches)}, nil
		},
	)
}
