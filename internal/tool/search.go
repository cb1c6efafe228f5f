package tool

import (
	"context"
	"fmt"

	"github.com/reflow-agent/reflow/internal/search"
)

const defaultTopK = 5

// Search answers a task description as a web-search query.
type Search struct {
	Searcher search.WebSearcher
	TopK     int
}

func (Search) Name() string { return "search" }

func (s Search) Invoke(ctx context.Context, input string) (interface{}, error) {
	k := s.TopK
	if k <= 0 {
		k = defaultTopK
	}
	results, err := s.Searcher.Discover(ctx, input, k)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	return results, nil
}
