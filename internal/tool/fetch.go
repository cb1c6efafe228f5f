package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/reflow-agent/reflow/internal/fetch"
)

// Fetch retrieves and extracts the page a task description points at.
// The description is expected to contain a URL; the first http(s) token
// wins.
type Fetch struct {
	Fetcher fetch.WebFetcher
}

func (Fetch) Name() string { return "fetch" }

func (f Fetch) Invoke(ctx context.Context, input string) (interface{}, error) {
	target := extractURL(input)
	if target == "" {
		return nil, fmt.Errorf("no url found in input")
	}
	res, err := f.Fetcher.Exec(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	if res.Status >= 400 {
		return nil, fmt.Errorf("fetch of %s returned status %d", target, res.Status)
	}
	return res, nil
}

func extractURL(s string) string {
	for _, f := range strings.Fields(s) {
		f = strings.Trim(f, `"'<>()[],`)
		if strings.HasPrefix(f, "http://") || strings.HasPrefix(f, "https://") {
			return f
		}
	}
	return ""
}
