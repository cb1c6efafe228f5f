package search

import (
	"context"

	"github.com/reflow-agent/reflow/config"
	"github.com/reflow-agent/reflow/internal/search/brave"
	"github.com/reflow-agent/reflow/internal/search/local"
	"github.com/reflow-agent/reflow/internal/search/models"
	"github.com/reflow-agent/reflow/internal/search/serper"
)

type WebSearcher interface {
	Discover(ctx context.Context, q string, k int) ([]models.Result, error)
}

type Provider string

const (
	SerperProvider Provider = "serper"
	BraveProvider  Provider = "brave"
	LocalProvider  Provider = "local"
)

var ErrUnsupportedProvider = &Error{"unsupported provider"}

func NewWebSearcher(cfg config.SearchConfig) (WebSearcher, error) {
	switch Provider(cfg.Provider) {
	case SerperProvider:
		return serper.Search{ApiKey: cfg.APIKey}, nil
	case BraveProvider:
		return brave.Search{ApiKey: cfg.APIKey}, nil
	case LocalProvider:
		return local.New(cfg.IndexDir)
	default:
		return nil, ErrUnsupportedProvider
	}
}
