package agent

import (
	"fmt"
	"log"

	"github.com/reflow-agent/reflow/config"
	"github.com/reflow-agent/reflow/internal/fetch"
	"github.com/reflow-agent/reflow/internal/provider"
	"github.com/reflow-agent/reflow/internal/search"
	"github.com/reflow-agent/reflow/internal/tool"
	"github.com/reflow-agent/reflow/internal/workflow"
)

// BuildController wires the model provider, tool capabilities and
// workflow controller from configuration. It is the single assembly
// point used by the server, the worker and the one-shot CLI.
func BuildController(cfg *config.Config, logger *log.Logger, observer workflow.Observer, usage UsageRecorder) (*workflow.Controller, error) {
	llm, err := provider.NewProvider(cfg.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("llm provider: %w", err)
	}

	searcher, err := search.NewWebSearcher(cfg.Tools.Search)
	if err != nil {
		return nil, fmt.Errorf("search provider: %w", err)
	}
	fetcher, err := fetch.NewWebFetcher(cfg.Tools.Fetch)
	if err != nil {
		return nil, fmt.Errorf("fetch engine: %w", err)
	}

	registry := tool.NewRegistry(
		tool.Search{Searcher: searcher, TopK: cfg.Tools.Search.TopK},
		tool.Calculator{MaxExpressionLength: cfg.Tools.Calculator.MaxExpressionLength},
		tool.Fetch{Fetcher: fetcher},
	)

	planner := NewPlanner(llm, logger, usage, cfg.Tools.Calculator.MaxExpressionLength)
	reflector := NewReflector(llm, logger, usage)
	executor := tool.NewExecutor(registry, logger)

	return workflow.NewController(planner, executor, reflector, logger, observer), nil
}
