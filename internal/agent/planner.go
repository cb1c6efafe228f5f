package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/reflow-agent/reflow/internal/provider"
	"github.com/reflow-agent/reflow/internal/tool"
	"github.com/reflow-agent/reflow/internal/workflow"
)

const planSystemPrompt = `You are a PlanAgent that can ONLY use these specific tools. NO OTHER TOOLS ARE ALLOWED.

STRICT RULES:
1. You can ONLY use these exact tools:
   - "search": For ALL information gathering (web searches, news, weather, etc.)
   - "calculator": For mathematical calculations ONLY
   - "fetch": For retrieving the content of a specific URL ONLY

2. If a search fails:
   - DO NOT suggest alternative tools
   - Simply use the "search" tool again with a modified query

Examples:

1. User Query: "Find the current Prime Minister of India"
[
  {"id": 1, "description": "Search for current Prime Minister of India", "tool": "search"}
]

2. User Query: "calculate 2+2"
[
  {"id": 1, "description": "2+2", "tool": "calculator"}
]

3. User Query: "what is today's weather"
[
  {"id": 1, "description": "Search for current weather conditions", "tool": "search"}
]

4. User Query: "summarize https://example.com/article"
[
  {"id": 1, "description": "Fetch https://example.com/article", "tool": "fetch"}
]

REQUIREMENTS:
1. Return ONLY a JSON array of tasks
2. Each task MUST have exactly these fields:
   - "id": A number (1, 2, 3, etc.)
   - "description": What to search for, calculate, or fetch
   - "tool": MUST be exactly "search", "calculator" or "fetch" (no other values allowed)
3. DO NOT add any extra fields or parameters
4. DO NOT suggest alternative tools or methods
5. Use "search" for ALL information gathering needs

REMEMBER: If a task fails, the workflow will handle retries automatically. DO NOT try to implement your own retry logic or alternative tools.`

// UsageRecorder accounts model token usage. Satisfied by
// telemetry.Telemetry; nil disables accounting.
type UsageRecorder interface {
	RecordLLMUsage(promptTokens, completionTokens int64, cost float64, err error)
}

// Planner turns a natural-language query into an ordered task list.
type Planner struct {
	provider   provider.Provider
	logger     *log.Logger
	usage      UsageRecorder
	maxExprLen int
}

func NewPlanner(p provider.Provider, logger *log.Logger, usage UsageRecorder, maxExprLen int) *Planner {
	if logger == nil {
		logger = log.New(log.Writer(), "[PLANNER] ", log.LstdFlags)
	}
	return &Planner{provider: p, logger: logger, usage: usage, maxExprLen: maxExprLen}
}

// GeneratePlan implements workflow.Planner.
func (p *Planner) GeneratePlan(ctx context.Context, query string) ([]workflow.Task, error) {
	completion, err := p.provider.Generate(ctx, planSystemPrompt, "Current Query: "+query)
	if p.usage != nil {
		p.usage.RecordLLMUsage(completion.PromptTokens, completion.CompletionTokens, 0, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlanning, err)
	}
	content := strings.TrimSpace(completion.Text)
	if content == "" {
		return nil, fmt.Errorf("%w: empty response from model", ErrPlanning)
	}

	extracted := extractPlanJSON(content)

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(extracted), &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlanning, &JSONParseError{Content: extracted, Err: err})
	}

	// Individual items are decoded one by one: a stray non-object element
	// drops that element, not the whole plan.
	valid := make([]workflow.Task, 0, len(items))
	for i, item := range items {
		dec := json.NewDecoder(bytes.NewReader(item))
		dec.UseNumber()
		var raw map[string]interface{}
		if err := dec.Decode(&raw); err != nil {
			p.logger.Printf("task %d is not a JSON object: %v, skipping", i+1, err)
			continue
		}
		task, ok := p.validateTask(raw, i)
		if !ok {
			continue
		}
		if task.Tool == workflow.ToolCalculator {
			expr, err := tool.SanitizeExpression(task.Description, p.maxExprLen)
			if err != nil {
				p.logger.Printf("task %d calculator expression rejected: %v, skipping", i+1, err)
				continue
			}
			if expr == "" {
				p.logger.Printf("task %d calculator expression %q empty after sanitizing, skipping", i+1, task.Description)
				continue
			}
			task.Description = expr
		}
		if task.Status == "" {
			task.Status = workflow.StatusPending
		}
		valid = append(valid, task)
	}

	if len(valid) == 0 && len(items) > 0 {
		return nil, fmt.Errorf("%w: no valid tasks derived from model response", ErrPlanning)
	}
	p.logger.Printf("generated %d valid tasks for query %q", len(valid), query)
	return valid, nil
}

// validateTask enforces the required plan fields. Tasks failing
// validation are skipped, not fatal; a plan-wide failure surfaces only
// when nothing survives.
func (p *Planner) validateTask(raw map[string]interface{}, i int) (workflow.Task, bool) {
	idRaw, ok := raw["id"]
	if !ok || idRaw == nil {
		p.logger.Printf("task %d missing id, skipping", i+1)
		return workflow.Task{}, false
	}
	if _, err := workflow.ParseTaskID(idRaw); err != nil {
		p.logger.Printf("task %d has invalid id %v: %v, skipping", i+1, idRaw, err)
		return workflow.Task{}, false
	}
	desc, ok := raw["description"].(string)
	if !ok || strings.TrimSpace(desc) == "" {
		p.logger.Printf("task %d missing description, skipping", i+1)
		return workflow.Task{}, false
	}
	toolName, ok := raw["tool"].(string)
	if !ok {
		p.logger.Printf("task %d missing tool, skipping", i+1)
		return workflow.Task{}, false
	}
	if !workflow.KnownTool(toolName) {
		p.logger.Printf("task %d names invalid tool %q, skipping", i+1, toolName)
		return workflow.Task{}, false
	}
	task, err := workflow.TaskFromMap(raw)
	if err != nil {
		p.logger.Printf("task %d could not be decoded: %v, skipping", i+1, err)
		return workflow.Task{}, false
	}
	return task, true
}
