package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/reflow-agent/reflow/internal/provider"
	"github.com/reflow-agent/reflow/internal/workflow"
)

const reflectSystemPrompt = `You are a ReflectorAgent responsible for evaluating task execution results and suggesting refinements.

Your job is to:
1. Evaluate if the tasks were executed successfully (check status fields in results).
2. Determine if the results (even if some tasks failed) collectively satisfy the original query.
3. If not complete or successful, suggest task refinements (modify, add, remove) or new tasks.
   - For failed tasks, you might suggest retrying with modifications or removing them if not critical.
   - Ensure 'details' for refinements are valid JSON strings if they represent new task structures or modifications.

Examples of refinements:
- Modify task parameters for better accuracy: {"action": "modify", "task_id": 1, "details": "{\"description\": \"Search Tokyo average temperature in Celsius\"}"}
- Add new tasks to gather missing information: {"action": "add", "task_id": null, "details": "{\"id\": 4, \"description\": \"Convert NY temperature to Celsius\", \"tool\": \"calculator\"}"}
- Remove redundant or failed tasks: {"action": "remove", "task_id": 2, "details": "Task failed repeatedly and is not critical"}

Return a JSON object with:
{
    "success": true/false,
    "complete": true/false,
    "feedback": "Detailed feedback about results and progress towards the query.",
    "refinements": [
        {
            "action": "modify/add/remove",
            "task_id": task_id_or_null,
            "details": "Specific changes (JSON string for add/modify task) or reason for removal (string)"
        }
    ]
}

If all tasks succeeded and the query seems complete, set success and complete to true with positive feedback.
If errors occurred or more work is needed, set success/complete to false and provide refinements.
If no refinements can be suggested for a failed state, return empty refinements list.`

// Reflector judges an executed round and proposes plan refinements.
type Reflector struct {
	provider provider.Provider
	logger   *log.Logger
	usage    UsageRecorder
}

func NewReflector(p provider.Provider, logger *log.Logger, usage UsageRecorder) *Reflector {
	if logger == nil {
		logger = log.New(log.Writer(), "[REFLECTOR] ", log.LstdFlags)
	}
	return &Reflector{provider: p, logger: logger, usage: usage}
}

// Evaluate implements workflow.Reflector.
func (r *Reflector) Evaluate(ctx context.Context, query string, tasks []workflow.Task, results []workflow.Result) (workflow.Reflection, error) {
	formattedTasks, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return workflow.Reflection{}, fmt.Errorf("%w: encoding tasks: %v", ErrReflection, err)
	}
	formattedResults, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return workflow.Reflection{}, fmt.Errorf("%w: encoding results: %v", ErrReflection, err)
	}

	userPrompt := fmt.Sprintf("Context:\nOriginal Query: %s\nExecuted Tasks: %s\nTask Results: %s\n\nEvaluate the results and provide your assessment:",
		query, formattedTasks, formattedResults)

	completion, err := r.provider.Generate(ctx, reflectSystemPrompt, userPrompt)
	if r.usage != nil {
		r.usage.RecordLLMUsage(completion.PromptTokens, completion.CompletionTokens, 0, err)
	}
	if err != nil {
		return workflow.Reflection{}, fmt.Errorf("%w: %v", ErrReflection, err)
	}
	content := strings.TrimSpace(completion.Text)
	if content == "" {
		return workflow.Reflection{}, fmt.Errorf("%w: empty response from model", ErrReflection)
	}

	extracted := extractVerdictJSON(content)

	var raw struct {
		Success     *bool           `json:"success"`
		Complete    *bool           `json:"complete"`
		Feedback    *string         `json:"feedback"`
		Refinements json.RawMessage `json:"refinements"`
	}
	if err := json.Unmarshal([]byte(extracted), &raw); err != nil {
		return workflow.Reflection{}, fmt.Errorf("%w: %v", ErrReflection, &JSONParseError{Content: extracted, Err: err})
	}
	if raw.Success == nil || raw.Complete == nil || raw.Feedback == nil || raw.Refinements == nil {
		return workflow.Reflection{}, fmt.Errorf("%w: verdict missing required fields", ErrReflection)
	}

	// A JSON null decodes into a slice without error, so require an
	// actual array token before unmarshalling.
	trimmed := bytes.TrimSpace(raw.Refinements)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return workflow.Reflection{}, fmt.Errorf("%w: refinements must be an array, got %s", ErrReflection, trimmed)
	}
	var refinements []workflow.Refinement
	if err := json.Unmarshal(raw.Refinements, &refinements); err != nil {
		return workflow.Reflection{}, fmt.Errorf("%w: refinements must be an array: %v", ErrReflection, err)
	}

	reflection := workflow.Reflection{
		Success:     *raw.Success,
		Complete:    *raw.Complete,
		Feedback:    *raw.Feedback,
		Refinements: refinements,
	}
	r.logger.Printf("verdict success=%t complete=%t refinements=%d", reflection.Success, reflection.Complete, len(reflection.Refinements))
	return reflection, nil
}
