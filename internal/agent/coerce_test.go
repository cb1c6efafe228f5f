package agent

import (
	"encoding/json"
	"testing"
)

func TestExtractPlanJSONDirect(t *testing.T) {
	in := `[{"id": 1, "description": "2+2", "tool": "calculator"}]`
	if got := extractPlanJSON(in); got != in {
		t.Fatalf("valid array must pass through, got %q", got)
	}
}

func TestExtractPlanJSONFenced(t *testing.T) {
	in := "Here is the plan:\n```json\n[{\"id\": 1, \"description\": \"x\", \"tool\": \"search\"}]\n```\nLet me know."
	got := extractPlanJSON(in)
	if !json.Valid([]byte(got)) {
		t.Fatalf("fenced content not extracted: %q", got)
	}
	var tasks []map[string]interface{}
	if err := json.Unmarshal([]byte(got), &tasks); err != nil || len(tasks) != 1 {
		t.Fatalf("unexpected extraction: %q (%v)", got, err)
	}
}

func TestExtractPlanJSONSingleQuotes(t *testing.T) {
	in := `[{'id': 1, 'description': 'search for "golang"', 'tool': 'search'}]`
	got := extractPlanJSON(in)
	var tasks []map[string]interface{}
	if err := json.Unmarshal([]byte(got), &tasks); err != nil {
		t.Fatalf("quote repair failed for %q: %v", got, err)
	}
	if tasks[0]["description"] != `search for "golang"` {
		t.Fatalf("inner quotes corrupted: %v", tasks[0]["description"])
	}
}

func TestExtractPlanJSONWrapsBareObject(t *testing.T) {
	in := `{'id': 1, 'description': 'x', 'tool': 'search'}`
	got := extractPlanJSON(in)
	var tasks []map[string]interface{}
	if err := json.Unmarshal([]byte(got), &tasks); err != nil {
		t.Fatalf("bare object not wrapped into array: %q (%v)", got, err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected one task, got %d", len(tasks))
	}
}

func TestExtractPlanJSONUnrepairable(t *testing.T) {
	in := "I cannot produce a plan for this."
	if got := extractPlanJSON(in); got != in {
		t.Fatalf("unrepairable content must come back unchanged, got %q", got)
	}
}

func TestExtractVerdictJSONFenced(t *testing.T) {
	in := "```json\n{\"success\": true, \"complete\": false,}\n```"
	got := extractVerdictJSON(in)
	if !json.Valid([]byte(got)) {
		t.Fatalf("trailing comma not stripped: %q", got)
	}
}

func TestExtractVerdictJSONBareObject(t *testing.T) {
	in := `The verdict follows. {"success": true, "complete": true, "feedback": "ok", "refinements": []} Done.`
	got := extractVerdictJSON(in)
	var v map[string]interface{}
	if err := json.Unmarshal([]byte(got), &v); err != nil {
		t.Fatalf("bare object not located: %q (%v)", got, err)
	}
	if v["success"] != true {
		t.Fatalf("unexpected verdict: %v", v)
	}
}
