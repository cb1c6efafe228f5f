package workflow

import (
	"encoding/json"
	"fmt"
	"log"
)

// ApplyRefinements applies refinement instructions to a task list in order,
// so later instructions see the effect of earlier ones. Malformed
// instructions are logged and skipped; the function never fails as a whole.
// The input slice is not mutated.
func ApplyRefinements(tasks []Task, refs []Refinement, logger *log.Logger) []Task {
	current := make([]Task, len(tasks))
	for i, t := range tasks {
		current[i] = t.Clone()
	}
	if len(refs) == 0 {
		return current
	}

	applied := 0
	for _, ref := range refs {
		switch {
		case ref.Action == ActionRemove && ref.TaskID != nil:
			kept := current[:0]
			removed := false
			for _, t := range current {
				if t.ID.Equal(*ref.TaskID) {
					removed = true
					continue
				}
				kept = append(kept, t)
			}
			current = kept
			if removed {
				applied++
			} else if logger != nil {
				logger.Printf("refine: no task with id %s to remove", ref.TaskID)
			}

		case ref.Action == ActionModify && ref.TaskID != nil && len(ref.Details) > 0:
			fields, err := decodeDetails(ref.Details)
			if err != nil {
				if logger != nil {
					logger.Printf("refine: modify details for id %s undecodable: %v", ref.TaskID, err)
				}
				continue
			}
			modified := false
			for i := range current {
				if current[i].ID.Equal(*ref.TaskID) {
					mergeTaskFields(&current[i], fields, logger)
					modified = true
					applied++
					break
				}
			}
			if !modified && logger != nil {
				logger.Printf("refine: no task with id %s to modify", ref.TaskID)
			}

		case ref.Action == ActionAdd && len(ref.Details) > 0:
			fields, err := decodeDetails(ref.Details)
			if err != nil {
				if logger != nil {
					logger.Printf("refine: add details undecodable: %v", err)
				}
				continue
			}
			task, err := TaskFromMap(fields)
			if err != nil {
				if logger != nil {
					logger.Printf("refine: add payload invalid: %v", err)
				}
				continue
			}
			if task.ID.IsZero() {
				task.ID = IntID(nextIntID(current))
			}
			if task.Description == "" || task.Tool == "" {
				if logger != nil {
					logger.Printf("refine: added task %s missing description or tool, skipping", task.ID)
				}
				continue
			}
			if task.Status == "" {
				task.Status = StatusPending
			}
			current = append(current, task)
			applied++

		default:
			if logger != nil {
				logger.Printf("refine: unknown or incomplete instruction (action=%q task_id=%v)", ref.Action, ref.TaskID)
			}
		}
	}

	if logger != nil {
		logger.Printf("refine: %d of %d instructions applied, %d tasks remain", applied, len(refs), len(current))
	}
	return current
}

// nextIntID returns one greater than the maximum integer id currently in
// the list, so omitted-id adds never collide with existing integer ids.
func nextIntID(tasks []Task) int64 {
	var max int64
	for _, t := range tasks {
		if n, ok := t.ID.Int(); ok && n > max {
			max = n
		}
	}
	return max + 1
}

// decodeDetails decodes a refinement payload that is either a JSON object
// or a JSON string wrapping one (upstream emitters produce both shapes).
func decodeDetails(raw json.RawMessage) (map[string]interface{}, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err == nil {
		return fields, nil
	}
	var inner string
	if err := json.Unmarshal(raw, &inner); err != nil {
		return nil, fmt.Errorf("details is neither an object nor a string: %s", truncate(string(raw), 120))
	}
	if err := json.Unmarshal([]byte(inner), &fields); err != nil {
		return nil, fmt.Errorf("details string does not contain a JSON object: %w", err)
	}
	return fields, nil
}

// mergeTaskFields overwrites same-named task fields from a partial update,
// leaving others untouched. Wrong-typed values for required fields are
// skipped rather than clobbering valid data.
func mergeTaskFields(t *Task, fields map[string]interface{}, logger *log.Logger) {
	for k, v := range fields {
		switch k {
		case "id":
			id, err := ParseTaskID(v)
			if err != nil {
				if logger != nil {
					logger.Printf("refine: modify id rejected: %v", err)
				}
				continue
			}
			t.ID = id
		case "description":
			if s, ok := v.(string); ok {
				t.Description = s
			} else if logger != nil {
				logger.Printf("refine: modify description must be a string, got %T", v)
			}
		case "tool":
			if s, ok := v.(string); ok {
				t.Tool = s
			} else if logger != nil {
				logger.Printf("refine: modify tool must be a string, got %T", v)
			}
		case "status":
			if s, ok := v.(string); ok {
				t.Status = Status(s)
			}
		case "retry_count":
			if n, ok := v.(float64); ok {
				t.RetryCount = int(n)
			}
		default:
			if t.Extra == nil {
				t.Extra = make(map[string]interface{})
			}
			t.Extra[k] = v
		}
	}
}
