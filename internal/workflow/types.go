package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Status describes the lifecycle of a task or a result.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Tool names recognised by the capability table. Tasks naming anything
// else are invalid.
const (
	ToolSearch     = "search"
	ToolCalculator = "calculator"
	ToolFetch      = "fetch"
)

// KnownTool reports whether name is a member of the enumerated tool set.
func KnownTool(name string) bool {
	switch name {
	case ToolSearch, ToolCalculator, ToolFetch:
		return true
	}
	return false
}

// TaskID identifies a task within the current task list. Upstream planners
// emit either integer or string ids, so both representations are kept
// explicit instead of hiding them in an untyped field.
type TaskID struct {
	num   int64
	str   string
	isInt bool
	set   bool
}

// IntID builds an integer task id.
func IntID(n int64) TaskID { return TaskID{num: n, isInt: true, set: true} }

// StringID builds a string task id.
func StringID(s string) TaskID { return TaskID{str: s, set: true} }

// ParseTaskID coerces a decoded JSON value into a TaskID. Whole-number
// floats are treated as integers because encoding/json decodes all JSON
// numbers to float64.
func ParseTaskID(v interface{}) (TaskID, error) {
	switch t := v.(type) {
	case nil:
		return TaskID{}, fmt.Errorf("task id is null")
	case string:
		return StringID(t), nil
	case int:
		return IntID(int64(t)), nil
	case int64:
		return IntID(t), nil
	case float64:
		if t != math.Trunc(t) {
			return TaskID{}, fmt.Errorf("task id %v is not an integer", t)
		}
		return IntID(int64(t)), nil
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return IntID(n), nil
		}
		return StringID(t.String()), nil
	default:
		return TaskID{}, fmt.Errorf("task id must be an integer or string, got %T", v)
	}
}

// IsZero reports whether the id was never populated.
func (id TaskID) IsZero() bool { return !id.set }

// Int returns the integer value and whether the id is integer-typed.
func (id TaskID) Int() (int64, bool) {
	if !id.set || !id.isInt {
		return 0, false
	}
	return id.num, true
}

// Equal compares two ids. Integer and string ids never compare equal,
// even when they render identically.
func (id TaskID) Equal(other TaskID) bool {
	if !id.set || !other.set || id.isInt != other.isInt {
		return false
	}
	if id.isInt {
		return id.num == other.num
	}
	return id.str == other.str
}

func (id TaskID) String() string {
	if !id.set {
		return "<unset>"
	}
	if id.isInt {
		return strconv.FormatInt(id.num, 10)
	}
	return id.str
}

// MarshalJSON renders integer ids as JSON numbers and string ids as strings.
func (id TaskID) MarshalJSON() ([]byte, error) {
	if !id.set {
		return []byte("null"), nil
	}
	if id.isInt {
		return []byte(strconv.FormatInt(id.num, 10)), nil
	}
	return json.Marshal(id.str)
}

// UnmarshalJSON accepts numbers and strings; anything else is an error.
func (id *TaskID) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return err
	}
	parsed, err := ParseTaskID(v)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Task is one unit of work: an input string bound to a named capability.
// Extra carries unrecognised fields verbatim so refinement payloads with
// forward-compatible data survive round-trips.
type Task struct {
	ID          TaskID
	Description string
	Tool        string
	Status      Status
	RetryCount  int
	Extra       map[string]interface{}
}

// reserved field names handled explicitly by the Task codec.
func reservedTaskField(key string) bool {
	switch key {
	case "id", "description", "tool", "status", "retry_count":
		return true
	}
	return false
}

// MarshalJSON folds Extra back into the flat task object.
func (t Task) MarshalJSON() ([]byte, error) {
	m := make(map[string]interface{}, len(t.Extra)+5)
	for k, v := range t.Extra {
		if !reservedTaskField(k) {
			m[k] = v
		}
	}
	m["id"] = t.ID
	m["description"] = t.Description
	m["tool"] = t.Tool
	if t.Status != "" {
		m["status"] = t.Status
	}
	if t.RetryCount > 0 {
		m["retry_count"] = t.RetryCount
	}
	return json.Marshal(m)
}

// UnmarshalJSON decodes the known fields and preserves the rest in Extra.
func (t *Task) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var m map[string]interface{}
	if err := dec.Decode(&m); err != nil {
		return err
	}
	parsed, err := TaskFromMap(m)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// TaskFromMap builds a Task from a decoded JSON object, keeping unknown
// keys in Extra. It does not enforce presence of the required fields;
// callers validate separately so missing data can be reported per policy.
func TaskFromMap(m map[string]interface{}) (Task, error) {
	var t Task
	if raw, ok := m["id"]; ok && raw != nil {
		id, err := ParseTaskID(raw)
		if err != nil {
			return Task{}, err
		}
		t.ID = id
	}
	if v, ok := m["description"].(string); ok {
		t.Description = v
	}
	if v, ok := m["tool"].(string); ok {
		t.Tool = v
	}
	if v, ok := m["status"].(string); ok {
		t.Status = Status(v)
	}
	if raw, ok := m["retry_count"]; ok {
		switch n := raw.(type) {
		case float64:
			t.RetryCount = int(n)
		case json.Number:
			if i, err := n.Int64(); err == nil {
				t.RetryCount = int(i)
			}
		case int:
			t.RetryCount = n
		}
	}
	for k, v := range m {
		if reservedTaskField(k) {
			continue
		}
		if t.Extra == nil {
			t.Extra = make(map[string]interface{})
		}
		t.Extra[k] = v
	}
	return t, nil
}

// Clone returns a deep-enough copy: the Extra map is duplicated so callers
// holding the original are not affected by later merges.
func (t Task) Clone() Task {
	out := t
	if t.Extra != nil {
		out.Extra = make(map[string]interface{}, len(t.Extra))
		for k, v := range t.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// Result is the outcome of executing one task. Payload holds the tool
// output on success or a human-readable error string on failure.
type Result struct {
	TaskID  TaskID      `json:"task_id"`
	Payload interface{} `json:"result"`
	Status  Status      `json:"status"`
}

// Refinement actions.
const (
	ActionAdd    = "add"
	ActionModify = "modify"
	ActionRemove = "remove"
)

// Refinement is one requested task-list mutation. Details carries a full
// task for add, a partial field-update for modify, and a free-text
// rationale for remove. Upstream emitters sometimes double-encode the
// payload as a JSON string; decodeDetails handles both shapes.
type Refinement struct {
	Action  string          `json:"action"`
	TaskID  *TaskID         `json:"task_id"`
	Details json.RawMessage `json:"details"`
}

// Reflection is the verdict for one execute round. Success and Complete
// are independent: a round can make correct progress without satisfying
// the original query.
type Reflection struct {
	Success     bool         `json:"success"`
	Complete    bool         `json:"complete"`
	Feedback    string       `json:"feedback"`
	Refinements []Refinement `json:"refinements"`
}

// State threads through every step of one query's lifetime. The
// Controller owns it exclusively; adapters only see the slices they need.
type State struct {
	Query         string
	Tasks         []Task
	Results       []Result
	Reflection    Reflection
	FinalResponse string
	Iteration     int
	MaxIterations int
	ErrMessage    string
}

func newState(query string, maxIterations int) *State {
	return &State{Query: query, MaxIterations: maxIterations}
}

// Outcome is the caller-visible result of one workflow run. Tasks and
// Results always reflect the last state reached, even on failure.
type Outcome struct {
	Success  bool     `json:"success"`
	Response string   `json:"response"`
	Tasks    []Task   `json:"tasks"`
	Results  []Result `json:"results"`
}
