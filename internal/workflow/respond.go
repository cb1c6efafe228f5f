package workflow

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// maxPayloadChars bounds how much of a single result payload is echoed
// into the final response.
const maxPayloadChars = 500

// Synthesize renders the final human-readable text from the last known
// state. A fatal error message is returned verbatim; otherwise successful
// payloads are enumerated, failures listed, and when there is nothing to
// report the last feedback (or an explicit empty-plan statement) is used.
func Synthesize(st *State) string {
	if st.ErrMessage != "" {
		return st.ErrMessage
	}

	var parts []string
	var failures []string
	n := 0
	for _, r := range st.Results {
		if r.Status == StatusCompleted {
			if n == 0 {
				parts = append(parts, "Successfully completed tasks yielded:")
			}
			n++
			parts = append(parts, fmt.Sprintf("%d. %s", n, truncate(FormatPayload(r.Payload), maxPayloadChars)))
		} else {
			failures = append(failures, fmt.Sprintf("Task %s failed: %s", r.TaskID, FormatPayload(r.Payload)))
		}
	}
	if len(failures) > 0 {
		parts = append(parts, "\nSome tasks encountered issues:")
		parts = append(parts, failures...)
	}

	if len(parts) == 0 {
		feedback := st.Reflection.Feedback
		if feedback == "" {
			feedback = "Workflow concluded. No specific results to report."
		}
		parts = append(parts, feedback)
		if len(st.Tasks) == 0 && len(st.Results) == 0 {
			parts = append(parts, "No tasks were planned or executed.")
		}
	}

	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// FormatPayload renders a tool payload as text. Whole-number floats keep
// one decimal place ("4.0", not "4") so numeric answers read as numbers
// rather than ids; structured payloads are rendered as compact JSON.
func FormatPayload(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return strconv.FormatFloat(t, 'f', 1, 64)
		}
		return strconv.FormatFloat(t, 'g', -1, 64)
	case float32:
		return FormatPayload(float64(t))
	case error:
		return t.Error()
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}

// truncate cuts s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
