package workflow

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSynthesizeWholeFloat(t *testing.T) {
	st := &State{
		Results: []Result{{TaskID: IntID(1), Payload: 4.0, Status: StatusCompleted}},
	}
	got := Synthesize(st)
	if !strings.Contains(got, "4.0") {
		t.Fatalf("whole floats must keep one decimal: %q", got)
	}
	if strings.Contains(got, "4.00") {
		t.Fatalf("only one decimal expected: %q", got)
	}
}

func TestSynthesizeFatalErrorVerbatim(t *testing.T) {
	st := &State{
		ErrMessage: "critical error during task planning: model unreachable",
		Results:    []Result{{TaskID: IntID(1), Payload: "ignored", Status: StatusCompleted}},
	}
	if got := Synthesize(st); got != st.ErrMessage {
		t.Fatalf("fatal message must be returned verbatim, got %q", got)
	}
}

func TestSynthesizeMixedResults(t *testing.T) {
	st := &State{
		Results: []Result{
			{TaskID: IntID(1), Payload: "Paris is the capital of France", Status: StatusCompleted},
			{TaskID: IntID(2), Payload: "division by zero", Status: StatusFailed},
		},
	}
	got := Synthesize(st)
	if !strings.Contains(got, "1. Paris is the capital of France") {
		t.Fatalf("missing enumerated success: %q", got)
	}
	if !strings.Contains(got, "Task 2 failed: division by zero") {
		t.Fatalf("missing failure listing: %q", got)
	}
}

func TestSynthesizeFallsBackToFeedback(t *testing.T) {
	st := &State{
		Tasks:      []Task{{ID: IntID(1), Description: "d", Tool: ToolSearch}},
		Reflection: Reflection{Feedback: "nothing conclusive found"},
	}
	got := Synthesize(st)
	if got != "nothing conclusive found" {
		t.Fatalf("expected feedback fallback, got %q", got)
	}
}

func TestSynthesizeTruncatesLongPayloads(t *testing.T) {
	st := &State{
		Results: []Result{{TaskID: IntID(1), Payload: strings.Repeat("x", 2000), Status: StatusCompleted}},
	}
	got := Synthesize(st)
	for _, line := range strings.Split(got, "\n") {
		if len(line) > maxPayloadChars+8 {
			t.Fatalf("payload line not truncated: %d chars", len(line))
		}
	}
}

func TestSynthesizeTruncatesOnRuneBoundary(t *testing.T) {
	// 3-byte runes that do not divide maxPayloadChars evenly, so a byte
	// slice would cut mid-rune.
	st := &State{
		Results: []Result{{TaskID: IntID(1), Payload: strings.Repeat("気", 1000), Status: StatusCompleted}},
	}
	got := Synthesize(st)
	if !utf8.ValidString(got) {
		t.Fatalf("truncated response contains invalid UTF-8: %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 4); got != "abcd" {
		t.Fatalf("ascii truncate: %q", got)
	}
	if got := truncate("ab", 4); got != "ab" {
		t.Fatalf("short string must pass through: %q", got)
	}
	// "héllo": é is 2 bytes, cutting at 2 would split it.
	if got := truncate("héllo", 2); got != "h" {
		t.Fatalf("rune boundary not respected: %q", got)
	}
}

func TestFormatPayload(t *testing.T) {
	cases := []struct {
		in   interface{}
		want string
	}{
		{nil, ""},
		{"text", "text"},
		{4.0, "4.0"},
		{-3.0, "-3.0"},
		{2.5, "2.5"},
		{float32(8), "8.0"},
		{map[string]interface{}{"k": "v"}, `{"k":"v"}`},
		{[]string{"a", "b"}, `["a","b"]`},
	}
	for _, tc := range cases {
		if got := FormatPayload(tc.in); got != tc.want {
			t.Errorf("FormatPayload(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
