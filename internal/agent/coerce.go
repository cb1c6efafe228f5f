package agent

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Model output rarely arrives as clean JSON: it comes fenced in
// markdown, wrapped in prose, or quoted with apostrophes. The helpers
// here pull a decodable document out of it.

var (
	fenceRe         = regexp.MustCompile("(?is)```(?:json)?\\s*([\\s\\S]*?)\\s*```")
	objectRe        = regexp.MustCompile(`(?s)\{.*\}`)
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
)

// extractPlanJSON locates the JSON array in the planner's reply.
func extractPlanJSON(content string) string {
	stripped := strings.TrimSpace(content)
	if (strings.HasPrefix(stripped, "[") && strings.HasSuffix(stripped, "]")) ||
		(strings.HasPrefix(stripped, "{") && strings.HasSuffix(stripped, "}")) {
		return normalizePlanJSON(stripped)
	}
	if m := fenceRe.FindStringSubmatch(content); m != nil {
		return normalizePlanJSON(strings.TrimSpace(m[1]))
	}
	return normalizePlanJSON(stripped)
}

// normalizePlanJSON repairs the common quoting mistakes in plan output:
// apostrophes instead of double quotes, and a bare object where an
// array was requested. Content that decodes as-is passes through
// untouched, and content that still fails after repair comes back
// unchanged so the caller reports the original.
func normalizePlanJSON(content string) string {
	if json.Valid([]byte(content)) {
		return content
	}
	fixed := content
	fixed = strings.ReplaceAll(fixed, `\"`, "@@QUOTE@@")
	fixed = strings.ReplaceAll(fixed, `"`, `\"`)
	fixed = strings.ReplaceAll(fixed, `'`, `"`)
	fixed = strings.ReplaceAll(fixed, "@@QUOTE@@", `\"`)
	if !strings.HasPrefix(strings.TrimSpace(fixed), "[") {
		fixed = "[" + fixed + "]"
	}
	if json.Valid([]byte(fixed)) {
		return fixed
	}
	return content
}

// extractVerdictJSON locates the JSON object in the reflector's reply,
// preferring a fenced block over a bare one, and strips trailing commas.
func extractVerdictJSON(content string) string {
	stripped := strings.TrimSpace(content)
	if m := fenceRe.FindStringSubmatch(stripped); m != nil {
		inner := strings.TrimSpace(m[1])
		if strings.HasPrefix(inner, "{") {
			return trailingCommaRe.ReplaceAllString(inner, "$1")
		}
	}
	if m := objectRe.FindString(stripped); m != "" {
		return trailingCommaRe.ReplaceAllString(m, "$1")
	}
	return stripped
}
