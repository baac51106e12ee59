package jsonx

import (
	"encoding/json"
	"strings"

	"listing-agent/internal/diag"
)

// Decode recovers a JSON object from free-form model output. It first tries a
// strict parse of the whole text (after trimming markdown fences), then falls
// back to the shortest balanced candidate found by Extract. When both fail the
// destination is left untouched, so callers pre-fill it with their fallback
// object and never see an error.
func Decode(text string, out any) bool {
	trimmed := stripFences(text)
	if trimmed == "" {
		return false
	}
	if err := json.Unmarshal([]byte(trimmed), out); err == nil {
		return true
	}
	candidate, ok := Extract(trimmed)
	if !ok {
		logParseFailure(text, "no balanced object found")
		return false
	}
	if err := json.Unmarshal([]byte(candidate), out); err != nil {
		logParseFailure(text, err.Error())
		return false
	}
	return true
}

// Extract locates the first '{' and scans for its balancing '}', tracking
// string-literal and escape state so braces inside string values do not close
// the object early. Models are prompted to answer with bare JSON but often
// prepend reasoning or append commentary; slicing first-'{' to last-'}' would
// grab unrelated trailing braces, so the scan stops at the shortest
// syntactically closed candidate.
func Extract(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// stripFences removes a surrounding ```json ... ``` (or plain ```) block.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.IndexRune(s, '\n'); idx >= 0 {
		s = s[idx+1:]
	} else {
		s = strings.TrimPrefix(strings.ToLower(s), "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func logParseFailure(raw string, reason string) {
	if !diag.Enabled("AGENT_LOG_PARSE") {
		return
	}
	diag.Section("JSON PARSE FAILED")
	diag.KV("error", reason)
	diag.Block("raw", diag.Trunc(raw, 2500))
}
