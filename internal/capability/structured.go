package capability

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseStructured decodes a model reply into v, tolerating the usual
// decoration: markdown code fences, leading prose before the first brace or
// bracket, trailing commentary after the last one. Returns ErrMalformed
// (wrapped) when no parseable JSON can be recovered; callers substitute
// their stage-specific default.
func ParseStructured(raw string, v interface{}) error {
	candidate := ExtractJSON(raw)
	if candidate == "" {
		return fmt.Errorf("%w: no JSON found in reply", ErrMalformed)
	}

	if err := json.Unmarshal([]byte(candidate), v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	return nil
}

// ExtractJSON returns the most plausible JSON document embedded in a model
// reply, or "" if none is present.
func ExtractJSON(raw string) string {
	s := strings.TrimSpace(raw)

	// Prefer fenced blocks when present
	if idx := strings.Index(s, "```"); idx >= 0 {
		rest := s[idx+3:]
		rest = strings.TrimPrefix(rest, "json")
		rest = strings.TrimPrefix(rest, "JSON")
		if end := strings.Index(rest, "```"); end >= 0 {
			if inner := strings.TrimSpace(rest[:end]); inner != "" {
				s = inner
			}
		}
	}

	start := -1
	for i, r := range s {
		if r == '{' || r == '[' {
			start = i
			break
		}
	}
	if start < 0 {
		return ""
	}

	open := s[start]
	closer := byte('}')
	if open == '[' {
		closer = ']'
	}

	end := strings.LastIndexByte(s, closer)
	if end <= start {
		return ""
	}

	return s[start : end+1]
}

// StripStructuredFragments removes leftover JSON debris (fenced blocks and
// lines that are bare JSON documents) from generated prose. Returns the
// cleaned text, which may be empty.
func StripStructuredFragments(text string) string {
	// Drop fenced blocks wholesale
	for {
		start := strings.Index(text, "```")
		if start < 0 {
			break
		}
		end := strings.Index(text[start+3:], "```")
		if end < 0 {
			text = text[:start]
			break
		}
		text = text[:start] + text[start+3+end+3:]
	}

	var kept []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if len(trimmed) >= 2 {
			first, last := trimmed[0], trimmed[len(trimmed)-1]
			if (first == '{' && last == '}') || (first == '[' && last == ']') {
				var sink interface{}
				if json.Unmarshal([]byte(trimmed), &sink) == nil {
					continue
				}
			}
		}
		kept = append(kept, line)
	}

	return strings.TrimSpace(strings.Join(kept, "\n"))
}
