// Package recovery extracts structured data from LLM output.
//
// Model output is supposed to contain exactly one JSON value but is
// corrupted in predictable ways: markdown fences, prose around the value,
// truncation at the token limit, trailing commas. The pipeline here repairs
// those defects with an explicit scanner (depth stack + in-string flag +
// escape flag) instead of regular expressions, and falls back to salvaging
// self-contained object fragments when full repair fails. Recovered text is
// only ever parsed as data, never evaluated.
package recovery

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/careerforge/ai-gateway/internal/domain"
)

// Outcome is the result of a successful parse.
type Outcome struct {
	Value    any
	Repaired bool // defect repairs were applied
	Salvaged bool // Value is a collection recovered fragment-by-fragment
}

// Parse runs the recovery pipeline without operation-specific salvage.
func Parse(text string) (Outcome, error) {
	return ParseFor(text, "", false)
}

// ParseFor runs the recovery pipeline. When allowCollection is true and full
// repair fails, it returns a (possibly empty) collection of salvaged objects
// instead of an error; salvageKey, when non-empty, filters fragments to those
// carrying a non-empty value under that key.
//
// Steps run in order, each only if the previous did not yield valid JSON:
// fence stripping, anchoring the first top-level value, defect repair,
// strict parse, fragment salvage.
func ParseFor(text, salvageKey string, allowCollection bool) (Outcome, error) {
	if strings.TrimSpace(text) == "" {
		return Outcome{}, fmt.Errorf("op=recovery.parse: %w: empty response", domain.ErrParseFailed)
	}
	s := stripFences(text)

	// Fast path: the unwrapped text is already valid JSON.
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return Outcome{Value: v}, nil
	}

	if span, st, ok := anchor(s); ok {
		if st.complete() {
			if err := json.Unmarshal([]byte(span), &v); err == nil {
				return Outcome{Value: v, Repaired: true}, nil
			}
		}
		for _, candidate := range repairCandidates(span, st) {
			if err := json.Unmarshal([]byte(candidate), &v); err == nil {
				return Outcome{Value: v, Repaired: true}, nil
			}
		}
	}

	if allowCollection {
		return Outcome{Value: salvageObjects(s, salvageKey), Repaired: true, Salvaged: true}, nil
	}
	return Outcome{}, fmt.Errorf("op=recovery.parse: %w: no recoverable json (snippet=%q)", domain.ErrParseFailed, Snippet(text, 120))
}

// Snippet returns at most n bytes of s for error messages and logs.
func Snippet(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// stripFences removes leading/trailing markdown code-fence markers.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "```json"):
		s = s[len("```json"):]
	case strings.HasPrefix(s, "```"):
		s = s[len("```"):]
	}
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "```") {
		s = s[:len(s)-len("```")]
	}
	return strings.TrimSpace(s)
}

// scanState is the scanner state left over at the end of an anchored span.
type scanState struct {
	stack    []byte // open '{' / '[' brackets, innermost last
	inString bool
	escaped  bool
}

func (st scanState) complete() bool { return len(st.stack) == 0 && !st.inString }

// anchor locates the first '[' or '{' and scans forward to the matching
// closer, honoring string literals and escape sequences. It returns the
// anchored span and the scanner state at its end; ok is false when the text
// contains no opening bracket at all. A span that ran out of input before
// closing is returned as-is with the unfinished state for repair.
func anchor(s string) (string, scanState, bool) {
	start := strings.IndexAny(s, "[{")
	if start < 0 {
		return "", scanState{}, false
	}
	var st scanState
	for i := start; i < len(s); i++ {
		c := s[i]
		if st.inString {
			switch {
			case st.escaped:
				st.escaped = false
			case c == '\\':
				st.escaped = true
			case c == '"':
				st.inString = false
			}
			continue
		}
		switch c {
		case '"':
			st.inString = true
		case '{', '[':
			st.stack = append(st.stack, c)
		case '}', ']':
			if len(st.stack) > 0 {
				st.stack = st.stack[:len(st.stack)-1]
			}
			if len(st.stack) == 0 {
				// First complete top-level value; anything after is discarded.
				return s[start : i+1], st, true
			}
		}
	}
	return s[start:], st, true
}

// repairCandidates applies defect repairs to an anchored span, in order:
// closing an unterminated string, trailing-comma removal, substituting null
// for an incomplete trailing property value, and draining the open-bracket
// stack. When the span was cut mid-string the string may have been a
// property name rather than a value, so a second candidate treats it as a
// key and supplies ": null".
func repairCandidates(span string, st scanState) []string {
	truncatedInString := st.inString
	if st.inString {
		if st.escaped {
			// Cut the dangling backslash so the appended quote terminates
			// the literal instead of being escaped by it.
			span = span[:len(span)-1]
		}
		span += `"`
	}

	span = dropTrailingCommas(span)

	closers := closersFor(st.stack)
	candidates := []string{completeTrailingValue(span) + closers}
	if truncatedInString {
		candidates = append(candidates, span+": null"+closers)
	}
	return candidates
}

func closersFor(stack []byte) string {
	var b strings.Builder
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String()
}

// dropTrailingCommas removes commas that directly precede a closing bracket,
// scanning string-aware so commas inside literals survive.
func dropTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			b.WriteByte(c)
			continue
		}
		if c == '"' {
			inString = true
			b.WriteByte(c)
			continue
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && isSpace(s[j]) {
				j++
			}
			if j >= len(s) || s[j] == '}' || s[j] == ']' {
				continue // trailing comma: before a closer or at end of span
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// completeTrailingValue patches a span that was truncated after a property
// name or inside a bare literal: "key": <EOF> and partial true/false/null
// both become null.
func completeTrailingValue(s string) string {
	trimmed := strings.TrimRight(s, " \t\r\n")
	if trimmed == "" {
		return s
	}
	if strings.HasSuffix(trimmed, ":") {
		return trimmed + " null"
	}
	// Partial bare literal at the very end, e.g. `"active": tru`.
	i := len(trimmed)
	for i > 0 && isLiteralByte(trimmed[i-1]) {
		i--
	}
	tail := trimmed[:i]
	word := trimmed[i:]
	if word != "" && !strings.HasSuffix(tail, `"`) {
		for _, lit := range []string{"true", "false", "null"} {
			if word != lit && strings.HasPrefix(lit, word) {
				return tail + "null"
			}
		}
	}
	return trimmed
}

func isLiteralByte(c byte) bool { return c >= 'a' && c <= 'z' }

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }

// salvageObjects extracts every syntactically self-contained, non-nested
// {...} fragment that parses on its own. When key is non-empty only
// fragments carrying a non-empty value under that key are kept.
func salvageObjects(s, key string) []any {
	out := make([]any, 0)
	start := -1
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
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
			// A nested opener restarts the candidate: only innermost,
			// non-nested objects are salvage material.
			start = i
		case '}':
			if start >= 0 {
				var obj map[string]any
				if err := json.Unmarshal([]byte(s[start:i+1]), &obj); err == nil {
					if key == "" || hasNonEmpty(obj, key) {
						out = append(out, obj)
					}
				}
				start = -1
			}
		}
	}
	return out
}

func hasNonEmpty(obj map[string]any, key string) bool {
	v, ok := obj[key]
	if !ok {
		return false
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t) != ""
	case nil:
		return false
	default:
		return true
	}
}
