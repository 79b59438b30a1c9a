package validate

import (
	"regexp"
	"strings"
)

// Repair names recorded in results.
const (
	RepairCodeFences     = "strip_code_fences"
	RepairSmartQuotes    = "normalize_smart_quotes"
	RepairExtractObject  = "extract_json_object"
	RepairTrailingCommas = "strip_trailing_commas"
)

var reFence = regexp.MustCompile("(?s)```[A-Za-z0-9_-]*[ \t]*\r?\n?(.*?)```")

var smartQuotes = strings.NewReplacer(
	"“", `"`, "”", `"`, "„", `"`, "‟", `"`, "″", `"`,
	"‘", "'", "’", "'", "‚", "'", "‛", "'", "′", "'",
)

// repairPass applies the fixed syntactic repairs once, in order, and returns
// the rewritten text with the names of the repairs that changed it.
func repairPass(s string) (string, []string) {
	var applied []string
	step := func(name string, f func(string) string) {
		if out := f(s); out != s {
			s = out
			applied = append(applied, name)
		}
	}
	step(RepairCodeFences, stripCodeFences)
	step(RepairSmartQuotes, smartQuotes.Replace)
	step(RepairExtractObject, largestObject)
	step(RepairTrailingCommas, stripTrailingCommas)
	return s, applied
}

// stripCodeFences returns the body of the first fenced block, or drops a
// dangling opening fence line.
func stripCodeFences(s string) string {
	if m := reFence.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	t := strings.TrimSpace(s)
	if strings.HasPrefix(t, "```") {
		if i := strings.IndexByte(t, '\n'); i >= 0 {
			return strings.TrimSpace(t[i+1:])
		}
		return strings.TrimSpace(strings.TrimLeft(t, "`"))
	}
	return s
}

// largestObject returns the longest balanced {...} span, ignoring braces
// inside JSON strings. Input without a balanced object is returned unchanged.
func largestObject(s string) string {
	bestStart, bestEnd := -1, -1
	depth, start := 0, -1
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
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && i+1-start > bestEnd-bestStart {
				bestStart, bestEnd = start, i+1
			}
		}
	}
	if bestStart < 0 {
		return s
	}
	return s[bestStart:bestEnd]
}

// stripTrailingCommas removes commas that directly precede '}' or ']',
// ignoring commas inside JSON strings.
func stripTrailingCommas(s string) string {
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
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && isSpace(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
