package chunker

import "regexp"

// callMatcher extracts probable function/method call identifiers from a
// chunk body for a given language family. It is deliberately regex-based,
// not a real parser — good enough for call-graph hints, not correctness.
type callMatcher struct {
	re *regexp.Regexp
}

var (
	cLikeCallRe = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*)\s*\(`)
	pyCallRe    = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_.]*)\s*\(`)
)

var keywordDenylist = map[string]bool{
	"if": true, "for": true, "while": true, "switch": true, "catch": true,
	"return": true, "func": true, "def": true, "class": true, "function": true,
	"and": true, "or": true, "not": true, "elif": true, "else": true,
}

func callPattern(language string) callMatcher {
	switch language {
	case "python":
		return callMatcher{re: pyCallRe}
	default:
		return callMatcher{re: cLikeCallRe}
	}
}

// findCalls returns the de-duplicated, denylist-filtered set of call-like
// identifiers found in content, preserving first-seen order.
func (m callMatcher) findCalls(content string) []string {
	if m.re == nil {
		return nil
	}
	matches := m.re.FindAllStringSubmatch(content, -1)
	seen := make(map[string]bool, len(matches))
	var out []string
	for _, match := range matches {
		name := match[1]
		if keywordDenylist[name] || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}
