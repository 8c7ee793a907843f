package workflow

import (
	"fmt"
	"regexp"
	"strings"
)

// Pattern is one compiled branch pattern. The syntax follows the common CI
// convention: `*` matches within a path segment, `**` matches across
// segments, `?` and `+` quantify the preceding atom, character classes like
// `[0-9]` pass through, and a leading `!` negates the whole pattern.
type Pattern struct {
	Source  string
	Negated bool
	re      *regexp.Regexp
}

// CompilePattern translates one branch pattern into an anchored regexp.
func CompilePattern(src string) (*Pattern, error) {
	p := &Pattern{Source: src}

	body := src
	if strings.HasPrefix(body, "!") {
		p.Negated = true
		body = body[1:]
	}
	if body == "" {
		return nil, fmt.Errorf("empty branch pattern %q", src)
	}

	var sb strings.Builder
	sb.WriteString("^")
	runes := []rune(body)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch c {
		case '*':
			if i+1 < len(runes) && runes[i+1] == '*' {
				sb.WriteString(".*")
				i++
			} else {
				sb.WriteString("[^/]*")
			}
		case '?', '+':
			// Quantifies the preceding atom, same as in a regexp.
			if i == 0 {
				return nil, fmt.Errorf("branch pattern %q: %q has nothing to quantify", src, c)
			}
			sb.WriteRune(c)
		case '[':
			end := -1
			for j := i + 1; j < len(runes); j++ {
				if runes[j] == ']' {
					end = j
					break
				}
			}
			if end < 0 {
				return nil, fmt.Errorf("branch pattern %q: unterminated character class", src)
			}
			sb.WriteString(string(runes[i : end+1]))
			i = end
		case '.', '(', ')', '{', '}', '^', '$', '|', '\\':
			sb.WriteRune('\\')
			sb.WriteRune(c)
		default:
			sb.WriteRune(c)
		}
	}
	sb.WriteString("$")

	re, err := regexp.Compile(sb.String())
	if err != nil {
		return nil, fmt.Errorf("branch pattern %q: %w", src, err)
	}
	p.re = re
	return p, nil
}

// Match reports whether the branch name matches the pattern body, ignoring
// negation. Callers decide what a negated match means.
func (p *Pattern) Match(branch string) bool {
	return p.re.MatchString(branch)
}

// MatchBranch evaluates an ordered pattern list against a branch name.
// Positive matches include the branch, later negated matches exclude it
// again. An empty pattern list matches every branch.
func MatchBranch(patterns []string, branch string) (bool, error) {
	if len(patterns) == 0 {
		return true, nil
	}

	matched := false
	for _, src := range patterns {
		p, err := CompilePattern(src)
		if err != nil {
			return false, err
		}
		if !p.Match(branch) {
			continue
		}
		matched = !p.Negated
	}
	return matched, nil
}
