// Package filter decides which branches are excluded from notifications.
package filter

import "strings"

const wildcard = "*"

// Rule suppresses notifications for branches matching Pattern.
// When Repository is set the rule only applies to that "owner/repo".
type Rule struct {
	Repository string
	Pattern    string
}

// ParseRules parses a comma-separated block-list such as
// "gh-pages, release/*, org/repo:main". Empty entries are ignored.
func ParseRules(list string) []Rule {
	var rules []Rule
	for _, raw := range strings.Split(list, ",") {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		// git forbids ':' in branch names, so the last colon separates the scope.
		if i := strings.LastIndex(entry, ":"); i >= 0 {
			scope := strings.TrimSpace(entry[:i])
			pattern := strings.TrimSpace(entry[i+1:])
			if pattern == "" {
				continue
			}
			rules = append(rules, Rule{Repository: scope, Pattern: pattern})
			continue
		}
		rules = append(rules, Rule{Pattern: entry})
	}
	return rules
}

// Matches reports whether the rule blocks branch in repository.
func (r Rule) Matches(repository, branch string) bool {
	if r.Repository != "" && r.Repository != repository {
		return false
	}
	return matchPattern(r.Pattern, branch)
}

func (r Rule) String() string {
	if r.Repository == "" {
		return r.Pattern
	}
	return r.Repository + ":" + r.Pattern
}

// IsBlocked reports whether any rule matches. An empty rule set blocks nothing.
func IsBlocked(repository, branch string, rules []Rule) bool {
	for _, r := range rules {
		if r.Matches(repository, branch) {
			return true
		}
	}
	return false
}

// matchPattern supports a single trailing wildcard only; any other '*' is literal.
func matchPattern(pattern, branch string) bool {
	if prefix, ok := strings.CutSuffix(pattern, wildcard); ok {
		return strings.HasPrefix(branch, prefix)
	}
	return pattern == branch
}
