// Package pathrewrite translates inbound request paths into the paths
// served by the legacy dispatcher.
package pathrewrite

import (
	"fmt"
	"regexp"
)

const (
	// DefaultFrom matches any path containing an /api/ segment.
	DefaultFrom = "/api/"
	// DefaultTo replaces the matched segment.
	DefaultTo = "/_api/"
)

var defaultMatch = regexp.MustCompile(DefaultFrom)

// Rule pairs a match pattern with a replacement template.
//
// Rules are built once at startup and shared by every request. Changing a
// Rule while requests are being served is undefined behavior.
type Rule struct {
	// Match is tested against the original request path.
	Match *regexp.Regexp
	// Replacement may reference submatches as $1 or ${name}. A reference
	// takes the longest run of letters, digits and underscores, so $1x names
	// the group "1x"; write ${1}x for group 1 followed by x. An empty
	// Replacement deletes the match.
	Replacement string
}

// DefaultRule rewrites the first /api/ segment of a path to /_api/.
func DefaultRule() Rule {
	return Rule{Match: defaultMatch, Replacement: DefaultTo}
}

// ParseRule compiles a rule. An empty from takes the default rule, with to
// replacing DefaultTo when set. With from set, to is used as given: an
// empty to deletes the match, so ("^", "") forwards the path unchanged.
func ParseRule(from, to string) (Rule, error) {
	rule := DefaultRule()
	if from == "" {
		if to != "" {
			rule.Replacement = to
		}
		return rule, nil
	}

	re, err := regexp.Compile(from)
	if err != nil {
		return Rule{}, fmt.Errorf("invalid forward pattern %q: %w", from, err)
	}
	return Rule{Match: re, Replacement: to}, nil
}

// MustParseRule is like ParseRule but panics on an invalid pattern.
func MustParseRule(from, to string) Rule {
	rule, err := ParseRule(from, to)
	if err != nil {
		panic(err)
	}
	return rule
}

// String returns the rule as "pattern -> replacement".
func (r Rule) String() string {
	if r.Match == nil {
		return "<nil> -> " + r.Replacement
	}
	return r.Match.String() + " -> " + r.Replacement
}

// Translate replaces the first match of rule.Match in path with the
// expanded replacement. It reports false when the rule does not apply.
func Translate(path string, rule Rule) (string, bool) {
	if rule.Match == nil {
		return "", false
	}

	loc := rule.Match.FindStringSubmatchIndex(path)
	if loc == nil {
		return "", false
	}

	dst := rule.Match.ExpandString(nil, rule.Replacement, path, loc)

	out := make([]byte, 0, len(path)-(loc[1]-loc[0])+len(dst))
	out = append(out, path[:loc[0]]...)
	out = append(out, dst...)
	out = append(out, path[loc[1]:]...)
	return string(out), true
}
