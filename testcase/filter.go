package testcase

import (
	"regexp"
	"strings"
)

// Filter selects cases by include/exclude wildcard patterns. A case
// survives when it matches at least one include pattern (or no include
// patterns are configured) and matches no exclude pattern.
type Filter struct {
	include []*regexp.Regexp
	exclude []*regexp.Regexp
}

// NewFilter compiles the given patterns into a filter.
func NewFilter(include, exclude []string) *Filter {
	return &Filter{
		include: compilePatterns(include),
		exclude: compilePatterns(exclude),
	}
}

// Match reports whether a case with the given id and title survives
// filtering. Each pattern is tried against the id first, then the title.
// Matching is case-sensitive.
func (f *Filter) Match(id, title string) bool {
	if len(f.include) > 0 {
		included := false
		for _, p := range f.include {
			if p.MatchString(id) || p.MatchString(title) {
				included = true
				break
			}
		}
		if !included {
			return false
		}
	}

	for _, p := range f.exclude {
		if p.MatchString(id) || p.MatchString(title) {
			return false
		}
	}

	return true
}

// Apply drops skipped cases, then pattern-filters the rest. Skip is
// absolute: patterns are never consulted for a skipped case.
func (f *Filter) Apply(cases []Descriptor) []Descriptor {
	kept := make([]Descriptor, 0, len(cases))
	for _, c := range cases {
		if c.Skip {
			continue
		}
		if f.Match(c.ID, c.Title) {
			kept = append(kept, c)
		}
	}
	return kept
}

func compilePatterns(patterns []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(translatePattern(p)))
	}
	return compiled
}

// translatePattern converts a `*` wildcard pattern into an anchored regexp.
// Unlike filepath.Match, `*` crosses `/` since case titles are hierarchical.
func translatePattern(pattern string) string {
	parts := strings.Split(pattern, "*")
	escaped := make([]string, len(parts))
	for i, part := range parts {
		escaped[i] = regexp.QuoteMeta(part)
	}
	return "^" + strings.Join(escaped, ".*") + "$"
}
