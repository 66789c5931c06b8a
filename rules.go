// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/img

package img

import (
	"fmt"
	"path"
	"strings"

	"github.com/woozymasta/pathrules"
)

// typeMatcher holds compiled allow-list rules for entry types and file extensions.
type typeMatcher struct {
	matcher *pathrules.Matcher
	// spanning holds requested types whose extension crosses a path separator ("V2/FILE").
	spanning map[string]struct{}
	// unknown accepts names without extension ("UNKNOWN" type).
	unknown bool
}

// newTypeMatcher compiles type filters like "DFF", ".txd" or "col" into extension rules.
// An empty list yields a nil matcher that accepts every name.
func newTypeMatcher(types []string) (*typeMatcher, error) {
	rules := typeRules(types)
	m := &typeMatcher{}
	for _, raw := range types {
		t := normalizeType(raw)
		switch {
		case t == unknownType:
			m.unknown = true
		case hasPathSeparator(t):
			if m.spanning == nil {
				m.spanning = make(map[string]struct{})
			}
			m.spanning[t] = struct{}{}
		}
	}
	if len(rules) == 0 && !m.unknown && len(m.spanning) == 0 {
		return nil, nil
	}
	if len(rules) == 0 {
		return m, nil
	}

	matcher, err := pathrules.NewMatcher(rules, pathrules.MatcherOptions{
		CaseInsensitive: true,
		DefaultAction:   pathrules.ActionExclude,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: compile type rules: %w", ErrInvalidArgument, err)
	}

	m.matcher = matcher
	return m, nil
}

// typeRules converts type names into "*.ext" include rules and drops empty values.
func typeRules(types []string) []pathrules.Rule {
	rules := make([]pathrules.Rule, 0, len(types))
	seen := make(map[string]struct{}, len(types))
	for _, raw := range types {
		t := normalizeType(raw)
		if t == "" || t == unknownType || hasPathSeparator(t) {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}

		seen[t] = struct{}{}
		rules = append(rules, pathrules.Rule{
			Action:  pathrules.ActionInclude,
			Pattern: "*." + t,
		})
	}

	return rules
}

// Match reports whether name passes the type filter. A nil matcher accepts everything.
// The type is derived exactly as Entry.Type does, from the text after the last dot of the full name.
func (m *typeMatcher) Match(name string) bool {
	if m == nil {
		return true
	}

	t := entryType(name)
	switch {
	case t == unknownType:
		return m.unknown
	case hasPathSeparator(t):
		_, ok := m.spanning[t]
		return ok
	case m.matcher == nil:
		return false
	}

	// The last dot lies in the final segment, so the base name carries the same extension.
	return m.matcher.Included(path.Base(NormalizePath(name)), false)
}

// hasPathSeparator reports whether s contains a slash or backslash.
func hasPathSeparator(s string) bool {
	return strings.ContainsAny(s, `/\`)
}
