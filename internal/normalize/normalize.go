// Package normalize holds the canonical forms used for tag names, locales
// and comma-separated option lists. Every component that compares or hashes
// tags goes through here so that " Web", "WEB" and "web" are one tag.
package normalize

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Fold trims s and lower-cases it.
func Fold(s string) string {
	return Lower(strings.TrimSpace(s))
}

// Lower lower-cases s with full Unicode case mapping. A Caser is not safe
// for concurrent use, so one is built per call.
func Lower(s string) string {
	return cases.Lower(language.Und).String(s)
}

// Locale returns the canonical form of a locale code.
func Locale(s string) string { return Fold(s) }

// Tags returns the canonical tag set: folded, empty names dropped,
// deduplicated and sorted ascending. The result is never nil.
func Tags(names []string) []string {
	out := Unique(names)
	sort.Strings(out)
	return out
}

// Unique folds every name, drops empties and duplicates, and keeps the
// first-seen order.
func Unique(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		f := Fold(n)
		if f == "" {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// CSV splits a comma-separated option value and returns its unique folded
// items in input order.
func CSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return []string{}
	}
	return Unique(strings.Split(s, ","))
}
