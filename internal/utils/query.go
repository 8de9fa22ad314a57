// Package utils holds small parsing helpers shared by HTTP handlers.
package utils

import (
	"strconv"
	"strings"
)

// IntParam parses an optional integer query value. An empty or all-blank
// value yields def; anything else must be a base-10 integer.
func IntParam(s string, def int) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}

// ListParam flattens repeated and comma-separated query values, so
// ?tags=a&tags=b,c yields [a b c]. Items are trimmed, blanks dropped and
// input order kept. The result is nil when nothing remains.
func ListParam(values []string) []string {
	var out []string
	for _, v := range values {
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}
