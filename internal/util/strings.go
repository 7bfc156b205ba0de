package util

import "strings"

// DefaultString returns the fallback value if v is empty or consists entirely
// of whitespace; otherwise it returns v unchanged.
//
// Examples:
//
//	DefaultString("hello", "world")  → "hello"
//	DefaultString("",      "world")  → "world"
//	DefaultString("  ",    "world")  → "world"
func DefaultString(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

// UniqueOrdered trims each value, drops blanks, and removes repeats while
// keeping the first-seen order.
//
//	UniqueOrdered([]string{"a", " b", "a", "", "c"}) → ["a" "b" "c"]
func UniqueOrdered(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
