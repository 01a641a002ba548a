// Package casing converts snake_case keys coming from storage rows into the
// camelCase keys the frontend expects.
package casing

import (
	"maps"
	"regexp"
	"slices"
	"strings"
)

var snakeSegment = regexp.MustCompile(`_([a-z])`)

// Camelize rewrites every "_x" in key, where x is a lowercase ASCII letter,
// to "X". Keys without such a segment are returned unchanged.
func Camelize(key string) string {
	return snakeSegment.ReplaceAllStringFunc(key, func(match string) string {
		return strings.ToUpper(match[1:])
	})
}

// CamelizeKeys returns a copy of in with every top-level key camelized.
// Values, including nested maps, are passed through untouched. A nil map
// yields an empty one.
//
// When several keys camelize to the same key, a key that is already in that
// form keeps its value; otherwise the lexicographically greatest source key
// wins. The result never depends on map iteration order.
func CamelizeKeys(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for _, key := range slices.Sorted(maps.Keys(in)) {
		camel := Camelize(key)
		if camel != key {
			if _, native := in[camel]; native {
				continue
			}
		}
		out[camel] = in[key]
	}
	return out
}
