// Package tagset implements product tags as an order-irrelevant unique set.
//
// Tags are normalized (trimmed, lower-cased) before comparison and always
// returned sorted, so two sets with the same members compare equal.
package tagset

import (
	"fmt"
	"slices"
	"strings"
)

// Method selects how a tag list is combined with a product's current tags.
type Method string

const (
	MethodAdd     Method = "add_tags"
	MethodRemove  Method = "remove_tags"
	MethodReplace Method = "replace_tags"
)

// IsValid reports whether m is a supported tag method.
func (m Method) IsValid() bool {
	switch m {
	case MethodAdd, MethodRemove, MethodReplace:
		return true
	}
	return false
}

// Normalize trims, lower-cases, de-duplicates and sorts tags. Blank tags are dropped.
func Normalize(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	slices.Sort(out)
	return out
}

// Add returns the union of current and tags.
func Add(current, tags []string) []string {
	merged := make([]string, 0, len(current)+len(tags))
	merged = append(merged, current...)
	merged = append(merged, tags...)
	return Normalize(merged)
}

// Remove returns current without any member of tags.
func Remove(current, tags []string) []string {
	drop := make(map[string]struct{}, len(tags))
	for _, tag := range Normalize(tags) {
		drop[tag] = struct{}{}
	}
	out := make([]string, 0, len(current))
	for _, tag := range Normalize(current) {
		if _, ok := drop[tag]; !ok {
			out = append(out, tag)
		}
	}
	return out
}

// Replace returns tags as the new set, discarding current.
func Replace(_, tags []string) []string {
	return Normalize(tags)
}

// Apply dispatches to Add, Remove or Replace.
func Apply(method Method, current, tags []string) ([]string, error) {
	switch method {
	case MethodAdd:
		return Add(current, tags), nil
	case MethodRemove:
		return Remove(current, tags), nil
	case MethodReplace:
		return Replace(current, tags), nil
	default:
		return nil, fmt.Errorf("unknown tag method %q", method)
	}
}

// Equal reports whether a and b contain the same tags.
func Equal(a, b []string) bool {
	return slices.Equal(Normalize(a), Normalize(b))
}
