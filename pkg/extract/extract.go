// Package extract recovers structured JSON records from semi-structured
// agent output.
//
// Upstream automation agents are asked to answer with a single JSON value
// but routinely wrap it in prose, fenced code blocks, wrapper objects
// (e.g. {"done": {"data": {...}}}), or arrays of step records. The
// extractor runs an ordered cascade of shape matchers over the raw text
// and returns the first mapping that satisfies the caller's Spec, or a
// typed *Error. It never panics on malformed input.
//
// The same cascade serves every call site; callers differ only in the
// Spec they pass.
package extract

import (
	"encoding/json"
	"sort"
	"strings"
)

// Spec parameterizes the cascade for one record shape.
type Spec struct {
	// RequiredKeys must all be present, at the same level, in an accepted
	// mapping.
	RequiredKeys []string

	// ItemKey is a discriminating field shared by elements of an item
	// list (e.g. "id" for test case specifications). When the cascade
	// finds a bare list whose elements carry ItemKey, it accepts the
	// list even though no mapping holds the required keys directly.
	// Empty disables item-list matching.
	ItemKey string

	// ListKey is the key under which a bare item list is reported in the
	// returned mapping. Required when ItemKey is set.
	ListKey string
}

// Error is returned when the full cascade yields nothing.
type Error struct {
	Reason string
}

func (e *Error) Error() string {
	return "extract: " + e.Reason
}

// Extract runs the cascade over raw and returns the first mapping that
// satisfies spec.
//
// Cascade order:
//  1. whole-text JSON parse, required keys at top level
//  2. one-level search through mapping values, including the
//     wrapper-object path and item-list detection
//  3. scan of top-level array elements with one level of unwrapping
//  4. retry of 1-3 against the first-{ to last-} substring when the
//     whole text is not valid JSON
//  5. unrestricted depth-first search for the required keys
//  6. typed failure
func Extract(raw string, spec Spec) (map[string]any, error) {
	var root any
	parsed := json.Unmarshal([]byte(raw), &root) == nil

	if parsed {
		if m, ok := matchValue(root, spec); ok {
			return m, nil
		}
	}

	if !parsed {
		if sub, ok := braceSpan(raw); ok {
			var subRoot any
			if json.Unmarshal([]byte(sub), &subRoot) == nil {
				parsed = true
				root = subRoot
				if m, ok := matchValue(root, spec); ok {
					return m, nil
				}
			}
		}
	}

	if parsed {
		if m, ok := deepSearch(root, spec.RequiredKeys); ok {
			return m, nil
		}
	}

	return nil, &Error{Reason: "no value matching required keys " + strings.Join(spec.RequiredKeys, ",") + " found in agent output"}
}

// Decode re-marshals an extracted mapping into a typed value.
func Decode(m map[string]any, v any) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// matchValue applies cascade steps 1-3 to a parsed JSON value.
func matchValue(root any, spec Spec) (map[string]any, bool) {
	switch v := root.(type) {
	case map[string]any:
		if hasKeys(v, spec.RequiredKeys) {
			return v, true
		}
		return searchMapping(v, spec)
	case []any:
		return searchSequence(v, spec)
	}
	return nil, false
}

// searchMapping looks one level (plus the wrapper-object path) into a
// mapping that lacks the required keys itself. Keys are visited in
// sorted order so the first match is deterministic.
func searchMapping(m map[string]any, spec Spec) (map[string]any, bool) {
	for _, k := range sortedKeys(m) {
		switch v := m[k].(type) {
		case map[string]any:
			if hasKeys(v, spec.RequiredKeys) {
				return v, true
			}
			// Wrapper path: an object holding an inner object with the
			// required keys, e.g. {"done": {"data": {...}}}.
			for _, k2 := range sortedKeys(v) {
				if inner, ok := v[k2].(map[string]any); ok && hasKeys(inner, spec.RequiredKeys) {
					return inner, true
				}
			}
		case []any:
			if spec.ItemKey != "" && looksLikeItemList(v, spec.ItemKey) {
				return map[string]any{spec.ListKey: v}, true
			}
		}
	}
	return nil, false
}

// searchSequence scans array elements for a mapping satisfying the spec,
// unwrapping one wrapper level per element.
func searchSequence(seq []any, spec Spec) (map[string]any, bool) {
	for _, el := range seq {
		m, ok := el.(map[string]any)
		if !ok {
			continue
		}
		if hasKeys(m, spec.RequiredKeys) {
			return m, true
		}
		if found, ok := searchMapping(m, spec); ok {
			return found, true
		}
	}
	if spec.ItemKey != "" && looksLikeItemList(seq, spec.ItemKey) {
		return map[string]any{spec.ListKey: seq}, true
	}
	return nil, false
}

// deepSearch is the last-resort traversal: any mapping, at any depth,
// holding the required keys.
func deepSearch(root any, keys []string) (map[string]any, bool) {
	switch v := root.(type) {
	case map[string]any:
		if hasKeys(v, keys) {
			return v, true
		}
		for _, k := range sortedKeys(v) {
			if m, ok := deepSearch(v[k], keys); ok {
				return m, true
			}
		}
	case []any:
		for _, el := range v {
			if m, ok := deepSearch(el, keys); ok {
				return m, true
			}
		}
	}
	return nil, false
}

// braceSpan returns the substring spanning the first '{' to the last '}'.
func braceSpan(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

func hasKeys(m map[string]any, keys []string) bool {
	if len(keys) == 0 {
		return false
	}
	for _, k := range keys {
		if _, ok := m[k]; !ok {
			return false
		}
	}
	return true
}

// looksLikeItemList reports whether every element is a mapping carrying
// the discriminating item key. Empty lists do not match.
func looksLikeItemList(seq []any, itemKey string) bool {
	if len(seq) == 0 {
		return false
	}
	for _, el := range seq {
		m, ok := el.(map[string]any)
		if !ok {
			return false
		}
		if _, ok := m[itemKey]; !ok {
			return false
		}
	}
	return true
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
