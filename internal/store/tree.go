package store

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Split parses a slash-separated path. The empty path addresses the root.
func Split(path string) ([]string, error) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil, nil
	}
	segs := strings.Split(trimmed, "/")
	for _, seg := range segs {
		if seg == "" || strings.ContainsAny(seg, ".#$[]") {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return segs, nil
}

// Join builds a path from segments.
func Join(segs ...string) string {
	return strings.Join(segs, "/")
}

// Normalize converts any JSON-encodable value into the generic tree form
// (maps, slices, float64, string, bool, nil), pruning empty objects.
func Normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	var data []byte
	switch raw := v.(type) {
	case json.RawMessage:
		data = raw
	case []byte:
		data = raw
	default:
		var err error
		data, err = json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode value: %w", err)
		}
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return prune(out), nil
}

// Lookup returns the node at segs.
func Lookup(root any, segs []string) (any, bool) {
	node := root
	for _, seg := range segs {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		node, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	if node == nil {
		return nil, false
	}
	return node, true
}

// Put stores value (already normalized) at segs and returns the new root.
// A nil value deletes; parents left empty are removed.
func Put(root any, segs []string, value any) any {
	if len(segs) == 0 {
		return value
	}
	m, _ := root.(map[string]any)
	if m == nil {
		m = make(map[string]any)
	}
	child := Put(m[segs[0]], segs[1:], value)
	if child == nil {
		delete(m, segs[0])
	} else {
		m[segs[0]] = child
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

// Merge overwrites each named child of segs. Field names may themselves be relative paths.
// Nothing is applied unless every field is valid.
func Merge(root any, segs []string, fields map[string]any) (any, [][]string, error) {
	type entry struct {
		path  []string
		value any
	}
	entries := make([]entry, 0, len(fields))
	for name, raw := range fields {
		rel, err := Split(name)
		if err != nil {
			return root, nil, err
		}
		if len(rel) == 0 {
			return root, nil, fmt.Errorf("%w: empty field name", ErrInvalidPath)
		}
		value, err := Normalize(raw)
		if err != nil {
			return root, nil, err
		}
		full := append(append(make([]string, 0, len(segs)+len(rel)), segs...), rel...)
		entries = append(entries, entry{path: full, value: value})
	}

	changed := make([][]string, 0, len(entries))
	for _, e := range entries {
		root = Put(root, e.path, e.value)
		changed = append(changed, e.path)
	}
	return root, changed, nil
}

// Encode renders a node as JSON; absent nodes report false.
func Encode(node any) (json.RawMessage, bool) {
	if node == nil {
		return nil, false
	}
	data, err := json.Marshal(node)
	if err != nil {
		return nil, false
	}
	return data, true
}

// Related reports whether a change at changed is visible from watched.
func Related(watched, changed []string) bool {
	n := len(watched)
	if len(changed) < n {
		n = len(changed)
	}
	for i := 0; i < n; i++ {
		if watched[i] != changed[i] {
			return false
		}
	}
	return true
}

func prune(node any) any {
	m, ok := node.(map[string]any)
	if !ok {
		return node
	}
	for k, v := range m {
		v = prune(v)
		if v == nil {
			delete(m, k)
			continue
		}
		m[k] = v
	}
	if len(m) == 0 {
		return nil
	}
	return m
}
