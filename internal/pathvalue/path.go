// Package pathvalue implements dotted/indexed path access over a decoded
// JSON value tree (the interface{} shapes produced by encoding/json:
// map[string]interface{}, []interface{}, string, json.Number, bool, nil).
//
// It backs RecordEngine's get(path)/set(path, value) operations (spec.md
// §4.9 "Path semantics"). JSON *parsing* itself remains an external
// concern (spec.md §1); this package only walks an already-decoded tree.
package pathvalue

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Segment is one step of a parsed path: either a map key or an array index.
type Segment struct {
	Key     string
	Index   int
	IsIndex bool
}

// Parse splits a path like "a.b[2].c" into segments. An empty path parses
// to a nil slice, meaning "the whole document".
func Parse(path string) ([]Segment, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}

	var segs []Segment
	for _, dotPart := range strings.Split(path, ".") {
		if dotPart == "" {
			return nil, fmt.Errorf("pathvalue: empty segment in %q", path)
		}
		key, indices, err := splitIndices(dotPart)
		if err != nil {
			return nil, err
		}
		if key != "" {
			segs = append(segs, Segment{Key: norm.NFC.String(key)})
		}
		for _, idx := range indices {
			segs = append(segs, Segment{Index: idx, IsIndex: true})
		}
	}
	return segs, nil
}

// splitIndices splits "name[1][2]" into ("name", [1,2]).
func splitIndices(part string) (string, []int, error) {
	br := strings.IndexByte(part, '[')
	if br < 0 {
		return part, nil, nil
	}
	key := part[:br]
	rest := part[br:]

	var indices []int
	for len(rest) > 0 {
		if rest[0] != '[' {
			return "", nil, fmt.Errorf("pathvalue: malformed index in %q", part)
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return "", nil, fmt.Errorf("pathvalue: unterminated index in %q", part)
		}
		n, err := strconv.Atoi(rest[1:end])
		if err != nil {
			return "", nil, fmt.Errorf("pathvalue: bad index in %q: %w", part, err)
		}
		indices = append(indices, n)
		rest = rest[end+1:]
	}
	return key, indices, nil
}

// Get walks segs over doc and returns the value found there, or (nil,
// false) if the path does not resolve.
func Get(doc interface{}, segs []Segment) (interface{}, bool) {
	cur := doc
	for _, s := range segs {
		if s.IsIndex {
			arr, ok := cur.([]interface{})
			if !ok || s.Index < 0 || s.Index >= len(arr) {
				return nil, false
			}
			cur = arr[s.Index]
			continue
		}
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = obj[s.Key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Set walks segs over doc, creating intermediate objects/arrays as
// needed, and returns the new root document with value placed at the
// path. doc is never mutated in place; a deep-enough copy is made along
// the path being modified.
func Set(doc interface{}, segs []Segment, value interface{}) (interface{}, error) {
	if len(segs) == 0 {
		return value, nil
	}
	return setRec(doc, segs, value)
}

func setRec(cur interface{}, segs []Segment, value interface{}) (interface{}, error) {
	if len(segs) == 0 {
		return value, nil
	}
	head, tail := segs[0], segs[1:]

	if head.IsIndex {
		var arr []interface{}
		if existing, ok := cur.([]interface{}); ok {
			arr = append([]interface{}{}, existing...)
		}
		for len(arr) <= head.Index {
			arr = append(arr, nil)
		}
		child, err := setRec(arr[head.Index], tail, value)
		if err != nil {
			return nil, err
		}
		arr[head.Index] = child
		return arr, nil
	}

	obj := map[string]interface{}{}
	if existing, ok := cur.(map[string]interface{}); ok {
		for k, v := range existing {
			obj[k] = v
		}
	}
	child, err := setRec(obj[head.Key], tail, value)
	if err != nil {
		return nil, err
	}
	obj[head.Key] = child
	return obj, nil
}

// Delete removes the value at segs from doc, returning the new root. A
// no-op if the path does not resolve.
func Delete(doc interface{}, segs []Segment) interface{} {
	if len(segs) == 0 {
		return nil
	}
	return deleteRec(doc, segs)
}

func deleteRec(cur interface{}, segs []Segment) interface{} {
	head, tail := segs[0], segs[1:]

	if head.IsIndex {
		arr, ok := cur.([]interface{})
		if !ok || head.Index < 0 || head.Index >= len(arr) {
			return cur
		}
		out := append([]interface{}{}, arr...)
		if len(tail) == 0 {
			return append(out[:head.Index], out[head.Index+1:]...)
		}
		out[head.Index] = deleteRec(out[head.Index], tail)
		return out
	}

	obj, ok := cur.(map[string]interface{})
	if !ok {
		return cur
	}
	out := map[string]interface{}{}
	for k, v := range obj {
		out[k] = v
	}
	if len(tail) == 0 {
		delete(out, head.Key)
		return out
	}
	if child, ok := out[head.Key]; ok {
		out[head.Key] = deleteRec(child, tail)
	}
	return out
}
