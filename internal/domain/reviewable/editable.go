package reviewable

import (
	"sort"
	"strings"
)

// EditableField is one dotted path an actor may change.
type EditableField struct {
	Path string `json:"id"`
	Type string `json:"type"`
}

// EditableFields is the per-request set of editable paths. Matching is exact:
// a grant for "payload" does not cover "payload.raw". AddWildcard("payload")
// grants every direct child ("payload.*") explicitly.
type EditableFields struct {
	fields    []EditableField
	index     map[string]int
	wildcards map[string]struct{}
}

func NewEditableFields() *EditableFields {
	return &EditableFields{
		index:     make(map[string]int),
		wildcards: make(map[string]struct{}),
	}
}

func (f *EditableFields) Add(path string, fieldType string) {
	path = strings.TrimSpace(path)
	if path == "" {
		return
	}
	field := EditableField{Path: path, Type: fieldType}
	if idx, ok := f.index[path]; ok {
		f.fields[idx] = field
		return
	}
	f.index[path] = len(f.fields)
	f.fields = append(f.fields, field)
}

func (f *EditableFields) AddWildcard(prefix string) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return
	}
	f.wildcards[prefix] = struct{}{}
	f.Add(prefix+".*", "wildcard")
}

func (f *EditableFields) Has(path string) bool {
	if f == nil {
		return false
	}
	if _, ok := f.index[path]; ok {
		return true
	}

	idx := strings.LastIndex(path, ".")
	if idx <= 0 || idx == len(path)-1 {
		return false
	}
	_, ok := f.wildcards[path[:idx]]
	return ok
}

// Permits checks every path an edit would touch. Nested objects are walked
// down to their leaves, so {"payload": {"raw": {"x": 1}}} needs
// "payload.raw.x"; the first denied path is returned.
func (f *EditableFields) Permits(params map[string]any) (string, bool) {
	return f.permits("", params)
}

func (f *EditableFields) permits(prefix string, params map[string]any) (string, bool) {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		if nested, ok := params[name].(map[string]any); ok {
			if denied, ok := f.permits(path, nested); !ok {
				return denied, false
			}
			continue
		}
		if !f.Has(path) {
			return path, false
		}
	}
	return "", true
}

func (f *EditableFields) List() []EditableField {
	if f == nil {
		return nil
	}
	return append([]EditableField(nil), f.fields...)
}

func (f *EditableFields) Empty() bool { return f == nil || len(f.fields) == 0 }
