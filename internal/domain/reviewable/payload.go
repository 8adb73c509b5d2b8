package reviewable

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Payload is the open document carried by a reviewable.
type Payload map[string]any

func (p Payload) Clone() Payload {
	if p == nil {
		return Payload{}
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func (p Payload) String(key string) string {
	switch v := p[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Uint64 reads a numeric payload value, tolerating JSON float64 and strings.
func (p Payload) Uint64(key string) (uint64, bool) {
	id, err := toID(p[key])
	if err != nil || id == nil {
		return 0, false
	}
	return *id, true
}

func (p Payload) Strings(key string) []string {
	switch v := p[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		return []string{v}
	default:
		return nil
	}
}

// Change records one edited path.
type Change struct {
	From any `json:"from"`
	To   any `json:"to"`
}

// Changes maps edited paths ("payload.raw", "category_id") to their change.
type Changes map[string]Change

// ApplyEdit merges edit params into item: nested "payload" keys are merged one
// by one, top-level category_id/topic_id are replaced. Values equal to the
// current ones are not reported as changes.
func ApplyEdit(item *Item, params map[string]any) (Changes, error) {
	changes := Changes{}
	invalid := FieldErrors{}

	for name, value := range params {
		switch name {
		case "payload":
			fields, ok := value.(map[string]any)
			if !ok {
				invalid.Add("payload", "must be an object")
				continue
			}
			if item.Payload == nil {
				item.Payload = Payload{}
			}
			for key, next := range fields {
				prev, existed := item.Payload[key]
				if existed && reflect.DeepEqual(prev, next) {
					continue
				}
				item.Payload[key] = next
				changes["payload."+key] = Change{From: prev, To: next}
			}
		case "category_id", "topic_id":
			next, err := toID(value)
			if err != nil {
				invalid.Add(name, "must be a positive integer")
				continue
			}
			target := &item.CategoryID
			if name == "topic_id" {
				target = &item.TopicID
			}
			if equalIDs(*target, next) {
				continue
			}
			changes[name] = Change{From: idValue(*target), To: idValue(next)}
			*target = next
		default:
			invalid.Add(name, "is not a known field")
		}
	}

	if !invalid.Empty() {
		return nil, &ValidationError{Fields: invalid}
	}
	return changes, nil
}

func toID(value any) (*uint64, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case uint64:
		return &v, nil
	case int:
		if v < 0 {
			return nil, fmt.Errorf("negative id %d", v)
		}
		id := uint64(v)
		return &id, nil
	case int64:
		if v < 0 {
			return nil, fmt.Errorf("negative id %d", v)
		}
		id := uint64(v)
		return &id, nil
	case float64:
		if v < 0 || v != float64(uint64(v)) {
			return nil, fmt.Errorf("invalid id %v", v)
		}
		id := uint64(v)
		return &id, nil
	case json.Number:
		return toID(v.String())
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return nil, nil
		}
		id, err := strconv.ParseUint(trimmed, 10, 64)
		if err != nil {
			return nil, err
		}
		return &id, nil
	default:
		return nil, fmt.Errorf("unsupported id type %T", value)
	}
}

func equalIDs(a, b *uint64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func idValue(id *uint64) any {
	if id == nil {
		return nil
	}
	return *id
}
