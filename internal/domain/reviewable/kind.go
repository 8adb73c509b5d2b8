package reviewable

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Args carries request arguments through builders and handlers.
type Args map[string]any

func (a Args) String(key string) string {
	if v, ok := a[key].(string); ok {
		return v
	}
	return ""
}

func (a Args) Bool(key string) bool {
	switch v := a[key].(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "1"
	default:
		return false
	}
}

// BuildContext is what capability builders see.
type BuildContext struct {
	Item      Item
	Guardian  Guardian
	CreatedBy *Actor
	Args      Args
}

// Kind is one concrete type of reviewable.
type Kind interface {
	Name() string
	BuildActions(actions *Actions, bc BuildContext)
	BuildEditableFields(fields *EditableFields, bc BuildContext)
	Handlers() map[string]PerformFunc
	Serialize(item Item) map[string]any
}

// Validator is implemented by kinds that check an item before it is saved by
// an edit.
type Validator interface {
	Validate(item Item) FieldErrors
}

// CreateHook is implemented by kinds that raise extra events on create.
type CreateHook interface {
	OnCreate(item Item) []Event
}

type PerformFunc func(ctx context.Context, pc *PerformContext) (*PerformResult, error)

// PerformContext is handed to a perform handler. Item is a working copy; the
// core persists payload changes made through SetPayload in the same unit of
// work as the version bump.
type PerformContext struct {
	Item        *Item
	PerformedBy Actor
	Guardian    Guardian
	Args        Args

	events       []Event
	payloadDirty bool
}

func NewPerformContext(item *Item, performedBy Actor, args Args) *PerformContext {
	if args == nil {
		args = Args{}
	}
	return &PerformContext{
		Item:        item,
		PerformedBy: performedBy,
		Guardian:    NewGuardian(&performedBy),
		Args:        args,
	}
}

func (pc *PerformContext) SetPayload(key string, value any) {
	if pc.Item.Payload == nil {
		pc.Item.Payload = Payload{}
	}
	pc.Item.Payload[key] = value
	pc.payloadDirty = true
}

func (pc *PerformContext) PayloadChanged() bool { return pc.payloadDirty }

// Emit queues an event for dispatch once the unit of work commits.
func (pc *PerformContext) Emit(name string, data map[string]any) {
	pc.events = append(pc.events, Event{
		Name:         name,
		ReviewableID: pc.Item.ID,
		Kind:         pc.Item.Kind,
		Status:       pc.Item.Status,
		Data:         data,
	})
}

func (pc *PerformContext) Events() []Event {
	return append([]Event(nil), pc.events...)
}

// PerformResult reports the business outcome of an action.
type PerformResult struct {
	ReviewableID        uint64         `json:"reviewable_id"`
	ActionID            string         `json:"action"`
	Success             bool           `json:"success"`
	TransitionTo        *Status        `json:"-"`
	Version             int64          `json:"version"`
	CreatedPostID       *uint64        `json:"created_post_id,omitempty"`
	CreatedTopicID      *uint64        `json:"created_topic_id,omitempty"`
	RemoveReviewableIDs []uint64       `json:"remove_reviewable_ids,omitempty"`
	Errors              []string       `json:"errors,omitempty"`
	Data                map[string]any `json:"data,omitempty"`
}

// Succeeded builds a successful result that requests a transition.
func Succeeded(status Status) *PerformResult {
	return &PerformResult{Success: true, TransitionTo: &status}
}

func Failed(messages ...string) *PerformResult {
	return &PerformResult{Success: false, Errors: messages}
}

// Registry maps kind names to their behaviour.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]Kind
}

func NewRegistry(kinds ...Kind) (*Registry, error) {
	r := &Registry{kinds: make(map[string]Kind, len(kinds))}
	for _, kind := range kinds {
		if err := r.Register(kind); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(kind Kind) error {
	if kind == nil || kind.Name() == "" {
		return fmt.Errorf("%w: empty kind", ErrUnknownKind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.kinds[kind.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateKind, kind.Name())
	}
	r.kinds[kind.Name()] = kind
	return nil
}

// MustRegister is Register for wiring code where a failure is a programming error.
func (r *Registry) MustRegister(kind Kind) {
	if err := r.Register(kind); err != nil {
		panic(err)
	}
}

func (r *Registry) Lookup(name string) (Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kind, ok := r.kinds[name]
	return kind, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.kinds))
	for name := range r.kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BaseSerialize is the default wire shape shared by kinds.
func BaseSerialize(item Item) map[string]any {
	out := map[string]any{
		"id":                      item.ID,
		"type":                    item.Kind,
		"status":                  int(item.Status),
		"status_name":             item.Status.String(),
		"created_by_id":           item.CreatedByID,
		"reviewable_by_moderator": item.ReviewableByModerator,
		"score":                   item.Score,
		"version":                 item.Version,
		"payload":                 item.Payload.Clone(),
		"created_at":              item.CreatedAt,
	}
	if item.Target != nil {
		out["target_type"] = item.Target.Type
		out["target_id"] = item.Target.ID
	}
	if item.TargetCreatedByID != nil {
		out["target_created_by_id"] = *item.TargetCreatedByID
	}
	if item.ReviewableByGroupID != nil {
		out["reviewable_by_group_id"] = *item.ReviewableByGroupID
	}
	if item.CategoryID != nil {
		out["category_id"] = *item.CategoryID
	}
	if item.TopicID != nil {
		out["topic_id"] = *item.TopicID
	}
	return out
}
