package reviewable

// Action describes one operation an actor may perform on a reviewable.
type Action struct {
	ID             string `json:"id"`
	Icon           string `json:"icon,omitempty"`
	Title          string `json:"title,omitempty"`
	ConfirmMessage string `json:"confirm_message,omitempty"`
}

type ActionOption func(*Action)

func WithConfirmMessage(message string) ActionOption {
	return func(a *Action) { a.ConfirmMessage = message }
}

func WithIcon(icon string) ActionOption {
	return func(a *Action) { a.Icon = icon }
}

func WithTitle(title string) ActionOption {
	return func(a *Action) { a.Title = title }
}

var commonActions = map[string]Action{
	"approve": {ID: "approve", Icon: "thumbs-up", Title: "reviewables.actions.approve.title"},
	"reject":  {ID: "reject", Icon: "thumbs-down", Title: "reviewables.actions.reject.title"},
}

// CommonAction returns the shared metadata for approve/reject.
func CommonAction(id string) (Action, bool) {
	action, ok := commonActions[id]
	return action, ok
}

// Actions is the per-request set of actions an actor may perform.
type Actions struct {
	items []Action
	index map[string]int
}

func NewActions() *Actions {
	return &Actions{index: make(map[string]int)}
}

// Add offers id, starting from the common metadata when there is some.
// Adding an id twice replaces the earlier entry.
func (a *Actions) Add(id string, opts ...ActionOption) {
	action, ok := CommonAction(id)
	if !ok {
		action = Action{ID: id}
	}
	for _, opt := range opts {
		opt(&action)
	}

	if idx, exists := a.index[id]; exists {
		a.items[idx] = action
		return
	}
	a.index[id] = len(a.items)
	a.items = append(a.items, action)
}

func (a *Actions) Has(id string) bool {
	if a == nil {
		return false
	}
	_, ok := a.index[id]
	return ok
}

func (a *Actions) List() []Action {
	if a == nil {
		return nil
	}
	return append([]Action(nil), a.items...)
}

func (a *Actions) IDs() []string {
	if a == nil {
		return nil
	}
	ids := make([]string, 0, len(a.items))
	for _, action := range a.items {
		ids = append(ids, action.ID)
	}
	return ids
}

func (a *Actions) Empty() bool { return a == nil || len(a.items) == 0 }
