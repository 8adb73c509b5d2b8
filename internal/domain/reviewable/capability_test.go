package reviewable

import (
	"errors"
	"testing"
)

func TestActionsUseCommonMetadataAndOverrides(t *testing.T) {
	actions := NewActions()
	actions.Add("approve")
	actions.Add("reject", WithConfirmMessage("reviewables.actions.reject.confirm"))
	actions.Add("delete_user", WithIcon("trash-alt"))

	if !actions.Has("approve") || !actions.Has("delete_user") {
		t.Fatalf("ids = %v", actions.IDs())
	}
	if actions.Has("ignore") {
		t.Fatal("ignore should not be offered")
	}

	list := actions.List()
	if list[0].Icon != "thumbs-up" || list[0].Title != "reviewables.actions.approve.title" {
		t.Fatalf("approve metadata = %+v", list[0])
	}
	if list[1].Icon != "thumbs-down" || list[1].ConfirmMessage != "reviewables.actions.reject.confirm" {
		t.Fatalf("reject metadata = %+v", list[1])
	}
	if list[2].Icon != "trash-alt" || list[2].Title != "" {
		t.Fatalf("delete_user metadata = %+v", list[2])
	}

	common, _ := CommonAction("reject")
	if common.ConfirmMessage != "" {
		t.Fatal("per-call override leaked into common action registry")
	}
}

func TestActionsAddReplacesDuplicate(t *testing.T) {
	actions := NewActions()
	actions.Add("approve")
	actions.Add("approve", WithTitle("custom"))

	if got := actions.List(); len(got) != 1 || got[0].Title != "custom" {
		t.Fatalf("actions = %+v", got)
	}

	var nilActions *Actions
	if nilActions.Has("approve") || !nilActions.Empty() {
		t.Fatal("nil actions should be empty")
	}
}

func TestEditableFieldsExactMatching(t *testing.T) {
	fields := NewEditableFields()
	fields.Add("payload", "object")
	fields.Add("category_id", "category")

	testCases := []struct {
		path string
		want bool
	}{
		{path: "payload", want: true},
		{path: "payload.raw", want: false},
		{path: "category_id", want: true},
		{path: "category", want: false},
		{path: "pay", want: false},
	}
	for _, testCase := range testCases {
		if got := fields.Has(testCase.path); got != testCase.want {
			t.Fatalf("Has(%q) = %v, want %v", testCase.path, got, testCase.want)
		}
	}
}

func TestEditableFieldsWildcard(t *testing.T) {
	fields := NewEditableFields()
	fields.AddWildcard("payload")

	if !fields.Has("payload.raw") || !fields.Has("payload.title") {
		t.Fatal("wildcard should grant direct children")
	}
	if fields.Has("payload") {
		t.Fatal("wildcard should not grant the parent itself")
	}
	if fields.Has("payload.meta.deep") {
		t.Fatal("wildcard should only grant one level")
	}
}

func TestEditableFieldsPermits(t *testing.T) {
	fields := NewEditableFields()
	fields.Add("payload.raw", "text")
	fields.Add("category_id", "category")

	if path, ok := fields.Permits(map[string]any{
		"payload":     map[string]any{"raw": "new body"},
		"category_id": 3,
	}); !ok {
		t.Fatalf("Permits() denied %q", path)
	}

	path, ok := fields.Permits(map[string]any{
		"payload": map[string]any{"raw": "x", "title": "sneaky"},
	})
	if ok || path != "payload.title" {
		t.Fatalf("Permits() = %q, %v; want payload.title denied", path, ok)
	}

	path, ok = fields.Permits(map[string]any{"unknown_field": "x"})
	if ok || path != "unknown_field" {
		t.Fatalf("Permits() = %q, %v; want unknown_field denied", path, ok)
	}
}

func TestEditableFieldsPermitsWalksNestedObjects(t *testing.T) {
	fields := NewEditableFields()
	fields.Add("payload.raw", "editor")
	fields.Add("payload.tags", "tags")

	path, ok := fields.Permits(map[string]any{
		"payload": map[string]any{"raw": map[string]any{"x": 1}},
	})
	if ok || path != "payload.raw.x" {
		t.Fatalf("Permits() = %q, %v; want payload.raw.x denied", path, ok)
	}

	if path, ok := fields.Permits(map[string]any{
		"payload": map[string]any{"tags": []any{"a", "b"}},
	}); !ok {
		t.Fatalf("Permits() denied %q for a list value", path)
	}

	fields.Add("payload.meta.x", "text")
	if path, ok := fields.Permits(map[string]any{
		"payload": map[string]any{"meta": map[string]any{"x": "ok"}},
	}); !ok {
		t.Fatalf("Permits() denied %q for a granted nested leaf", path)
	}
}

func TestGuardianVisibility(t *testing.T) {
	groupID := uint64(9)
	moderatorItem := Item{ReviewableByModerator: true}
	groupItem := Item{ReviewableByGroupID: &groupID}

	testCases := []struct {
		name  string
		actor *Actor
		item  Item
		want  bool
	}{
		{name: "anonymous", actor: nil, item: moderatorItem, want: false},
		{name: "regular user moderator item", actor: &Actor{ID: 1}, item: moderatorItem, want: false},
		{name: "moderator", actor: &Actor{ID: 1, Moderator: true}, item: moderatorItem, want: true},
		{name: "admin sees group item", actor: &Actor{ID: 1, Admin: true}, item: groupItem, want: true},
		{name: "group member", actor: &Actor{ID: 1, GroupIDs: []uint64{9}}, item: groupItem, want: true},
		{name: "other group", actor: &Actor{ID: 1, GroupIDs: []uint64{3}}, item: groupItem, want: false},
		{name: "moderator on group-only item", actor: &Actor{ID: 1, Moderator: true}, item: groupItem, want: false},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if got := NewGuardian(testCase.actor).CanSee(testCase.item); got != testCase.want {
				t.Fatalf("CanSee() = %v, want %v", got, testCase.want)
			}
		})
	}
}

func TestGuardianCanDeleteActor(t *testing.T) {
	moderator := NewGuardian(&Actor{ID: 1, Moderator: true})

	if !moderator.CanDeleteActor(&Actor{ID: 2}) {
		t.Fatal("moderator should delete regular user")
	}
	if moderator.CanDeleteActor(&Actor{ID: 3, Admin: true}) {
		t.Fatal("moderator should not delete admin")
	}
	if moderator.CanDeleteActor(&Actor{ID: 1, Moderator: true}) {
		t.Fatal("moderator should not delete self")
	}
	if NewGuardian(&Actor{ID: 4}).CanDeleteActor(&Actor{ID: 2}) {
		t.Fatal("regular user should not delete accounts")
	}
	if moderator.CanDeleteActor(nil) {
		t.Fatal("unknown target should not be deletable")
	}
}

func TestInvalidActionIsForbidden(t *testing.T) {
	err := error(&InvalidActionError{ActionID: "nuke", Kind: "flagged_post"})
	if !errors.Is(err, ErrForbidden) {
		t.Fatal("InvalidActionError should match ErrForbidden")
	}
	if err.Error() != "can't perform `nuke` on flagged_post" {
		t.Fatalf("message = %q", err.Error())
	}
}
