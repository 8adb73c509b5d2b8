package review

import (
	"context"

	"modqueue/internal/domain/reviewable"
)

// FlaggedPostKind reviews an existing post that users flagged. Its actions
// only decide the item; nothing happens to the post itself.
type FlaggedPostKind struct{}

func NewFlaggedPostKind() FlaggedPostKind { return FlaggedPostKind{} }

func (FlaggedPostKind) Name() string { return KindFlaggedPost }

func (FlaggedPostKind) BuildActions(actions *reviewable.Actions, bc reviewable.BuildContext) {
	if !bc.Item.Status.IsPending() {
		return
	}
	actions.Add("approve")
	actions.Add("reject")
}

func (FlaggedPostKind) BuildEditableFields(*reviewable.EditableFields, reviewable.BuildContext) {}

func (FlaggedPostKind) Handlers() map[string]reviewable.PerformFunc {
	return map[string]reviewable.PerformFunc{
		"approve": func(context.Context, *reviewable.PerformContext) (*reviewable.PerformResult, error) {
			return reviewable.Succeeded(reviewable.StatusApproved), nil
		},
		"reject": func(context.Context, *reviewable.PerformContext) (*reviewable.PerformResult, error) {
			return reviewable.Succeeded(reviewable.StatusRejected), nil
		},
	}
}

func (FlaggedPostKind) Serialize(item reviewable.Item) map[string]any {
	out := reviewable.BaseSerialize(item)
	if item.Target != nil && item.Target.Type == TargetTypePost {
		out["post_id"] = item.Target.ID
	}
	return out
}
