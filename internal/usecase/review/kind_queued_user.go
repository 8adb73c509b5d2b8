package review

import (
	"context"
	"errors"

	"modqueue/internal/domain/reviewable"
	"modqueue/internal/errs"
	"modqueue/internal/ports"
)

// QueuedUserKind reviews a new account awaiting approval. The account is the
// target, or the creator when no target is set.
type QueuedUserKind struct {
	approver  ports.ActorApprover
	destroyer ports.ActorDestroyer
}

func NewQueuedUserKind(approver ports.ActorApprover, destroyer ports.ActorDestroyer) QueuedUserKind {
	return QueuedUserKind{approver: approver, destroyer: destroyer}
}

func (QueuedUserKind) Name() string { return KindQueuedUser }

func (QueuedUserKind) BuildActions(actions *reviewable.Actions, bc reviewable.BuildContext) {
	if !bc.Item.Status.IsPending() || !bc.Guardian.IsStaff() {
		return
	}
	actions.Add("approve")
	actions.Add("reject", reviewable.WithConfirmMessage("reviewables.actions.reject_user.confirm"))
}

func (QueuedUserKind) BuildEditableFields(*reviewable.EditableFields, reviewable.BuildContext) {}

func (k QueuedUserKind) Handlers() map[string]reviewable.PerformFunc {
	return map[string]reviewable.PerformFunc{
		"approve": k.performApprove,
		"reject":  k.performReject,
	}
}

func (k QueuedUserKind) performApprove(ctx context.Context, pc *reviewable.PerformContext) (*reviewable.PerformResult, error) {
	if k.approver == nil {
		return nil, errors.New("actor approver is required")
	}
	userID := queuedUserID(*pc.Item)
	if err := k.approver.ApproveActor(ctx, userID, pc.PerformedBy.ID); err != nil {
		return nil, errs.Wrap(err, "approve queued user")
	}
	pc.Emit("approved_user", map[string]any{"user_id": userID})
	return reviewable.Succeeded(reviewable.StatusApproved), nil
}

func (k QueuedUserKind) performReject(ctx context.Context, pc *reviewable.PerformContext) (*reviewable.PerformResult, error) {
	if k.destroyer == nil {
		return nil, errors.New("actor destroyer is required")
	}
	userID := queuedUserID(*pc.Item)
	err := k.destroyer.DestroyActor(ctx, userID, ports.DestroyActorOptions{
		PerformedByID:   pc.PerformedBy.ID,
		Context:         "review queue",
		DeleteAsSpammer: pc.Args.Bool("delete_as_spammer"),
	})
	if err != nil && !errors.Is(err, reviewable.ErrActorNotFound) {
		return nil, errs.Wrap(err, "destroy queued user")
	}
	pc.Emit("rejected_user", map[string]any{"user_id": userID})
	return reviewable.Succeeded(reviewable.StatusRejected), nil
}

func (QueuedUserKind) Serialize(item reviewable.Item) map[string]any {
	out := reviewable.BaseSerialize(item)
	out["user_id"] = queuedUserID(item)
	if username := item.Payload.String("username"); username != "" {
		out["username"] = username
	}
	return out
}

func queuedUserID(item reviewable.Item) uint64 {
	if item.Target != nil && item.Target.Type == TargetTypeUser {
		return item.Target.ID
	}
	return item.CreatedByID
}
