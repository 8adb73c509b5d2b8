package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"modqueue/internal/domain/reviewable"
	"modqueue/internal/errs"
	"modqueue/internal/ports"
)

// QueuedPostKind holds a post that has not been created yet. Approving it
// creates the post from the payload.
type QueuedPostKind struct {
	content       ports.ContentCreator
	destroyer     ports.ActorDestroyer
	reviews       ports.ReviewableReadRepository
	minPostLength int
}

const maxDerivedTitleLength = 80

var (
	_ reviewable.Validator  = QueuedPostKind{}
	_ reviewable.CreateHook = QueuedPostKind{}
)

func NewQueuedPostKind(content ports.ContentCreator, destroyer ports.ActorDestroyer, reviews ports.ReviewableReadRepository, minPostLength int) QueuedPostKind {
	if minPostLength <= 0 {
		minPostLength = DefaultMinPostLength
	}
	return QueuedPostKind{
		content:       content,
		destroyer:     destroyer,
		reviews:       reviews,
		minPostLength: minPostLength,
	}
}

func (QueuedPostKind) Name() string { return KindQueuedPost }

func (QueuedPostKind) BuildActions(actions *reviewable.Actions, bc reviewable.BuildContext) {
	if !bc.Item.Status.IsPending() {
		return
	}
	actions.Add("approve")
	actions.Add("reject")
	if bc.Guardian.CanDeleteActor(bc.CreatedBy) {
		actions.Add(
			"delete_user",
			reviewable.WithIcon("trash-alt"),
			reviewable.WithTitle("reviewables.actions.delete_user.title"),
			reviewable.WithConfirmMessage("reviewables.actions.delete_user.confirm"),
		)
	}
}

// BuildEditableFields only opens the draft while no post exists yet.
func (QueuedPostKind) BuildEditableFields(fields *reviewable.EditableFields, bc reviewable.BuildContext) {
	if bc.Item.HasTarget() || !bc.Item.Status.IsPending() || !bc.Guardian.IsStaff() {
		return
	}
	if _, created := bc.Item.Payload.Uint64("created_post_id"); created {
		return
	}
	fields.Add("category_id", "category")
	fields.Add("payload.title", "text")
	fields.Add("payload.raw", "editor")
	fields.Add("payload.tags", "tags")
}

func (k QueuedPostKind) Handlers() map[string]reviewable.PerformFunc {
	return map[string]reviewable.PerformFunc{
		"approve":     k.performApprove,
		"reject":      k.performReject,
		"delete_user": k.performDeleteUser,
	}
}

func (k QueuedPostKind) Validate(item reviewable.Item) reviewable.FieldErrors {
	invalid := reviewable.FieldErrors{}
	raw := strings.TrimSpace(item.Payload.String("raw"))
	switch {
	case raw == "":
		invalid.Add("payload.raw", "can't be blank")
	case utf8.RuneCountInString(raw) < k.minPostLength:
		invalid.Add("payload.raw", fmt.Sprintf("is too short (minimum is %d characters)", k.minPostLength))
	}
	return invalid
}

func (QueuedPostKind) OnCreate(item reviewable.Item) []reviewable.Event {
	return []reviewable.Event{{
		Name:         "queued_post_created",
		ReviewableID: item.ID,
		Kind:         item.Kind,
		Status:       item.Status,
		Data:         map[string]any{"created_by_id": item.CreatedByID},
	}}
}

func (k QueuedPostKind) performApprove(ctx context.Context, pc *reviewable.PerformContext) (*reviewable.PerformResult, error) {
	if k.content == nil {
		return nil, errors.New("content creator is required")
	}

	item := pc.Item
	spec := ports.ContentSpec{
		CreatedByID: item.CreatedByID,
		Raw:         item.Payload.String("raw"),
		Title:       queuedTopicTitle(*item),
		Tags:        item.Payload.Strings("tags"),
		CategoryID:  item.CategoryID,
		TopicID:     item.TopicID,
		Extra:       map[string]any{"reviewable_id": item.ID},
	}
	if n, ok := item.Payload.Uint64("reply_to_post_number"); ok {
		number := int(n)
		spec.ReplyToPostNumber = &number
	}

	ref, err := k.content.CreateContent(ctx, spec)
	if err != nil {
		return nil, errs.Wrap(err, "create queued content")
	}

	pc.SetPayload("created_post_id", ref.PostID)
	result := reviewable.Succeeded(reviewable.StatusApproved)
	postID := ref.PostID
	result.CreatedPostID = &postID
	if ref.CreatedTopic {
		topicID := ref.TopicID
		pc.SetPayload("created_topic_id", topicID)
		result.CreatedTopicID = &topicID
	}

	pc.Emit("approved_post", map[string]any{"post_id": ref.PostID, "topic_id": ref.TopicID})
	return result, nil
}

// queuedTopicTitle falls back to the first line of the body when a new topic
// was queued without a title.
func queuedTopicTitle(item reviewable.Item) string {
	title := strings.TrimSpace(item.Payload.String("title"))
	if title != "" || item.TopicID != nil {
		return title
	}
	for _, line := range strings.Split(item.Payload.String("raw"), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if utf8.RuneCountInString(line) > maxDerivedTitleLength {
			line = strings.TrimSpace(string([]rune(line)[:maxDerivedTitleLength]))
		}
		return line
	}
	return ""
}

func (QueuedPostKind) performReject(_ context.Context, pc *reviewable.PerformContext) (*reviewable.PerformResult, error) {
	pc.Emit("rejected_post", map[string]any{"created_by_id": pc.Item.CreatedByID})
	return reviewable.Succeeded(reviewable.StatusRejected), nil
}

// performDeleteUser removes the submitter and reports their other pending
// items so a displayed queue can drop them. Those rows are left untouched.
func (k QueuedPostKind) performDeleteUser(ctx context.Context, pc *reviewable.PerformContext) (*reviewable.PerformResult, error) {
	if k.destroyer == nil {
		return nil, errors.New("actor destroyer is required")
	}

	creatorID := pc.Item.CreatedByID
	if err := k.destroyer.DestroyActor(ctx, creatorID, ports.DestroyActorOptions{
		PerformedByID:   pc.PerformedBy.ID,
		Context:         "review queue",
		DeletePosts:     true,
		DeleteAsSpammer: pc.Args.Bool("delete_as_spammer"),
	}); err != nil {
		return nil, errs.Wrap(err, "destroy queued post author")
	}

	result := reviewable.Succeeded(reviewable.StatusRejected)
	if k.reviews != nil {
		pending := reviewable.StatusPending
		others, err := k.reviews.ListReviewables(ctx, ports.ReviewableFilter{
			Status:      &pending,
			CreatedByID: &creatorID,
			ExcludeIDs:  []uint64{pc.Item.ID},
		})
		if err != nil {
			return nil, err
		}
		for _, other := range others {
			result.RemoveReviewableIDs = append(result.RemoveReviewableIDs, other.ID)
		}
	}

	pc.Emit("queued_post_author_deleted", map[string]any{"user_id": creatorID})
	return result, nil
}

func (QueuedPostKind) Serialize(item reviewable.Item) map[string]any {
	out := reviewable.BaseSerialize(item)
	out["raw"] = item.Payload.String("raw")
	if title := item.Payload.String("title"); title != "" {
		out["title"] = title
	}
	if tags := item.Payload.Strings("tags"); len(tags) > 0 {
		out["tags"] = tags
	}
	if id, ok := item.Payload.Uint64("created_post_id"); ok {
		out["created_post_id"] = id
	}
	return out
}
