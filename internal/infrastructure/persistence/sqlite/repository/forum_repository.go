package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"modqueue/internal/domain/reviewable"
	"modqueue/internal/infrastructure/persistence/sqlite/model"
	"modqueue/internal/ports"
)

// ForumRepository is the local stand-in for the forum the queue moderates:
// accounts, group memberships, topics and posts.
type ForumRepository struct {
	db  *gorm.DB
	now func() time.Time
}

var (
	_ ports.ActorDirectory = (*ForumRepository)(nil)
	_ ports.ActorDestroyer = (*ForumRepository)(nil)
	_ ports.ActorApprover  = (*ForumRepository)(nil)
	_ ports.ContentCreator = (*ForumRepository)(nil)
	_ ports.PostDirectory  = (*ForumRepository)(nil)
)

func NewForumRepository(db *gorm.DB) *ForumRepository {
	return &ForumRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (r *ForumRepository) CreateActor(ctx context.Context, actor reviewable.Actor) (reviewable.Actor, error) {
	username := strings.TrimSpace(actor.Username)
	if username == "" {
		return reviewable.Actor{}, reviewable.NewValidationError("username", "can't be blank")
	}

	if ports.TxFromContext(ctx) != nil {
		db, err := dbFromContext(ctx, r.db)
		if err != nil {
			return reviewable.Actor{}, err
		}

		row := model.Actor{
			ID:        actor.ID,
			Username:  username,
			Admin:     actor.Admin,
			Moderator: actor.Moderator,
			Approved:  actor.Approved,
			CreatedAt: r.now(),
		}
		if err := db.Create(&row).Error; err != nil {
			if isUniqueViolation(err) {
				return reviewable.Actor{}, reviewable.NewValidationError("username", "has already been taken")
			}
			return reviewable.Actor{}, storeErr(err, "insert actor")
		}

		if len(actor.GroupIDs) > 0 {
			memberships := make([]model.ActorGroup, 0, len(actor.GroupIDs))
			for _, groupID := range actor.GroupIDs {
				memberships = append(memberships, model.ActorGroup{GroupID: groupID, ActorID: row.ID})
			}
			if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&memberships).Error; err != nil {
				return reviewable.Actor{}, storeErr(err, "insert actor groups")
			}
		}

		return mapActor(row, actor.GroupIDs), nil
	}

	var created reviewable.Actor
	if err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		out, err := r.CreateActor(ports.WithTxContext(ctx, tx), actor)
		if err != nil {
			return err
		}
		created = out
		return nil
	}); err != nil {
		return reviewable.Actor{}, err
	}
	return created, nil
}

func (r *ForumRepository) AddGroupMember(ctx context.Context, groupID uint64, actorID uint64) error {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return err
	}

	row := model.ActorGroup{GroupID: groupID, ActorID: actorID}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return storeErr(err, "insert actor group")
	}
	return nil
}

func (r *ForumRepository) GetActor(ctx context.Context, id uint64) (reviewable.Actor, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return reviewable.Actor{}, err
	}

	var row model.Actor
	if err := db.Where("id = ?", id).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return reviewable.Actor{}, reviewable.ErrActorNotFound
		}
		return reviewable.Actor{}, storeErr(err, "query actor")
	}

	groups, err := listActorGroups(db, row.ID)
	if err != nil {
		return reviewable.Actor{}, err
	}
	return mapActor(row, groups), nil
}

func (r *ForumRepository) ListStaff(ctx context.Context) ([]reviewable.Actor, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	var rows []model.Actor
	if err := db.Where("admin = ? OR moderator = ?", true, true).Order("id asc").Find(&rows).Error; err != nil {
		return nil, storeErr(err, "query staff")
	}

	actors := make([]reviewable.Actor, 0, len(rows))
	for _, row := range rows {
		groups, err := listActorGroups(db, row.ID)
		if err != nil {
			return nil, err
		}
		actors = append(actors, mapActor(row, groups))
	}
	return actors, nil
}

func (r *ForumRepository) ListGroupMembers(ctx context.Context, groupID uint64) ([]reviewable.Actor, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	members := db.Model(&model.ActorGroup{}).Select("actor_id").Where("group_id = ?", groupID)

	var rows []model.Actor
	if err := db.Where("id IN (?)", members).Order("id asc").Find(&rows).Error; err != nil {
		return nil, storeErr(err, "query group members")
	}

	actors := make([]reviewable.Actor, 0, len(rows))
	for _, row := range rows {
		groups, err := listActorGroups(db, row.ID)
		if err != nil {
			return nil, err
		}
		actors = append(actors, mapActor(row, groups))
	}
	return actors, nil
}

func (r *ForumRepository) ApproveActor(ctx context.Context, actorID uint64, _ uint64) error {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return err
	}

	result := db.Model(&model.Actor{}).Where("id = ?", actorID).Update("approved", true)
	if result.Error != nil {
		return storeErr(result.Error, "approve actor")
	}
	if result.RowsAffected == 0 {
		return reviewable.ErrActorNotFound
	}
	return nil
}

// DestroyActor removes the account and its memberships; posts go too when
// options.DeletePosts is set.
func (r *ForumRepository) DestroyActor(ctx context.Context, actorID uint64, options ports.DestroyActorOptions) error {
	if ports.TxFromContext(ctx) != nil {
		db, err := dbFromContext(ctx, r.db)
		if err != nil {
			return err
		}

		if options.DeletePosts {
			if err := db.Where("created_by_id = ?", actorID).Delete(&model.Post{}).Error; err != nil {
				return storeErr(err, "delete actor posts")
			}
		}
		if err := db.Where("actor_id = ?", actorID).Delete(&model.ActorGroup{}).Error; err != nil {
			return storeErr(err, "delete actor groups")
		}

		result := db.Where("id = ?", actorID).Delete(&model.Actor{})
		if result.Error != nil {
			return storeErr(result.Error, "delete actor")
		}
		if result.RowsAffected == 0 {
			return reviewable.ErrActorNotFound
		}
		return nil
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return r.DestroyActor(ports.WithTxContext(ctx, tx), actorID, options)
	})
}

// CreateContent appends a post to spec.TopicID, or opens a new topic when it
// is nil.
func (r *ForumRepository) CreateContent(ctx context.Context, spec ports.ContentSpec) (ports.ContentRef, error) {
	if ports.TxFromContext(ctx) == nil {
		var ref ports.ContentRef
		if err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			out, err := r.CreateContent(ports.WithTxContext(ctx, tx), spec)
			if err != nil {
				return err
			}
			ref = out
			return nil
		}); err != nil {
			return ports.ContentRef{}, err
		}
		return ref, nil
	}

	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return ports.ContentRef{}, err
	}

	invalid := reviewable.FieldErrors{}
	if strings.TrimSpace(spec.Raw) == "" {
		invalid.Add("raw", "can't be blank")
	}
	if spec.TopicID == nil && strings.TrimSpace(spec.Title) == "" {
		invalid.Add("title", "can't be blank")
	}
	if !invalid.Empty() {
		return ports.ContentRef{}, &reviewable.ValidationError{Fields: invalid}
	}

	var author int64
	if err := db.Model(&model.Actor{}).Where("id = ?", spec.CreatedByID).Count(&author).Error; err != nil {
		return ports.ContentRef{}, storeErr(err, "query content author")
	}
	if author == 0 {
		return ports.ContentRef{}, reviewable.NewValidationError("created_by_id", "does not exist")
	}

	now := r.now()
	ref := ports.ContentRef{}
	if spec.TopicID == nil {
		topic := model.Topic{
			Title:       strings.TrimSpace(spec.Title),
			CategoryID:  spec.CategoryID,
			Tags:        spec.Tags,
			CreatedByID: spec.CreatedByID,
			CreatedAt:   now,
		}
		if err := db.Create(&topic).Error; err != nil {
			return ports.ContentRef{}, storeErr(err, "insert topic")
		}
		ref.TopicID = topic.ID
		ref.CreatedTopic = true
	} else {
		var count int64
		if err := db.Model(&model.Topic{}).Where("id = ?", *spec.TopicID).Count(&count).Error; err != nil {
			return ports.ContentRef{}, storeErr(err, "query topic")
		}
		if count == 0 {
			return ports.ContentRef{}, reviewable.NewValidationError("topic_id", "does not exist")
		}
		ref.TopicID = *spec.TopicID
	}

	var lastNumber int
	if err := db.Model(&model.Post{}).
		Select("COALESCE(MAX(post_number), 0)").
		Where("topic_id = ?", ref.TopicID).
		Scan(&lastNumber).Error; err != nil {
		return ports.ContentRef{}, storeErr(err, "query last post number")
	}

	post := model.Post{
		TopicID:           ref.TopicID,
		PostNumber:        lastNumber + 1,
		ReplyToPostNumber: spec.ReplyToPostNumber,
		CreatedByID:       spec.CreatedByID,
		Raw:               spec.Raw,
		CreatedAt:         now,
	}
	if err := db.Create(&post).Error; err != nil {
		return ports.ContentRef{}, storeErr(err, "insert post")
	}
	ref.PostID = post.ID
	return ref, nil
}

func (r *ForumRepository) GetPost(ctx context.Context, id uint64) (ports.PostRef, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return ports.PostRef{}, err
	}

	var post model.Post
	if err := db.Where("id = ?", id).Take(&post).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.PostRef{}, ports.ErrPostNotFound
		}
		return ports.PostRef{}, storeErr(err, "query post")
	}

	var topic model.Topic
	if err := db.Where("id = ?", post.TopicID).Take(&topic).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return ports.PostRef{}, storeErr(err, "query post topic")
	}

	return ports.PostRef{
		ID:         post.ID,
		TopicID:    post.TopicID,
		CategoryID: topic.CategoryID,
		AuthorID:   post.CreatedByID,
	}, nil
}

func listActorGroups(db *gorm.DB, actorID uint64) ([]uint64, error) {
	var groups []uint64
	if err := db.Model(&model.ActorGroup{}).
		Where("actor_id = ?", actorID).
		Order("group_id asc").
		Pluck("group_id", &groups).Error; err != nil {
		return nil, storeErr(err, "query actor groups")
	}
	return groups, nil
}

func mapActor(row model.Actor, groups []uint64) reviewable.Actor {
	return reviewable.Actor{
		ID:        row.ID,
		Username:  row.Username,
		Admin:     row.Admin,
		Moderator: row.Moderator,
		Approved:  row.Approved,
		GroupIDs:  append([]uint64(nil), groups...),
	}
}
