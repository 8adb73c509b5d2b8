package model

import "time"

// Actor, ActorGroup, Topic and Post back the forum collaborators the review
// workflow talks to (directory, content creation, account removal).
type Actor struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	Username  string    `gorm:"column:username;type:varchar(64);not null;uniqueIndex"`
	Admin     bool      `gorm:"column:admin;not null;default:false"`
	Moderator bool      `gorm:"column:moderator;not null;default:false"`
	Approved  bool      `gorm:"column:approved;not null;default:false"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

func (Actor) TableName() string {
	return "actors"
}

type ActorGroup struct {
	GroupID uint64 `gorm:"column:group_id;primaryKey"`
	ActorID uint64 `gorm:"column:actor_id;primaryKey;index"`
}

func (ActorGroup) TableName() string {
	return "actor_groups"
}

type Topic struct {
	ID          uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	Title       string    `gorm:"column:title;type:text;not null"`
	CategoryID  *uint64   `gorm:"column:category_id"`
	Tags        []string  `gorm:"column:tags;type:text;serializer:json"`
	CreatedByID uint64    `gorm:"column:created_by_id;not null;index"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
}

func (Topic) TableName() string {
	return "topics"
}

type Post struct {
	ID                uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	TopicID           uint64    `gorm:"column:topic_id;not null;index"`
	PostNumber        int       `gorm:"column:post_number;not null"`
	ReplyToPostNumber *int      `gorm:"column:reply_to_post_number"`
	CreatedByID       uint64    `gorm:"column:created_by_id;not null;index"`
	Raw               string    `gorm:"column:raw;type:text;not null"`
	CreatedAt         time.Time `gorm:"column:created_at;not null"`
}

func (Post) TableName() string {
	return "posts"
}
