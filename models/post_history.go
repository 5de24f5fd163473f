package models

import "go.mongodb.org/mongo-driver/bson/primitive"

const (
	ChangeCreated = "created"
	ChangeUpdated = "updated"
)

// PostHistory is an immutable snapshot of a post's full content taken after
// every successful create or update. Entries are never modified; they are
// only deleted as a cascade when the post itself is deleted.
type PostHistory struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	PostID        primitive.ObjectID `bson:"postId" json:"postId"`
	Title         string             `bson:"title" json:"title"`
	Description   string             `bson:"description" json:"description"`
	Content       string             `bson:"content" json:"content"`
	Images        []PostImage        `bson:"images" json:"images"`
	ChangedBy     primitive.ObjectID `bson:"changedBy" json:"changedBy"`
	ChangedAt     int64              `bson:"changedAt" json:"changedAt"`
	ChangeType    string             `bson:"changeType" json:"changeType"` // created, updated
	ChangedByInfo *UserRef           `bson:"-" json:"changedByInfo,omitempty"`
}

// Snapshot builds a history entry from the post's current state.
func Snapshot(post *Post, changedBy primitive.ObjectID, changeType string, at int64) PostHistory {
	images := make([]PostImage, len(post.Images))
	copy(images, post.Images)
	return PostHistory{
		PostID:      post.ID,
		Title:       post.Title,
		Description: post.Description,
		Content:     post.Content,
		Images:      images,
		ChangedBy:   changedBy,
		ChangedAt:   at,
		ChangeType:  changeType,
	}
}
