package models

import "go.mongodb.org/mongo-driver/bson/primitive"

const (
	StatusDraft     = "draft"
	StatusPublished = "published"
)

const (
	MaxTitleLen       = 200
	MaxDescriptionLen = 500
)

type PostImage struct {
	ID       primitive.ObjectID `bson:"_id" json:"id"`
	Name     string             `bson:"name" json:"name"`
	URL      string             `bson:"url" json:"url"`
	PublicID string             `bson:"publicId" json:"publicId"`
	Width    int                `bson:"width" json:"width"`
	Height   int                `bson:"height" json:"height"`
}

type Post struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title       string             `bson:"title" json:"title"`
	Description string             `bson:"description" json:"description"`
	Content     string             `bson:"content" json:"content"`
	Images      []PostImage        `bson:"images" json:"images"`
	Author      primitive.ObjectID `bson:"author" json:"author"`
	Status      string             `bson:"status" json:"status"` // draft, published
	CreatedAt   int64              `bson:"createdAt" json:"createdAt"`
	UpdatedAt   int64              `bson:"updatedAt" json:"updatedAt"`
	AuthorInfo  *UserRef           `bson:"-" json:"authorInfo,omitempty"` // Populated in response only
}

// ImageByID returns the index of the image with the given id, or -1.
func (p *Post) ImageByID(id primitive.ObjectID) int {
	for i := range p.Images {
		if p.Images[i].ID == id {
			return i
		}
	}
	return -1
}

func ValidStatus(status string) bool {
	return status == StatusDraft || status == StatusPublished
}
