package store

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"blogcms/models"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate key")
)

// PostQuery filters the post listing. Page is 1-based.
type PostQuery struct {
	Status string
	Search string
	Page   int64
	Limit  int64
}

type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	// FindByUsernameOrEmail matches either field; used for uniqueness checks.
	FindByUsernameOrEmail(ctx context.Context, username, email string) (*models.User, error)
	List(ctx context.Context) ([]models.User, error)
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id primitive.ObjectID) error
}

type PostStore interface {
	Create(ctx context.Context, post *models.Post) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Post, error)
	Find(ctx context.Context, q PostQuery) ([]models.Post, int64, error)
	Update(ctx context.Context, post *models.Post) error
	Delete(ctx context.Context, id primitive.ObjectID) error
}

// HistoryStore is append-only: entries are never updated, and the only
// delete path is the cascade when a post is removed.
type HistoryStore interface {
	Append(ctx context.Context, entry *models.PostHistory) error
	FindByPost(ctx context.Context, postID primitive.ObjectID) ([]models.PostHistory, error)
	DeleteByPost(ctx context.Context, postID primitive.ObjectID) error
}
