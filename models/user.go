package models

import "go.mongodb.org/mongo-driver/bson/primitive"

const (
	RoleAdmin    = "admin"
	RoleEmployee = "employee"
)

type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Username     string             `bson:"username" json:"username"`
	Email        string             `bson:"email" json:"email"`
	PasswordHash string             `bson:"passwordHash" json:"-"`
	Role         string             `bson:"role" json:"role"` // admin, employee
	CreatedAt    int64              `bson:"createdAt" json:"createdAt"`
	UpdatedAt    int64              `bson:"updatedAt" json:"updatedAt"`
}

// UserRef is the author/changedBy shape embedded in post and history
// responses.
type UserRef struct {
	ID       primitive.ObjectID `json:"id"`
	Username string             `json:"username"`
	Email    string             `json:"email"`
}

func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleEmployee
}
