// Package policy holds the pure authorization rules. Every function decides
// from the actor's identity and the target's ownership alone; no function
// here touches storage or the request.
package policy

import (
	"go.mongodb.org/mongo-driver/bson/primitive"

	"blogcms/models"
)

// Principal is the authenticated identity attached to a request by the auth
// middleware.
type Principal struct {
	ID   primitive.ObjectID
	Role string
}

func (p Principal) IsAdmin() bool {
	return p.Role == models.RoleAdmin
}

// CanCreatePost: any staff member (employee or admin) may create posts.
func CanCreatePost(actor Principal) bool {
	return actor.Role == models.RoleAdmin || actor.Role == models.RoleEmployee
}

// CanEditPost: the author or an admin, except that a non-admin may never
// edit a post whose author holds the admin role, even if that author is
// the actor themselves.
func CanEditPost(actor Principal, authorID primitive.ObjectID, authorRole string) bool {
	if actor.IsAdmin() {
		return true
	}
	if authorRole == models.RoleAdmin {
		return false
	}
	return actor.ID == authorID
}

// CanManageImages: the author or an admin. Unlike CanEditPost there is no
// admin-authored-post restriction for image operations.
func CanManageImages(actor Principal, authorID primitive.ObjectID) bool {
	return actor.IsAdmin() || actor.ID == authorID
}

// CanSetStatus: only admins may move a post between draft and published.
// A status field in a non-admin request is ignored, not rejected.
func CanSetStatus(actor Principal) bool {
	return actor.IsAdmin()
}

// CanDeletePost: admin only.
func CanDeletePost(actor Principal) bool {
	return actor.IsAdmin()
}

// CanManageUsers: listing, creating, reading, updating and deleting user
// accounts is admin only.
func CanManageUsers(actor Principal) bool {
	return actor.IsAdmin()
}

// CanDeleteUser: self-deletion is never allowed, and accounts holding the
// admin role are never deletable through this path.
func CanDeleteUser(actor Principal, targetID primitive.ObjectID, targetRole string) bool {
	if !actor.IsAdmin() {
		return false
	}
	if actor.ID == targetID {
		return false
	}
	return targetRole != models.RoleAdmin
}

// CanChangeRole: nobody may change their own role; otherwise role changes
// require admin.
func CanChangeRole(actor Principal, targetID primitive.ObjectID) bool {
	if actor.ID == targetID {
		return false
	}
	return actor.IsAdmin()
}
