package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"blogcms/auth"
	"blogcms/middleware"
	"blogcms/models"
	"blogcms/policy"
	"blogcms/store"
)

type UserHandler struct {
	users store.UserStore
	log   *zap.Logger
}

func NewUserHandler(users store.UserStore, log *zap.Logger) *UserHandler {
	return &UserHandler{users: users, log: log}
}

type CreateUserRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Role     string `json:"role"`
}

type UpdateUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required,min=6"`
}

func (h *UserHandler) List(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	users, err := h.users.List(ctx)
	if err != nil {
		h.log.Error("list users failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	respond(c, http.StatusOK, users, "")
}

func (h *UserHandler) Create(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	role := req.Role
	if role == "" {
		role = models.RoleEmployee
	}
	if !models.ValidRole(role) {
		respondError(c, http.StatusBadRequest, "Role must be admin or employee")
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if _, err := h.users.FindByUsernameOrEmail(ctx, req.Username, req.Email); err == nil {
		respondError(c, http.StatusBadRequest, "User with this email or username already exists")
		return
	} else if err != store.ErrNotFound {
		h.log.Error("create user: uniqueness check failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Failed to hash password")
		return
	}

	now := time.Now().Unix()
	user := models.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hashed,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := h.users.Create(ctx, &user); err != nil {
		if err == store.ErrDuplicate {
			respondError(c, http.StatusBadRequest, "User with this email or username already exists")
			return
		}
		h.log.Error("create user failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	respond(c, http.StatusCreated, user, "User created successfully")
}

func (h *UserHandler) Get(c *gin.Context) {
	userID, err := primitive.ObjectIDFromHex(c.Param("userId"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid user ID")
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	user, err := h.users.FindByID(ctx, userID)
	if err == store.ErrNotFound {
		respondError(c, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		h.log.Error("get user failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	respond(c, http.StatusOK, user, "")
}

func (h *UserHandler) Update(c *gin.Context) {
	p, ok := middleware.Principal(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "Not authenticated")
		return
	}

	userID, err := primitive.ObjectIDFromHex(c.Param("userId"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid user ID")
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	user, err := h.users.FindByID(ctx, userID)
	if err == store.ErrNotFound {
		respondError(c, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		h.log.Error("update user: lookup failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	if req.Role != "" && req.Role != user.Role {
		if !models.ValidRole(req.Role) {
			respondError(c, http.StatusBadRequest, "Role must be admin or employee")
			return
		}
		// Nobody may change their own role, admins included.
		if !policy.CanChangeRole(p, userID) {
			respondError(c, http.StatusForbidden, "Cannot change your own role")
			return
		}
		user.Role = req.Role
	}
	if req.Username != "" {
		user.Username = req.Username
	}
	if req.Email != "" {
		user.Email = req.Email
	}
	user.UpdatedAt = time.Now().Unix()

	if err := h.users.Update(ctx, user); err != nil {
		if err == store.ErrDuplicate {
			respondError(c, http.StatusBadRequest, "User with this email or username already exists")
			return
		}
		h.log.Error("update user failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	respond(c, http.StatusOK, user, "User updated successfully")
}

func (h *UserHandler) Delete(c *gin.Context) {
	p, ok := middleware.Principal(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "Not authenticated")
		return
	}

	userID, err := primitive.ObjectIDFromHex(c.Param("userId"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid user ID")
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	user, err := h.users.FindByID(ctx, userID)
	if err == store.ErrNotFound {
		respondError(c, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		h.log.Error("delete user: lookup failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	if !policy.CanDeleteUser(p, user.ID, user.Role) {
		if p.ID == user.ID {
			respondError(c, http.StatusForbidden, "Cannot delete your own account")
			return
		}
		respondError(c, http.StatusForbidden, "Cannot delete admin users")
		return
	}

	if err := h.users.Delete(ctx, userID); err != nil {
		h.log.Error("delete user failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	respond(c, http.StatusOK, nil, "User deleted successfully")
}

func (h *UserHandler) ChangePassword(c *gin.Context) {
	p, ok := middleware.Principal(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "Not authenticated")
		return
	}

	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	user, err := h.users.FindByID(ctx, p.ID)
	if err == store.ErrNotFound {
		respondError(c, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		h.log.Error("change password: lookup failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	if !auth.CheckPassword(req.CurrentPassword, user.PasswordHash) {
		respondError(c, http.StatusBadRequest, "Current password is incorrect")
		return
	}

	hashed, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Failed to hash password")
		return
	}

	user.PasswordHash = hashed
	user.UpdatedAt = time.Now().Unix()

	if err := h.users.Update(ctx, user); err != nil {
		h.log.Error("change password failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	respond(c, http.StatusOK, nil, "Password changed successfully")
}
