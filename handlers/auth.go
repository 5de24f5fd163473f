package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"blogcms/auth"
	"blogcms/middleware"
	"blogcms/models"
	"blogcms/store"
)

type AuthHandler struct {
	users  store.UserStore
	tokens *auth.TokenService
	log    *zap.Logger
}

func NewAuthHandler(users store.UserStore, tokens *auth.TokenService, log *zap.Logger) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens, log: log}
}

type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Role     string `json:"role"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
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
		h.log.Error("register: uniqueness check failed", zap.Error(err))
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
		h.log.Error("register: insert failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	token, err := h.tokens.Issue(user.ID.Hex())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	respond(c, http.StatusCreated, gin.H{
		"user":  user,
		"token": token,
	}, "User registered successfully")
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	user, err := h.users.FindByEmail(ctx, req.Email)
	if err == store.ErrNotFound {
		respondError(c, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	if err != nil {
		h.log.Error("login: lookup failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	if !auth.CheckPassword(req.Password, user.PasswordHash) {
		respondError(c, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	token, err := h.tokens.Issue(user.ID.Hex())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	respond(c, http.StatusOK, gin.H{
		"user":  user,
		"token": token,
	}, "Login successful")
}

func (h *AuthHandler) Profile(c *gin.Context) {
	p, ok := middleware.Principal(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "Not authenticated")
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
		h.log.Error("profile: lookup failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	respond(c, http.StatusOK, user, "")
}
