package handlers

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"blogcms/middleware"
	"blogcms/models"
	"blogcms/policy"
	"blogcms/storage"
	"blogcms/store"
	"blogcms/uploader"
)

type PostHandler struct {
	posts    store.PostStore
	history  store.HistoryStore
	users    store.UserStore
	assets   storage.Store
	uploads  *uploader.Orchestrator
	maxFiles int
	maxBytes int64
	log      *zap.Logger
}

func NewPostHandler(
	posts store.PostStore,
	history store.HistoryStore,
	users store.UserStore,
	assets storage.Store,
	uploads *uploader.Orchestrator,
	maxFiles int,
	maxBytes int64,
	log *zap.Logger,
) *PostHandler {
	return &PostHandler{
		posts:    posts,
		history:  history,
		users:    users,
		assets:   assets,
		uploads:  uploads,
		maxFiles: maxFiles,
		maxBytes: maxBytes,
		log:      log,
	}
}

type CreatePostRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	Content     string `json:"content"`
}

// UpdatePostRequest uses pointers so an absent field is distinguishable
// from a present-but-empty one: nil leaves the field unchanged, an empty
// string clears it (title excepted, it must stay non-empty).
type UpdatePostRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Content     *string `json:"content"`
	Status      *string `json:"status"`
}

func (h *PostHandler) Create(c *gin.Context) {
	p, ok := middleware.Principal(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "Not authenticated")
		return
	}

	var req CreatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	title := strings.TrimSpace(req.Title)
	if title == "" || len(title) > models.MaxTitleLen {
		respondError(c, http.StatusBadRequest, "Title is required and must be at most 200 characters")
		return
	}
	if len(req.Description) > models.MaxDescriptionLen {
		respondError(c, http.StatusBadRequest, "Description must be at most 500 characters")
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	now := time.Now().Unix()
	post := models.Post{
		Title:       title,
		Description: strings.TrimSpace(req.Description),
		Content:     req.Content,
		Images:      []models.PostImage{},
		Author:      p.ID,
		Status:      models.StatusDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := h.posts.Create(ctx, &post); err != nil {
		h.log.Error("create post failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	if err := h.appendHistory(ctx, c, &post, p.ID, models.ChangeCreated); err != nil {
		return
	}

	respond(c, http.StatusCreated, post, "Post created successfully")
}

func (h *PostHandler) List(c *gin.Context) {
	page, _ := strconv.ParseInt(c.DefaultQuery("page", "1"), 10, 64)
	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "10"), 10, 64)
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}

	q := store.PostQuery{
		Status: c.Query("status"),
		Search: c.Query("search"),
		Page:   page,
		Limit:  limit,
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	posts, total, err := h.posts.Find(ctx, q)
	if err != nil {
		h.log.Error("list posts failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	refs := map[primitive.ObjectID]*models.UserRef{}
	for i := range posts {
		posts[i].AuthorInfo = h.userRef(c, refs, posts[i].Author)
	}

	respond(c, http.StatusOK, gin.H{
		"posts":      posts,
		"total":      total,
		"page":       page,
		"limit":      limit,
		"totalPages": int64(math.Ceil(float64(total) / float64(limit))),
	}, "")
}

func (h *PostHandler) Get(c *gin.Context) {
	postID, err := primitive.ObjectIDFromHex(c.Param("postId"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid post ID")
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	post, err := h.posts.FindByID(ctx, postID)
	if err == store.ErrNotFound {
		respondError(c, http.StatusNotFound, "Post not found")
		return
	}
	if err != nil {
		h.log.Error("get post failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	post.AuthorInfo = h.userRef(c, nil, post.Author)
	respond(c, http.StatusOK, post, "")
}

func (h *PostHandler) Update(c *gin.Context) {
	p, ok := middleware.Principal(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "Not authenticated")
		return
	}

	postID, err := primitive.ObjectIDFromHex(c.Param("postId"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid post ID")
		return
	}

	var req UpdatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	post, err := h.posts.FindByID(ctx, postID)
	if err == store.ErrNotFound {
		respondError(c, http.StatusNotFound, "Post not found")
		return
	}
	if err != nil {
		h.log.Error("update post: lookup failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	if !policy.CanEditPost(p, post.Author, h.authorRole(c, post.Author)) {
		respondError(c, http.StatusForbidden, "Access denied")
		return
	}

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" || len(title) > models.MaxTitleLen {
			respondError(c, http.StatusBadRequest, "Title is required and must be at most 200 characters")
			return
		}
		post.Title = title
	}
	if req.Description != nil {
		if len(*req.Description) > models.MaxDescriptionLen {
			respondError(c, http.StatusBadRequest, "Description must be at most 500 characters")
			return
		}
		post.Description = strings.TrimSpace(*req.Description)
	}
	if req.Content != nil {
		post.Content = *req.Content
	}
	// Status changes are admin only; for anyone else the field is simply
	// not applied.
	if req.Status != nil && policy.CanSetStatus(p) {
		if !models.ValidStatus(*req.Status) {
			respondError(c, http.StatusBadRequest, "Status must be draft or published")
			return
		}
		post.Status = *req.Status
	}
	post.UpdatedAt = time.Now().Unix()

	if err := h.posts.Update(ctx, post); err != nil {
		h.log.Error("update post failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	if err := h.appendHistory(ctx, c, post, p.ID, models.ChangeUpdated); err != nil {
		return
	}

	respond(c, http.StatusOK, post, "Post updated successfully")
}

func (h *PostHandler) Delete(c *gin.Context) {
	p, ok := middleware.Principal(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "Not authenticated")
		return
	}
	if !policy.CanDeletePost(p) {
		respondError(c, http.StatusForbidden, "Access denied. Only admins can delete posts.")
		return
	}

	postID, err := primitive.ObjectIDFromHex(c.Param("postId"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid post ID")
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	post, err := h.posts.FindByID(ctx, postID)
	if err == store.ErrNotFound {
		respondError(c, http.StatusNotFound, "Post not found")
		return
	}
	if err != nil {
		h.log.Error("delete post: lookup failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	if len(post.Images) > 0 {
		publicIDs := make([]string, len(post.Images))
		for i, img := range post.Images {
			publicIDs[i] = img.PublicID
		}
		h.assets.DeleteMany(ctx, publicIDs)
	}

	if err := h.posts.Delete(ctx, postID); err != nil {
		h.log.Error("delete post failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	if err := h.history.DeleteByPost(ctx, postID); err != nil {
		h.log.Error("delete post history failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	respond(c, http.StatusOK, nil, "Post deleted successfully")
}

func (h *PostHandler) History(c *gin.Context) {
	postID, err := primitive.ObjectIDFromHex(c.Param("postId"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid post ID")
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	entries, err := h.history.FindByPost(ctx, postID)
	if err != nil {
		h.log.Error("get post history failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	refs := map[primitive.ObjectID]*models.UserRef{}
	for i := range entries {
		entries[i].ChangedByInfo = h.userRef(c, refs, entries[i].ChangedBy)
	}

	respond(c, http.StatusOK, entries, "")
}

// appendHistory writes the audit snapshot for a successful mutation. On
// failure the request is answered with a 500 so the caller knows the audit
// trail is incomplete; the mutation itself is not rolled back. The caller
// supplies the context so the append shares the lifetime of the mutation it
// records.
func (h *PostHandler) appendHistory(ctx context.Context, c *gin.Context, post *models.Post, actorID primitive.ObjectID, changeType string) error {
	// Milliseconds so entries written in the same second stay ordered.
	entry := models.Snapshot(post, actorID, changeType, time.Now().UnixMilli())
	if err := h.history.Append(ctx, &entry); err != nil {
		h.log.Error("history append failed",
			zap.String("postId", post.ID.Hex()),
			zap.String("changeType", changeType),
			zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Failed to record post history")
		return err
	}
	return nil
}

// userRef resolves a user id to its display reference, caching lookups when
// the caller passes a map. Missing users resolve to nil rather than failing
// the request.
func (h *PostHandler) userRef(c *gin.Context, cache map[primitive.ObjectID]*models.UserRef, id primitive.ObjectID) *models.UserRef {
	if cache != nil {
		if ref, ok := cache[id]; ok {
			return ref
		}
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	var ref *models.UserRef
	user, err := h.users.FindByID(ctx, id)
	if err == nil {
		ref = &models.UserRef{ID: user.ID, Username: user.Username, Email: user.Email}
	}
	if cache != nil {
		cache[id] = ref
	}
	return ref
}

// authorRole looks up the post author's current role for the policy check.
// A missing author is treated as a plain employee.
func (h *PostHandler) authorRole(c *gin.Context, id primitive.ObjectID) string {
	ctx, cancel := requestContext(c)
	defer cancel()

	user, err := h.users.FindByID(ctx, id)
	if err != nil {
		return models.RoleEmployee
	}
	return user.Role
}
