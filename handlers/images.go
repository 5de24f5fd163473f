package handlers

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"blogcms/middleware"
	"blogcms/models"
	"blogcms/policy"
	"blogcms/store"
	"blogcms/uploader"
)

// Generous bound for a full batch; once uploading starts a client abort
// does not cancel in-flight items, so this timer is the only stop.
const uploadBatchTimeout = 2 * time.Minute

type RenameImageRequest struct {
	Name string `json:"name" binding:"required"`
}

func (h *PostHandler) UploadImages(c *gin.Context) {
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

	form, err := c.MultipartForm()
	if err != nil {
		respondError(c, http.StatusBadRequest, "Content-Type must be multipart/form-data")
		return
	}

	files := collectFiles(form)
	if len(files) == 0 {
		respondError(c, http.StatusBadRequest, "No images provided")
		return
	}
	if len(files) > h.maxFiles {
		respondError(c, http.StatusBadRequest, fmt.Sprintf("Too many files. Maximum is %d files.", h.maxFiles))
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
		h.log.Error("upload images: post lookup failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	if !policy.CanManageImages(p, post.Author) {
		respondError(c, http.StatusForbidden, "Access denied")
		return
	}

	names := form.Value["imageNames"]

	// The whole batch is validated before any upload begins; one bad file
	// rejects everything.
	items := make([]uploader.Item, 0, len(files))
	for i, fh := range files {
		if fh.Size > h.maxBytes {
			respondError(c, http.StatusBadRequest, fmt.Sprintf("File too large. Maximum size is %dMB.", h.maxBytes>>20))
			return
		}
		mimeType := fh.Header.Get("Content-Type")
		if !strings.HasPrefix(mimeType, "image/") {
			respondError(c, http.StatusBadRequest, "Only image files are allowed")
			return
		}

		data, err := readFile(fh)
		if err != nil || len(data) == 0 {
			respondError(c, http.StatusBadRequest, "One or more files are empty. Make sure to send multipart/form-data correctly.")
			return
		}

		var name string
		if i < len(names) {
			name = names[i]
		}
		items = append(items, uploader.Item{
			Data:     data,
			Name:     name,
			Filename: fh.Filename,
			MIMEType: mimeType,
		})
	}

	// Deliberately detached from the request context: an aborting caller
	// must not cancel uploads that already started.
	batchCtx, batchCancel := context.WithTimeout(context.Background(), uploadBatchTimeout)
	defer batchCancel()

	result := h.uploads.UploadBatch(batchCtx, items)

	if result.AllFailed() {
		// Soft failure: nothing was persisted, but this is not a hard error.
		c.JSON(http.StatusOK, Response{
			Success: false,
			Data:    result.Images,
			Message: result.Message(),
		})
		return
	}

	post.Images = append(post.Images, result.Images...)
	post.UpdatedAt = time.Now().Unix()

	// Persistence runs on the batch context too: the request context may be
	// gone by now (slow batch, aborted client) and images that reached the
	// remote store must still land on the post.
	if err := h.posts.Update(batchCtx, post); err != nil {
		h.log.Error("upload images: post update failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	if err := h.appendHistory(batchCtx, c, post, p.ID, models.ChangeUpdated); err != nil {
		return
	}

	respond(c, http.StatusOK, result.Images, result.Message())
}

func (h *PostHandler) RenameImage(c *gin.Context) {
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
	imageID, err := primitive.ObjectIDFromHex(c.Param("imageId"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid image ID")
		return
	}

	var req RenameImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		respondError(c, http.StatusBadRequest, "Image name cannot be empty")
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
		h.log.Error("rename image: post lookup failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	if !policy.CanManageImages(p, post.Author) {
		respondError(c, http.StatusForbidden, "Access denied")
		return
	}

	idx := post.ImageByID(imageID)
	if idx < 0 {
		respondError(c, http.StatusNotFound, "Image not found")
		return
	}

	post.Images[idx].Name = name
	post.UpdatedAt = time.Now().Unix()

	if err := h.posts.Update(ctx, post); err != nil {
		h.log.Error("rename image: post update failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	if err := h.appendHistory(ctx, c, post, p.ID, models.ChangeUpdated); err != nil {
		return
	}

	respond(c, http.StatusOK, post.Images[idx], "Image renamed successfully")
}

func (h *PostHandler) DeleteImage(c *gin.Context) {
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
	imageID, err := primitive.ObjectIDFromHex(c.Param("imageId"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid image ID")
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
		h.log.Error("delete image: post lookup failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	if !policy.CanManageImages(p, post.Author) {
		respondError(c, http.StatusForbidden, "Access denied")
		return
	}

	idx := post.ImageByID(imageID)
	if idx < 0 {
		respondError(c, http.StatusNotFound, "Image not found")
		return
	}

	// Remote deletion is best-effort: a failure is logged and the local
	// removal proceeds regardless.
	if err := h.assets.Delete(ctx, post.Images[idx].PublicID); err != nil {
		h.log.Warn("failed to delete remote image",
			zap.String("publicId", post.Images[idx].PublicID), zap.Error(err))
	}

	post.Images = append(post.Images[:idx], post.Images[idx+1:]...)
	post.UpdatedAt = time.Now().Unix()

	if err := h.posts.Update(ctx, post); err != nil {
		h.log.Error("delete image: post update failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	if err := h.appendHistory(ctx, c, post, p.ID, models.ChangeUpdated); err != nil {
		return
	}

	respond(c, http.StatusOK, nil, "Image deleted successfully")
}

// collectFiles flattens a multipart form's file parts into one ordered
// slice. Field names are walked in sorted order so batches keep a stable
// sequence whatever field the client used.
func collectFiles(form *multipart.Form) []*multipart.FileHeader {
	keys := make([]string, 0, len(form.File))
	for key := range form.File {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var files []*multipart.FileHeader
	for _, key := range keys {
		files = append(files, form.File[key]...)
	}
	return files
}

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
