package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"blogcms/auth"
	"blogcms/middleware"
	"blogcms/models"
	"blogcms/storage"
	"blogcms/store"
	"blogcms/uploader"
)

// ---- in-memory stores ----

type fakeUserStore struct {
	mu    sync.Mutex
	users map[primitive.ObjectID]models.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: map[primitive.ObjectID]models.User{}}
}

func (s *fakeUserStore) Create(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == user.Username || u.Email == user.Email {
			return store.ErrDuplicate
		}
	}
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	s.users[user.ID] = *user
	return nil
}

func (s *fakeUserStore) FindByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := u
	return &out, nil
}

func (s *fakeUserStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			out := u
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *fakeUserStore) FindByUsernameOrEmail(_ context.Context, username, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username || u.Email == email {
			out := u
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *fakeUserStore) List(_ context.Context) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var users []models.User
	for _, u := range s.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt > users[j].CreatedAt })
	return users, nil
}

func (s *fakeUserStore) Update(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; !ok {
		return store.ErrNotFound
	}
	s.users[user.ID] = *user
	return nil
}

func (s *fakeUserStore) Delete(_ context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.users, id)
	return nil
}

type fakePostStore struct {
	mu    sync.Mutex
	posts map[primitive.ObjectID]models.Post
}

func newFakePostStore() *fakePostStore {
	return &fakePostStore{posts: map[primitive.ObjectID]models.Post{}}
}

func (s *fakePostStore) Create(_ context.Context, post *models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if post.ID.IsZero() {
		post.ID = primitive.NewObjectID()
	}
	s.posts[post.ID] = clonePost(*post)
	return nil
}

func (s *fakePostStore) FindByID(_ context.Context, id primitive.ObjectID) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := clonePost(p)
	return &out, nil
}

func (s *fakePostStore) Find(_ context.Context, q store.PostQuery) ([]models.Post, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var posts []models.Post
	for _, p := range s.posts {
		if q.Status != "" && p.Status != q.Status {
			continue
		}
		if q.Search != "" && !matchesSearch(p, q.Search) {
			continue
		}
		posts = append(posts, clonePost(p))
	}
	sort.Slice(posts, func(i, j int) bool { return posts[i].CreatedAt > posts[j].CreatedAt })
	total := int64(len(posts))

	skip := (q.Page - 1) * q.Limit
	if skip >= total {
		return nil, total, nil
	}
	posts = posts[skip:]
	if int64(len(posts)) > q.Limit {
		posts = posts[:q.Limit]
	}
	return posts, total, nil
}

func matchesSearch(p models.Post, term string) bool {
	term = strings.ToLower(term)
	for _, field := range []string{p.Title, p.Description, p.Content} {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}

func (s *fakePostStore) Update(ctx context.Context, post *models.Post) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[post.ID]; !ok {
		return store.ErrNotFound
	}
	s.posts[post.ID] = clonePost(*post)
	return nil
}

func (s *fakePostStore) Delete(_ context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.posts, id)
	return nil
}

func clonePost(p models.Post) models.Post {
	images := make([]models.PostImage, len(p.Images))
	copy(images, p.Images)
	p.Images = images
	return p
}

type fakeHistoryStore struct {
	mu      sync.Mutex
	entries []models.PostHistory
}

func newFakeHistoryStore() *fakeHistoryStore {
	return &fakeHistoryStore{}
}

func (s *fakeHistoryStore) Append(ctx context.Context, entry *models.PostHistory) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID.IsZero() {
		entry.ID = primitive.NewObjectID()
	}
	s.entries = append(s.entries, *entry)
	return nil
}

func (s *fakeHistoryStore) FindByPost(_ context.Context, postID primitive.ObjectID) ([]models.PostHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PostHistory
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].PostID == postID {
			out = append(out, s.entries[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ChangedAt > out[j].ChangedAt })
	return out, nil
}

func (s *fakeHistoryStore) DeleteByPost(_ context.Context, postID primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.PostID != postID {
			kept = append(kept, e)
		}
	}
	s.entries = kept
	return nil
}

func (s *fakeHistoryStore) countFor(postID primitive.ObjectID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if e.PostID == postID {
			n++
		}
	}
	return n
}

// fakeAssetStore records uploads and deletions; names listed in failNames
// fail their upload, ids in failDeletes fail their deletion. onUpload, when
// set, runs at the start of every upload.
type fakeAssetStore struct {
	mu          sync.Mutex
	uploads     []string
	deleted     []string
	failNames   map[string]bool
	failDeletes map[string]bool
	onUpload    func()
}

func newFakeAssetStore() *fakeAssetStore {
	return &fakeAssetStore{
		failNames:   map[string]bool{},
		failDeletes: map[string]bool{},
	}
}

func (s *fakeAssetStore) UploadCompressed(_ context.Context, data []byte, name, _ string) (*storage.UploadResult, error) {
	if s.onUpload != nil {
		s.onUpload()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNames[name] {
		return nil, fmt.Errorf("upload failed for %s", name)
	}
	s.uploads = append(s.uploads, name)
	return &storage.UploadResult{
		URL:      "https://cdn.example.com/" + name,
		PublicID: "asset_" + name,
		Width:    800,
		Height:   600,
	}, nil
}

func (s *fakeAssetStore) Delete(_ context.Context, publicID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, publicID)
	if s.failDeletes[publicID] {
		return fmt.Errorf("delete failed for %s", publicID)
	}
	return nil
}

func (s *fakeAssetStore) DeleteMany(ctx context.Context, publicIDs []string) []storage.DeleteOutcome {
	outcomes := make([]storage.DeleteOutcome, len(publicIDs))
	for i, id := range publicIDs {
		outcomes[i] = storage.DeleteOutcome{PublicID: id, Err: s.Delete(ctx, id)}
	}
	return outcomes
}

func (s *fakeAssetStore) uploadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.uploads)
}

func (s *fakeAssetStore) deletedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.deleted))
	copy(out, s.deleted)
	return out
}

// ---- test environment ----

type testEnv struct {
	router  *gin.Engine
	users   *fakeUserStore
	posts   *fakePostStore
	history *fakeHistoryStore
	assets  *fakeAssetStore
	tokens  *auth.TokenService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	users := newFakeUserStore()
	posts := newFakePostStore()
	history := newFakeHistoryStore()
	assets := newFakeAssetStore()
	tokens := auth.NewTokenService("test-secret", time.Hour)
	log := zap.NewNop()

	uploads := uploader.New(assets, log, 4)
	authH := NewAuthHandler(users, tokens, log)
	postH := NewPostHandler(posts, history, users, assets, uploads, 20, 15<<20, log)
	userH := NewUserHandler(users, log)

	router := gin.New()
	authRequired := middleware.RequireAuth(tokens, users)

	router.POST("/api/auth/register", authH.Register)
	router.POST("/api/auth/login", authH.Login)
	router.GET("/api/auth/profile", authRequired, authH.Profile)

	router.GET("/api/posts", postH.List)
	router.GET("/api/posts/:postId", postH.Get)
	router.GET("/api/posts/:postId/history", postH.History)

	staff := router.Group("/api/posts", authRequired, middleware.RequireStaff())
	staff.POST("", postH.Create)
	staff.PUT("/:postId", postH.Update)
	staff.POST("/:postId/images", postH.UploadImages)
	staff.PUT("/:postId/images/:imageId", postH.RenameImage)
	staff.DELETE("/:postId/images/:imageId", postH.DeleteImage)

	router.DELETE("/api/posts/:postId", authRequired, middleware.RequireAdmin(), postH.Delete)

	usersGroup := router.Group("/api/users", authRequired)
	usersGroup.POST("/change-password", userH.ChangePassword)
	admin := usersGroup.Group("", middleware.RequireAdmin())
	admin.GET("", userH.List)
	admin.POST("", userH.Create)
	admin.GET("/:userId", userH.Get)
	admin.PUT("/:userId", userH.Update)
	admin.DELETE("/:userId", userH.Delete)

	return &testEnv{
		router:  router,
		users:   users,
		posts:   posts,
		history: history,
		assets:  assets,
		tokens:  tokens,
	}
}

func (e *testEnv) addUser(t *testing.T, username, role string) models.User {
	t.Helper()
	hashed, err := auth.HashPassword("password123")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := models.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hashed,
		Role:         role,
		CreatedAt:    time.Now().Unix(),
		UpdatedAt:    time.Now().Unix(),
	}
	if err := e.users.Create(context.Background(), &user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func (e *testEnv) tokenFor(t *testing.T, user models.User) string {
	t.Helper()
	token, err := e.tokens.Issue(user.ID.Hex())
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func (e *testEnv) addPost(t *testing.T, author models.User, images ...models.PostImage) models.Post {
	t.Helper()
	if images == nil {
		images = []models.PostImage{}
	}
	post := models.Post{
		Title:     "Test post",
		Images:    images,
		Author:    author.ID,
		Status:    models.StatusDraft,
		CreatedAt: time.Now().Unix(),
		UpdatedAt: time.Now().Unix(),
	}
	if err := e.posts.Create(context.Background(), &post); err != nil {
		t.Fatalf("create post: %v", err)
	}
	return post
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func newObjectID(t *testing.T) primitive.ObjectID {
	t.Helper()
	return primitive.NewObjectID()
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v (body: %s)", err, rec.Body.String())
	}
	return resp
}

// multipartUpload builds a multipart body with the given file parts, each
// a (name, content) pair sent under the "images" field with an image/jpeg
// content type, plus imageNames values.
func multipartUpload(t *testing.T, files [][2]string, imageNames []string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range files {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name="images"; filename="%s"`, f[0]))
		header.Set("Content-Type", "image/jpeg")
		part, err := w.CreatePart(header)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := part.Write([]byte(f[1])); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	for _, name := range imageNames {
		if err := w.WriteField("imageNames", name); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, w.FormDataContentType()
}

func (e *testEnv) doMultipart(t *testing.T, path, token string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}
