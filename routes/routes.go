package routes

import (
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"blogcms/auth"
	"blogcms/config"
	"blogcms/handlers"
	"blogcms/middleware"
	"blogcms/store"
)

// Deps carries everything the router wires together.
type Deps struct {
	Config *config.Config
	Log    *zap.Logger
	Tokens *auth.TokenService
	Users  store.UserStore
	Auth   *handlers.AuthHandler
	Posts  *handlers.PostHandler
	User   *handlers.UserHandler
}

func SetupRouter(d Deps) *gin.Engine {
	router := gin.New()

	router.Use(ginzap.Ginzap(d.Log, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(d.Log, true))
	router.Use(middleware.RequestID())
	router.Use(middleware.RateLimit(d.Config.RateLimit, d.Config.RateLimitWindow))

	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Requested-With"},
		ExposeHeaders:   []string{"Content-Length", "Content-Type", middleware.RequestIDHeader},
		MaxAge:          12 * time.Hour,
	}))

	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"success": true,
			"message": "Server is running",
			"time":    time.Now().Unix(),
		})
	})

	authRequired := middleware.RequireAuth(d.Tokens, d.Users)

	// Auth
	router.POST("/api/auth/register", d.Auth.Register)
	router.POST("/api/auth/login", d.Auth.Login)
	router.GET("/api/auth/profile", authRequired, d.Auth.Profile)

	// Posts: reads are public, mutations need staff, deletion needs admin
	router.GET("/api/posts", d.Posts.List)
	router.GET("/api/posts/:postId", d.Posts.Get)
	router.GET("/api/posts/:postId/history", d.Posts.History)

	staff := router.Group("/api/posts", authRequired, middleware.RequireStaff())
	staff.POST("", d.Posts.Create)
	staff.PUT("/:postId", d.Posts.Update)
	staff.POST("/:postId/images", d.Posts.UploadImages)
	staff.PUT("/:postId/images/:imageId", d.Posts.RenameImage)
	staff.DELETE("/:postId/images/:imageId", d.Posts.DeleteImage)

	router.DELETE("/api/posts/:postId", authRequired, middleware.RequireAdmin(), d.Posts.Delete)

	// Users: admin only, except change-password
	users := router.Group("/api/users", authRequired)
	users.POST("/change-password", d.User.ChangePassword)

	admin := users.Group("", middleware.RequireAdmin())
	admin.GET("", d.User.List)
	admin.POST("", d.User.Create)
	admin.GET("/:userId", d.User.Get)
	admin.PUT("/:userId", d.User.Update)
	admin.DELETE("/:userId", d.User.Delete)

	router.NoRoute(func(c *gin.Context) {
		if len(c.Request.URL.Path) >= 4 && c.Request.URL.Path[:4] == "/api" {
			c.JSON(404, gin.H{
				"success": false,
				"error":   "Route not found",
				"path":    c.Request.URL.Path,
			})
			return
		}
		c.Next()
	})

	return router
}
