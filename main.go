package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"blogcms/auth"
	"blogcms/config"
	"blogcms/database"
	"blogcms/handlers"
	"blogcms/routes"
	"blogcms/storage"
	"blogcms/store"
	"blogcms/uploader"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	if cfg.GinMode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	log, err := buildLogger(cfg.GinMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	log.Info("starting blogcms server")

	// Mongo occasionally needs a moment on cold deploys; retry before
	// giving up.
	var client *mongo.Client
	for attempt := 1; ; attempt++ {
		c, err := database.Connect(cfg.MongoURI)
		if err == nil {
			client = c
			break
		}
		if attempt >= 3 {
			log.Fatal("failed to connect to MongoDB", zap.Error(err))
		}
		log.Warn("MongoDB connection attempt failed, retrying",
			zap.Int("attempt", attempt), zap.Error(err))
		time.Sleep(2 * time.Second)
	}
	defer database.Disconnect(client)

	log.Info("MongoDB connected")

	db := client.Database(cfg.Database)

	indexCtx, indexCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := database.EnsureIndexes(indexCtx, db); err != nil {
		log.Fatal("failed to create indexes", zap.Error(err))
	}
	indexCancel()

	userStore := store.NewMongoUserStore(db)
	postStore := store.NewMongoPostStore(db)
	historyStore := store.NewMongoHistoryStore(db)

	assets, err := storage.NewCloudinaryStore(cfg, log)
	if err != nil {
		log.Fatal("failed to configure asset store", zap.Error(err))
	}

	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	uploads := uploader.New(assets, log, cfg.UploadConcurrency)

	router := routes.SetupRouter(routes.Deps{
		Config: cfg,
		Log:    log,
		Tokens: tokens,
		Users:  userStore,
		Auth:   handlers.NewAuthHandler(userStore, tokens, log),
		Posts:  handlers.NewPostHandler(postStore, historyStore, userStore, assets, uploads, cfg.MaxUploadFiles, cfg.MaxUploadBytes, log),
		User:   handlers.NewUserHandler(userStore, log),
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("forced shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}

func buildLogger(mode string) (*zap.Logger, error) {
	if mode == gin.ReleaseMode {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
