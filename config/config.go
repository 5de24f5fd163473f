package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every env-derived setting the server needs. It is built once
// in main and passed by reference into constructors; business logic never
// reads the environment directly.
type Config struct {
	Port    string
	GinMode string

	MongoURI string
	Database string

	JWTSecret string
	TokenTTL  time.Duration

	CloudinaryURL    string
	CloudinaryFolder string

	RateLimit       int
	RateLimitWindow time.Duration

	UploadConcurrency int
	MaxUploadFiles    int
	MaxUploadBytes    int64
}

// Load reads the environment and validates the required variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:    getenv("PORT", "8080"),
		GinMode: os.Getenv("GIN_MODE"),

		MongoURI: os.Getenv("MONGODB_URI"),
		Database: getenv("MONGODB_DATABASE", "blogcms"),

		JWTSecret: os.Getenv("JWT_SECRET"),
		TokenTTL:  7 * 24 * time.Hour,

		CloudinaryURL:    os.Getenv("CLOUDINARY_URL"),
		CloudinaryFolder: getenv("CLOUDINARY_FOLDER", "blog-images"),

		RateLimit:       getint("RATE_LIMIT", 60),
		RateLimitWindow: time.Minute,

		UploadConcurrency: getint("UPLOAD_CONCURRENCY", 4),
		MaxUploadFiles:    20,
		MaxUploadBytes:    15 << 20, // per file
	}

	if cfg.MongoURI == "" || cfg.JWTSecret == "" {
		return nil, fmt.Errorf("MONGODB_URI and JWT_SECRET must be set")
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
