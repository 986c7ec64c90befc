package main

import (
	"context"
	"fmt"
	"os"

	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"caltrack/internal/api"
	"caltrack/internal/platform/fallback"
	"caltrack/internal/platform/gemini"
	"caltrack/internal/tracker"
)

// Config represents the application configuration. Credentials are sourced
// from the environment only; there are no literal secrets in the codebase.
type Config struct {
	GeminiAPIKey string
	DatabaseURL  string
	Port         string
}

func loadConfig() (Config, error) {
	// .env is a development convenience; deployments set the environment
	// directly.
	_ = godotenv.Load()

	cfg := Config{
		GeminiAPIKey: os.Getenv("GOOGLE_API_KEY"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		Port:         os.Getenv("PORT"),
	}
	if cfg.GeminiAPIKey == "" {
		return cfg, fmt.Errorf("GOOGLE_API_KEY is required")
	}
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Port == "" {
		cfg.Port = "8000"
	}
	return cfg, nil
}

func main() {
	ctx := context.Background()

	config, err := loadConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	geminiClient, err := gemini.NewClient(ctx, config.GeminiAPIKey)
	if err != nil {
		log.Fatalf("error creating gemini client: %v", err)
	}

	fallbackClient := fallback.NewClient()

	logStore, err := tracker.NewPostgresStore(config.DatabaseURL)
	if err != nil {
		log.Fatalf("error creating postgres store: %v", err)
	}
	defer logStore.Close()

	handler := api.NewHandler(geminiClient, fallbackClient, logStore)

	r := gin.Default()

	// Configure CORS middleware
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:   []string{"Content-Length"},
		MaxAge:          12 * time.Hour,
	}))

	r.GET("/", handler.Health)
	r.GET("/api/search", handler.Search)
	r.POST("/api/analyze-image", handler.AnalyzeImage)
	r.GET("/api/streak", handler.Streak)
	r.POST("/api/log", handler.LogMeal)
	r.DELETE("/api/log/:entry_id", handler.DeleteMeal)
	r.GET("/api/day", handler.DayView)

	if err := r.Run(":" + config.Port); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
