package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/suarakita/server/adapters/mongo"
	"github.com/suarakita/server/adapters/stt"
	"github.com/suarakita/server/adapters/upstream"
	"github.com/suarakita/server/domain/repositories"
	"github.com/suarakita/server/internal/api"
	"github.com/suarakita/server/internal/auth"
	"github.com/suarakita/server/internal/config"
	"github.com/suarakita/server/internal/relay"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	signer, err := auth.NewSigner(cfg.JWTSecret, 24*time.Hour)
	if err != nil {
		logger.Fatal("Failed to initialize token signer", zap.Error(err))
	}

	// Conversation storage is optional; without it the relay still works,
	// transcripts just never leave the session.
	var conversations repositories.ConversationRepository
	var mongoClient *mongo.Client
	if cfg.MongoURI != "" {
		mongoClient, err = mongo.NewClient(cfg.MongoURI, cfg.MongoDatabase, logger)
		if err != nil {
			logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
		}
		conversations = mongo.NewConversationRepository(mongoClient.Database)
	} else {
		logger.Warn("MONGODB_URI not set, transcript storage disabled")
	}

	dialer := buildDialer(cfg, logger)

	var fallback repositories.SpeechToText
	if cfg.STTFallback {
		fallback = stt.NewGoogleSpeechToText()
		logger.Info("Fallback transcription enabled")
	}

	// Create Echo instance
	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	hub := relay.NewHub(dialer, conversations, fallback, relay.SessionDefaults(), logger)
	go hub.Run()

	api.InitRoutes(e, hub, signer, conversations, cfg.AdminSecret, logger)

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Relay server started",
		zap.String("port", cfg.Port),
		zap.String("provider", cfg.UpstreamProvider))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}
	if mongoClient != nil {
		mongoClient.Close(ctx)
	}

	logger.Info("Server exited")
}

func buildDialer(cfg *config.Config, logger *zap.Logger) repositories.UpstreamDialer {
	switch cfg.UpstreamProvider {
	case config.ProviderGemini:
		apiKey := cfg.GeminiAPIKey
		if apiKey == "" {
			apiKey = cfg.UpstreamAPIKey
		}
		return upstream.NewGeminiDialer(apiKey, cfg.UpstreamModel, relay.SessionDefaults(), logger)
	default:
		return upstream.NewOpenAIDialer(cfg.UpstreamURL, cfg.UpstreamModel, cfg.UpstreamAPIKey, logger)
	}
}
