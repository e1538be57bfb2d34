package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	authsvc "passionautos/internal/app/services/auth"
	"passionautos/internal/chat"
	"passionautos/internal/infra/broker/kafka"
	"passionautos/internal/infra/config"
	mongodb "passionautos/internal/infra/db/mongo"
	ginserver "passionautos/internal/infra/http/gin"
	"passionautos/internal/infra/obs"
	"passionautos/internal/infra/security"
	"passionautos/internal/infra/storage/memory"
	"passionautos/internal/infra/storage/s3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration invalid", "error", err)
		os.Exit(1)
	}
	logger := obs.NewLogger(cfg)

	app, cleanup, err := buildApplication(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{
		Ready: app.ready,
	}, app.handlers)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("HTTP server starting", "addr", cfg.HTTPAddr, "storage", cfg.StorageMode)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("HTTP server stopped")
}

type application struct {
	handlers ginserver.Handlers
	ready    func(ctx context.Context) error
}

func buildApplication(ctx context.Context, cfg config.Config, logger *slog.Logger) (application, func(), error) {
	hasher := security.BcryptHasher{Cost: cfg.BcryptCost}
	tokens := security.NewTokenService(cfg.JWTSecret, cfg.JWTTTL)

	var (
		store   ginserver.ChatStore
		users   authsvc.UserStore
		catalog ginserver.VehicleStore
		feed    chat.Feed
		ready   func(ctx context.Context) error
		cleanup = func() {}
	)

	switch cfg.StorageMode {
	case "mongo":
		client, err := mongodb.New(cfg.MongoURI, cfg.MongoDB, cfg.MongoConnectTimeout)
		if err != nil {
			return application{}, nil, err
		}
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, nil)
		if err != nil {
			return application{}, nil, err
		}
		chatStore := mongodb.NewChatStore(client.DB, producer, logger)
		store, users, catalog = chatStore, chatStore, chatStore
		feed = kafka.NewFeed(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		ready = client.Ping
		cleanup = func() {
			if err := producer.Close(); err != nil {
				logger.Warn("kafka producer close failed", "error", err)
			}
		}
	default:
		memStore := memory.NewStore()
		seedDemoData(ctx, memStore, hasher, logger)
		store, users, catalog, feed = memStore, memStore, memStore, memStore
	}

	var uploader s3.Uploader = s3.NoopUploader{}
	if cfg.S3Endpoint != "" {
		client, err := s3.NewClient(cfg.S3Endpoint, cfg.S3UseSSL, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket, cfg.S3PublicEndpoint, logger)
		if err != nil {
			logger.Warn("photo storage disabled", "error", err)
		} else {
			uploader = client
		}
	}

	authService := &authsvc.Service{Users: users, Hasher: hasher, Tokens: tokens, Logger: logger}
	handlers := ginserver.Handlers{
		Auth:           ginserver.AuthHandler{Service: authService, Logger: logger},
		Chat:           ginserver.ChatHandler{Store: store, Feed: feed, Logger: logger},
		Vehicle:        ginserver.VehicleHandler{Store: catalog, Uploader: uploader, Logger: logger},
		AuthMiddleware: ginserver.AuthMiddleware{Service: authService, Logger: logger}.Handle,
	}
	return application{handlers: handlers, ready: ready}, cleanup, nil
}

// seedDemoData populates the in-memory store with two accounts, a listing,
// and a conversation so the API is explorable without external services.
// Both accounts use the password "motdepasse".
func seedDemoData(ctx context.Context, store *memory.Store, hasher security.BcryptHasher, logger *slog.Logger) {
	hash, err := hasher.Hash("motdepasse")
	if err != nil {
		logger.Warn("demo seed skipped", "error", err)
		return
	}
	marie, err := store.CreateUser(ctx, chat.UserAccount{
		ID:           "user-marie",
		Email:        "marie@exemple.fr",
		FirstName:    "Marie",
		LastName:     "Dubois",
		PasswordHash: hash,
	})
	if err != nil {
		logger.Warn("demo seed skipped", "error", err)
		return
	}
	julien, err := store.CreateUser(ctx, chat.UserAccount{
		ID:           "user-julien",
		Email:        "julien@exemple.fr",
		FirstName:    "Julien",
		LastName:     "Martin",
		PasswordHash: hash,
	})
	if err != nil {
		logger.Warn("demo seed skipped", "error", err)
		return
	}

	store.SaveVehicle(chat.VehicleSummary{
		ID:      "vehicle-306",
		OwnerID: marie.ID,
		Title:   "Peugeot 306 Cabriolet 1999",
	})

	now := time.Now().UTC()
	store.SaveConversation(chat.Conversation{
		ID:        "conv-demo",
		VehicleID: "vehicle-306",
		Type:      chat.ConversationVehicle,
		CreatedAt: now.Add(-time.Hour),
	}, marie.ID, julien.ID)
	store.SeedMessage(chat.Message{
		ID:             "msg-demo-1",
		ConversationID: "conv-demo",
		FromUserID:     julien.ID,
		ToUserID:       marie.ID,
		VehicleID:      "vehicle-306",
		Content:        "Bonjour, la voiture est-elle toujours disponible ?",
		CreatedAt:      now.Add(-30 * time.Minute),
	})
	logger.Info("demo data seeded", "users", 2, "vehicles", 1, "conversations", 1)
}
