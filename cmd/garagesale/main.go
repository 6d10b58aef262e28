package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	authsvc "garagesale/internal/app/services/auth"
	chatsvc "garagesale/internal/app/services/chat"
	domainitem "garagesale/internal/domain/item"
	domainuser "garagesale/internal/domain/user"
	"garagesale/internal/infra/broker/kafka"
	"garagesale/internal/infra/config"
	mongodb "garagesale/internal/infra/db/mongo"
	ginserver "garagesale/internal/infra/http/gin"
	"garagesale/internal/infra/obs"
	"garagesale/internal/infra/security"
	"garagesale/internal/infra/storage/memory"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := getenv("APP_ENV", "dev")
	logger := obs.NewLogger(env)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("configuration invalid", "error", err)
		os.Exit(1)
	}

	app, cleanup, err := buildApplication(ctx, cfg, logger)
	if err != nil {
		logger.Error("application bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	if err := app.loadFixtures(ctx, cfg, logger); err != nil {
		logger.Warn("fixtures load failed", "error", err)
	}

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
	ready    func() error
	users    domainuser.Repository
	items    domainitem.Repository
	passwd   authsvc.PasswordHasher
}

func buildApplication(ctx context.Context, cfg config.Config, logger *slog.Logger) (application, func(), error) {
	cleanup := func() {}

	var (
		users domainuser.Repository
		items domainitem.Repository
	)

	app := application{ready: func() error { return nil }}

	hasher := security.BcryptHasher{}
	app.passwd = hasher

	var service chatsvc.Service

	switch cfg.StorageMode {
	case "mongo":
		client, err := mongodb.New(cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return application{}, cleanup, fmt.Errorf("mongo connect: %w", err)
		}
		chatsRepo := mongodb.NewChatRepository(client.DB)
		usersRepo := mongodb.NewUserRepository(client.DB)
		if err := chatsRepo.EnsureIndexes(ctx); err != nil {
			logger.Warn("chat index creation failed", "error", err)
		}
		if err := usersRepo.EnsureIndexes(ctx); err != nil {
			logger.Warn("user index creation failed", "error", err)
		}
		users = usersRepo
		items = mongodb.NewItemRepository(client.DB)
		service.Chats = chatsRepo
		app.ready = func() error { return client.Ping(context.Background()) }
	default:
		users = memory.NewUserRepository()
		items = memory.NewItemRepository()
		service.Chats = memory.NewChatRepository()
	}
	app.users = users
	app.items = items

	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, nil)
		if err != nil {
			logger.Warn("kafka producer unavailable, chat events disabled", "error", err)
		} else {
			service.Publisher = producer
			service.TopicPrefix = cfg.KafkaTopicPrefix
			cleanup = func() {
				if err := producer.Close(); err != nil {
					logger.Warn("kafka producer close failed", "error", err)
				}
			}
		}
	}

	service.Users = users
	service.Items = items
	service.Logger = logger

	authService := &authsvc.Service{
		Users:      users,
		Sessions:   memory.NewSessionStore(),
		Passwords:  hasher,
		Tokens:     security.RandomTokenGenerator{},
		SessionTTL: cfg.SessionTTL,
		Logger:     logger,
	}

	app.handlers = ginserver.Handlers{
		Auth: ginserver.AuthHandler{Service: authService, Logger: logger},
		Chat: ginserver.ChatHandler{Service: &service, Logger: logger},
		AuthMiddleware: ginserver.AuthMiddleware{
			Service: authService,
			Logger:  logger,
		}.Handle,
	}
	return app, cleanup, nil
}

func (a application) loadFixtures(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if cfg.UserFixtures != "" {
		if err := a.loadUserFixtures(ctx, cfg.UserFixtures, logger); err != nil {
			return err
		}
	}
	if cfg.ItemFixtures != "" {
		if err := a.loadItemFixtures(ctx, cfg.ItemFixtures, logger); err != nil {
			return err
		}
	}
	return nil
}

func (a application) loadUserFixtures(ctx context.Context, path string, logger *slog.Logger) error {
	var fixtures []userFixture
	if err := readFixtures(path, &fixtures, logger); err != nil || fixtures == nil {
		return err
	}
	for _, fx := range fixtures {
		hash, err := a.passwd.Hash(fx.Password)
		if err != nil {
			logger.Error("fixture password hash failed", "user_id", fx.ID, "error", err)
			continue
		}
		user, err := domainuser.NewUser(domainuser.CreateParams{
			ID:           domainuser.ID(fx.ID),
			Email:        fx.Email,
			Name:         fx.Name,
			PasswordHash: hash,
		})
		if err != nil {
			logger.Error("user fixture invalid", "user_id", fx.ID, "error", err)
			continue
		}
		if err := a.users.Save(ctx, user); err != nil {
			logger.Error("cannot store fixture user", "user_id", fx.ID, "error", err)
			continue
		}
		logger.Info("user fixture imported", "user_id", user.ID)
	}
	return nil
}

func (a application) loadItemFixtures(ctx context.Context, path string, logger *slog.Logger) error {
	var fixtures []itemFixture
	if err := readFixtures(path, &fixtures, logger); err != nil || fixtures == nil {
		return err
	}
	for _, fx := range fixtures {
		item, err := domainitem.NewItem(domainitem.CreateParams{
			ID:         domainitem.ID(fx.ID),
			Title:      fx.Title,
			Category:   fx.Category,
			PriceCents: fx.PriceCents,
			Seller:     domainuser.ID(fx.SellerID),
			Status:     domainitem.Status(fx.Status),
		})
		if err != nil {
			logger.Error("item fixture invalid", "item_id", fx.ID, "error", err)
			continue
		}
		if err := a.items.Save(ctx, item); err != nil {
			logger.Error("cannot store fixture item", "item_id", fx.ID, "error", err)
			continue
		}
		logger.Info("item fixture imported", "item_id", item.ID)
	}
	return nil
}

func readFixtures(path string, out any, logger *slog.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("fixtures file not found, skipping", "path", path)
			return nil
		}
		return fmt.Errorf("read fixtures: %w", err)
	}
	if len(data) == 0 {
		logger.Warn("fixtures file empty", "path", path)
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode fixtures: %w", err)
	}
	return nil
}

type userFixture struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type itemFixture struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Category   string `json:"category"`
	PriceCents int64  `json:"price_cents"`
	SellerID   string `json:"seller_id"`
	Status     string `json:"status"`
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
