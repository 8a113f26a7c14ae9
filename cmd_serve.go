package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/spf13/cobra"
	"github.com/yourusername/stockmeta/db"
	"github.com/yourusername/stockmeta/handlers"
	"github.com/yourusername/stockmeta/middleware"
	"github.com/yourusername/stockmeta/models"
	"github.com/yourusername/stockmeta/services"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}

// appDeps are the optional collaborators of the HTTP API.
type appDeps struct {
	exportRepo models.ExportRepositoryInterface
	storage    services.Storage
	withDB     bool
}

func buildApp(cfg *services.Config, log *zap.Logger, deps appDeps) *fiber.App {
	bodyLimit := cfg.Server.BodyLimitMB
	if bodyLimit <= 0 {
		bodyLimit = 100
	}
	app := fiber.New(fiber.Config{
		BodyLimit:    bodyLimit * 1024 * 1024,
		ErrorHandler: customErrorHandler,
	})

	app.Use(fiberlogger.New())
	app.Use(compress.New())
	if len(cfg.Server.CORSOrigins) > 0 {
		app.Use(cors.New(cors.Config{AllowOrigins: strings.Join(cfg.Server.CORSOrigins, ",")}))
	} else {
		app.Use(cors.New())
	}

	if ls, ok := deps.storage.(*services.LocalStorage); ok {
		app.Static("/exports", ls.BaseDir(), fiber.Static{
			Download:      true,
			CacheDuration: 24 * time.Hour,
		})
	}

	authHandler := handlers.NewAuthHandler(cfg.Auth, log)
	exportHandler := handlers.NewExportHandler(deps.exportRepo, deps.storage, cfg.Embed, log)
	protected := middleware.Protected(cfg.Auth.JWTSecret)

	api := app.Group("/api")
	api.Get("/health", handlers.Health)

	if cfg.RateLimiting.Enabled {
		api.Use(limiter.New(limiter.Config{
			Max:        cfg.RateLimiting.Max,
			Expiration: cfg.RateLimiting.Window,
			LimitReached: func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "Too many requests"})
			},
		}))
	}

	api.Post("/token", authHandler.Token)
	api.Post("/embed", protected, exportHandler.Embed)
	api.Post("/sidecar", protected, exportHandler.Sidecar)
	api.Post("/convert", protected, exportHandler.Convert)
	api.Post("/batch", protected, exportHandler.Batch)
	api.Post("/inspect", protected, exportHandler.Inspect)
	if deps.withDB {
		api.Get("/exports", protected, middleware.DBPing(log), exportHandler.ListExports)
	} else {
		api.Get("/exports", protected, exportHandler.ListExports)
	}

	app.Use(func(c *fiber.Ctx) error {
		return fiber.ErrNotFound
	})
	return app
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := services.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.UsesDefaultSecret() {
		logger.Warn("JWT secret is the built-in default; set JWT_SECRET or auth.jwt_secret")
	}
	if len(cfg.Auth.Clients) == 0 {
		logger.Warn("no API clients configured; every token request will be rejected")
	}

	storage, err := services.NewStorageFromConfig(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to configure storage: %w", err)
	}

	deps := appDeps{storage: storage}
	if cfg.Database.URL != "" {
		if err := db.Connect(cfg.Database.URL); err != nil {
			return err
		}
		defer db.Close()
		if err := db.Migrate(); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		deps.exportRepo = models.NewExportRepositoryFrom(db.Conn)
		deps.withDB = true
	} else {
		logger.Info("no database configured; export history disabled")
	}

	app := buildApp(cfg, logger, deps)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", cfg.Server.Address),
			zap.Bool("local_storage", storage.IsLocal()),
			zap.Bool("history", deps.withDB))
		errCh <- app.Listen(cfg.Server.Address)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return app.ShutdownWithContext(shutdownCtx)
	}
}
