package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	log "github.com/sirupsen/logrus"

	"erp-rules/internal/admin"
	"erp-rules/internal/auth"
	"erp-rules/internal/config"
	"erp-rules/internal/engine"
	"erp-rules/internal/instrument"
	"erp-rules/internal/logging"
	"erp-rules/internal/metadata"
	"erp-rules/internal/scheduler"
	"erp-rules/internal/store"
)

func main() {
	ctx := context.Background()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Logging
	logCloser, err := logging.Setup(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logCloser.Close()
	log.Printf("Config loaded (port: %d, driver: %s, db: %s)", cfg.Server.Port, cfg.Database.Driver, cfg.Database.Name)

	// 3. Connect to database
	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	// 4. Bootstrap system tables
	if err := db.Bootstrap(ctx); err != nil {
		log.Fatalf("Failed to bootstrap system tables: %v", err)
	}
	log.Println("System tables ready")

	// 5. Create registry and load rules
	rules := store.NewSQLRuleStore(db)
	reg := metadata.NewRegistry()
	if err := metadata.LoadAll(ctx, rules, reg); err != nil {
		log.Warnf("Failed to load rules: %v", err)
	}

	// 6. Instrumentation
	var (
		eventBuffer  *instrument.EventBuffer
		eventHandler *instrument.EventHandler
	)
	if cfg.Instrumentation.Enabled {
		eventBuffer = instrument.NewEventBuffer(db.DB, db.Dialect, cfg.Instrumentation.BufferSize, cfg.Instrumentation.FlushIntervalMs)
		defer eventBuffer.Stop()
		eventHandler = instrument.NewEventHandler(db.DB, db.Dialect)
	}

	// 7. Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: engine.ErrorHandler,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
		Output: log.StandardLogger().Out,
	}))
	app.Use(instrument.Middleware(cfg.Instrumentation, eventBuffer))

	// 8. Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "rules": len(reg.AllRules())})
	})

	authMW := auth.AuthMiddleware(cfg.JWTSecret)
	adminMW := auth.RequireAdmin()

	// 9. Admin routes (auth + admin role)
	adminHandler := admin.NewHandler(rules, reg, eventHandler)
	admin.RegisterAdminRoutes(app, adminHandler, authMW, adminMW)

	// 10. Execution routes (auth)
	svc := engine.NewService(rules, reg)
	engine.RegisterExecutionRoutes(app, engine.NewHandler(svc, cfg.Engine.HookTimeout()), authMW)

	// 11. Background reload and event cleanup
	sched := scheduler.New(rules, reg, cfg.Engine).
		WithEventCleanup(db.DB, db.Dialect, cfg.Instrumentation)
	sched.Start()
	defer sched.Stop()

	// 12. Start server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	go func() {
		log.Printf("Starting server on %s", addr)
		if err := app.Listen(addr); err != nil {
			log.Errorf("server stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Errorf("shutdown: %v", err)
	}
}
