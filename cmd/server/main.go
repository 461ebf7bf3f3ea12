package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/DocPay/app/controllers"
	"github.com/ManuelReschke/DocPay/internal/pkg/archive"
	"github.com/ManuelReschke/DocPay/internal/pkg/cache"
	"github.com/ManuelReschke/DocPay/internal/pkg/config"
	"github.com/ManuelReschke/DocPay/internal/pkg/database"
	"github.com/ManuelReschke/DocPay/internal/pkg/env"
	"github.com/ManuelReschke/DocPay/internal/pkg/jobqueue"
	"github.com/ManuelReschke/DocPay/internal/pkg/payment"
	"github.com/ManuelReschke/DocPay/internal/pkg/paymongo"
	"github.com/ManuelReschke/DocPay/internal/pkg/router"
)

const openAPIFile = "public/docs/v1/openapi.yml"

func main() {
	if path := env.SetupEnvFile(); path != "" {
		log.Printf("Loaded environment from %s", path)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if env.IsDev() {
		fiberlog.SetLevel(fiberlog.LevelDebug)
	}

	app, manager, err := NewApplication(cfg)
	if err != nil {
		log.Fatal(err)
	}
	manager.Start()

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			log.Fatal(err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	if err := app.ShutdownWithTimeout(20 * time.Second); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}
	manager.Stop()
}

// NewApplication wires the database, Redis, the payment pipeline and the
// background manager into a fiber app. The manager is returned unstarted.
func NewApplication(cfg *config.Config) (*fiber.App, *jobqueue.Manager, error) {
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("database: %w", err)
	}
	redisClient := cache.NewClient(cfg.Cache)

	if cfg.PayMongo.WebhookSecret == "" {
		fiberlog.Warn("[Webhook] PAYMONGO_WEBHOOK_SECRET is empty, every delivery will be rejected")
	}
	verifier := paymongo.NewVerifier(cfg.PayMongo.WebhookSecret, cfg.PayMongo.SignatureTolerance, cfg.PayMongo.LiveMode)
	svc := payment.NewServiceFromDB(db, verifier, cfg.Reconcile.BatchSize)

	queue := jobqueue.NewQueue(redisClient, cfg.JobQueue.Workers, cfg.JobQueue.MaxRetries)
	manager := jobqueue.NewManager(redisClient, queue, svc.Repair, cfg.Reconcile)

	if cfg.Archive.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		store, err := archive.NewClient(ctx, cfg.Archive, cfg.App.Env)
		cancel()
		if err != nil {
			return nil, nil, fmt.Errorf("receipt archive: %w", err)
		}
		queue.Register(jobqueue.JobTypeReceiptArchive, jobqueue.NewReceiptArchiveProcessor(svc, store))
		svc.OnReceiptIssued(jobqueue.ReceiptArchiveHook(queue))
	}

	app := fiber.New(fiber.Config{
		AppName:   "DocPay",
		BodyLimit: 1 << 20,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	var limiterStorage fiber.Storage
	if redisReachable(redisClient) {
		limiterStorage = cache.NewFiberStorage(cfg.Cache, cache.LimiterDB)
	}

	if cfg.Admin.Enabled() {
		// fiber metrics
		app.Get("/metrics", basicauth.New(basicauth.Config{
			Users: map[string]string{cfg.Admin.User: cfg.Admin.Password},
		}), monitor.New())
	}

	// SWAGGER / OPENAPI
	if _, err := os.Stat(openAPIFile); err == nil {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: openAPIFile,
			Path:     "v1",
		}))
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, nil, err
	}

	// ROUTER
	router.InstallRouter(app, router.Dependencies{
		Webhook:        controllers.NewWebhookController(svc),
		Admin:          controllers.NewPaymentAdminController(svc, manager),
		Auth:           cfg.Admin,
		LimiterStorage: limiterStorage,
	})

	return app, manager, nil
}

func redisReachable(client *redis.Client) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return client.Ping(ctx).Err() == nil
}
