package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/SaaSFox/app/repository"
	"github.com/ManuelReschke/SaaSFox/internal/pkg/billing"
	"github.com/ManuelReschke/SaaSFox/internal/pkg/cache"
	"github.com/ManuelReschke/SaaSFox/internal/pkg/catalogsync"
	"github.com/ManuelReschke/SaaSFox/internal/pkg/database"
	"github.com/ManuelReschke/SaaSFox/internal/pkg/env"
	"github.com/ManuelReschke/SaaSFox/internal/pkg/router"
	fiberlog "github.com/gofiber/fiber/v2/log"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()
	repository.InitializeFactory(database.GetDB())

	// webhook payloads are small, keep the limit tight
	app := fiber.New(fiber.Config{
		BodyLimit: 1 << 20,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// fiber metrics
	if user, pass := env.GetEnv("METRICS_USER", ""), env.GetEnv("METRICS_PASSWORD", ""); user != "" && pass != "" {
		app.Get("/metrics", basicauth.New(basicauth.Config{
			Users: map[string]string{user: pass},
		}), monitor.New())
	}

	// SWAGGER / OPENAPI
	app.Use(swagger.New(swagger.Config{
		BasePath: "/docs/api/",
		FilePath: "./public/docs/v1/openapi.yml",
		Path:     "v1",
	}))

	// ROUTER
	router.InstallRouter(app)

	startCatalogSync()

	return app
}

// startCatalogSync schedules the Stripe catalog mirror when CATALOG_SYNC_SCHEDULE is set.
func startCatalogSync() {
	spec := env.GetEnv("CATALOG_SYNC_SCHEDULE", "")
	if spec == "" {
		return
	}
	gateway := billing.NewStripeGatewayFromEnv()
	if gateway == nil {
		fiberlog.Warn("[CatalogSync] CATALOG_SYNC_SCHEDULE set without STRIPE_SECRET_KEY, not scheduling")
		return
	}
	svc := billing.NewServiceFromDB(database.GetDB(), gateway)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	client := cache.GetClient()
	if err := cache.Ping(ctx); err != nil {
		fiberlog.Warnf("[CatalogSync] Redis unavailable, syncing without lock: %v", err)
		client = nil
	}
	job := catalogsync.New(svc, client).WithTimeout(env.GetDuration("CATALOG_SYNC_TIMEOUT", 5*time.Minute))
	if _, err := job.Schedule(spec); err != nil {
		fiberlog.Errorf("[CatalogSync] Invalid schedule %q: %v", spec, err)
		return
	}
	fiberlog.Infof("[CatalogSync] Scheduled with %q", spec)
}
