package router

import (
	"context"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/ManuelReschke/SaaSFox/app/controllers"
	"github.com/ManuelReschke/SaaSFox/internal/pkg/cache"
	"github.com/ManuelReschke/SaaSFox/internal/pkg/env"
	"github.com/ManuelReschke/SaaSFox/internal/pkg/middleware"
	"github.com/ManuelReschke/SaaSFox/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"
)

const webhookPrefix = "/api/webhooks/"

type ApiRouter struct {
	verifier *middleware.TokenVerifier
	storage  fiber.Storage
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	// Stripe signs the raw body and retries on its own schedule, so the
	// webhook sits outside the limiter and the auth middleware.
	webhooks := app.Group("/api/webhooks")
	webhooks.Post("/stripe", controllers.HandleStripeWebhook)

	api := app.Group("/api",
		limiter.New(h.limiterConfig()),
		middleware.UserContextMiddleware(h.verifier),
	)
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})
	api.Get("/pricing", controllers.HandleGetPricing)

	stripe := api.Group("/stripe", middleware.RequireAPIAuth)
	stripe.Post("/checkout", controllers.HandleCreateCheckoutSession)
	stripe.Post("/portal", controllers.HandleCreatePortalSession)

	api.Get("/subscription", middleware.RequireAPIAuth, controllers.HandleGetSubscription)

	profiles := api.Group("/profiles", middleware.RequireAPIAuth)
	profiles.Get("/", controllers.HandleListProfiles)
	profiles.Post("/", controllers.HandleCreateProfile)
	profiles.Get("/:id", controllers.HandleGetProfile)
	profiles.Put("/:id", controllers.HandleUpdateProfile)
	profiles.Patch("/:id", controllers.HandleUpdateProfile)
	profiles.Delete("/:id", controllers.HandleDeleteProfile)
}

func (h ApiRouter) limiterConfig() limiter.Config {
	return limiter.Config{
		Next: func(c *fiber.Ctx) bool {
			return strings.HasPrefix(c.Path(), webhookPrefix)
		},
		Max:          env.GetInt("API_RATE_LIMIT", 60),
		Expiration:   env.GetDuration("API_RATE_WINDOW", time.Minute),
		KeyGenerator: controllers.ClientKey,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": fiber.Map{
				"message": "Too many requests",
				"code":    "RATE_LIMITED",
			}})
		},
		Storage: h.storage,
	}
}

// NewApiRouter wires the token verifier from AUTH_JWT_* and, when redis
// answers, a shared limiter storage so limits hold across instances.
func NewApiRouter() *ApiRouter {
	verifier := middleware.NewTokenVerifierFromEnv()
	if verifier == nil {
		log.Warn("[Router] AUTH_JWT_SECRET not set, authenticated API routes will reject every request")
	}
	return &ApiRouter{verifier: verifier, storage: newLimiterStorage()}
}

func newLimiterStorage() fiber.Storage {
	client := cache.GetClient()
	if client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := cache.Ping(ctx); err != nil {
		log.Warnf("[Router] Redis unavailable, rate limiter uses memory storage: %v", err)
		return nil
	}

	host, port := "localhost", cache.Port()
	if h, p, err := net.SplitHostPort(client.Options().Addr); err == nil {
		host = h
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}

	// Separate database for limiter counters
	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: client.Options().Password,
		Database: env.GetInt("LIMITER_CACHE_DB", 1),
		Reset:    false,
	})
}

// notFound answers unknown /api routes with the error envelope.
func notFound(c *fiber.Ctx) error {
	return response.Error(c, response.ErrNotFound("Route not found"))
}
