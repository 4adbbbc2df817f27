package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/ManuelReschke/SaaSFox/app/models"
	"github.com/ManuelReschke/SaaSFox/internal/pkg/billing"
	"github.com/ManuelReschke/SaaSFox/internal/pkg/cache"
	"github.com/ManuelReschke/SaaSFox/internal/pkg/env"
	"github.com/ManuelReschke/SaaSFox/internal/pkg/response"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

type checkoutRequest struct {
	PriceID    string `json:"price_id" validate:"required"`
	SuccessURL string `json:"success_url" validate:"required,url"`
	CancelURL  string `json:"cancel_url" validate:"required,url"`
}

type portalRequest struct {
	ReturnURL string `json:"return_url" validate:"required,url"`
}

// HandleCreateCheckoutSession starts a subscription checkout for the caller.
func HandleCreateCheckoutSession(c *fiber.Ctx) error {
	var req checkoutRequest
	if err := parseBody(c, &req); err != nil {
		return response.Error(c, err)
	}

	svc, err := billingService()
	if err != nil {
		return response.Error(c, err)
	}
	ctx, cancel := requestContext(c, apiRequestTimeout)
	defer cancel()

	user := currentUser(c)
	session, err := svc.CreateCheckoutSession(ctx, billing.CheckoutInput{
		UserID:     user.UserID,
		Email:      user.Email,
		PriceID:    req.PriceID,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
	})
	if err != nil {
		return response.Error(c, response.ErrInternal("An error occurred while creating the checkout session", err))
	}
	return response.Data(c, fiber.StatusOK, session)
}

// HandleCreatePortalSession opens the Stripe customer portal for the caller.
func HandleCreatePortalSession(c *fiber.Ctx) error {
	var req portalRequest
	if err := parseBody(c, &req); err != nil {
		return response.Error(c, err)
	}

	svc, err := billingService()
	if err != nil {
		return response.Error(c, err)
	}
	ctx, cancel := requestContext(c, apiRequestTimeout)
	defer cancel()

	url, err := svc.CreatePortalSession(ctx, currentUser(c).UserID, req.ReturnURL)
	if errors.Is(err, billing.ErrNoStripeCustomer) {
		return response.Error(c, response.ErrNotFound("No associated Stripe customer found"))
	}
	if err != nil {
		return response.Error(c, response.ErrInternal("An error occurred while creating the portal session", err))
	}
	return response.Data(c, fiber.StatusOK, fiber.Map{"url": url})
}

// HandleGetSubscription returns the caller's active subscription or null.
func HandleGetSubscription(c *fiber.Ctx) error {
	svc, err := billingService()
	if err != nil {
		return response.Error(c, err)
	}
	ctx, cancel := requestContext(c, apiRequestTimeout)
	defer cancel()

	sub, err := svc.GetActiveSubscription(ctx, currentUser(c).UserID)
	if errors.Is(err, billing.ErrNoActiveSubscription) {
		return response.Data(c, fiber.StatusOK, nil)
	}
	if err != nil {
		return response.Error(c, err)
	}
	return response.Data(c, fiber.StatusOK, sub)
}

// HandleGetPricing lists active products with their active prices. The
// result is cached in redis when available.
func HandleGetPricing(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c, apiRequestTimeout)
	defer cancel()

	var products []models.Product
	err := cache.GetJSON(ctx, billing.PricingCacheKey, &products)
	if err == nil {
		return response.Data(c, fiber.StatusOK, products)
	}
	if !cache.IsMiss(err) && !errors.Is(err, cache.ErrUnavailable) {
		log.Warnf("[Pricing] Cache read failed: %v", err)
	}

	svc, err := billingService()
	if err != nil {
		return response.Error(c, err)
	}
	products, err = svc.ListPricing(ctx)
	if err != nil {
		return response.Error(c, err)
	}

	ttl := env.GetDuration("PRICING_CACHE_TTL", 5*time.Minute)
	if err := cache.SetJSON(ctx, billing.PricingCacheKey, products, ttl); err != nil && !errors.Is(err, cache.ErrUnavailable) {
		log.Warnf("[Pricing] Cache write failed: %v", err)
	}
	return response.Data(c, fiber.StatusOK, products)
}

// InvalidatePricingCache drops the cached pricing list after a catalog change.
func InvalidatePricingCache(ctx context.Context) {
	if err := cache.Delete(ctx, billing.PricingCacheKey); err != nil && !errors.Is(err, cache.ErrUnavailable) {
		log.Warnf("[Pricing] Cache invalidation failed: %v", err)
	}
}
