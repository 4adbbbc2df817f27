package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ManuelReschke/SaaSFox/app/models"
	"github.com/ManuelReschke/SaaSFox/internal/pkg/billing"
	"github.com/ManuelReschke/SaaSFox/internal/pkg/env"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v82"
)

// HandleStripeWebhook verifies a Stripe delivery, records it in the webhook
// ledger and dispatches it to the matching subscription handler. Handler
// failures return 500 so Stripe redelivers.
func HandleStripeWebhook(c *fiber.Ctx) error {
	// signature covers the bytes as sent, so skip fiber's decompression
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := c.Get("Stripe-Signature")
	secret := env.GetEnv("STRIPE_WEBHOOK_SECRET", "")

	evt, err := billing.VerifyStripeWebhook(rawBody, signature, secret)
	if err != nil {
		ipv4, ipv6 := GetClientIP(c)
		log.Warnw("[Webhook] Stripe signature verification failed", "error", err, "ipv4", ipv4, "ipv6", ipv6)
		msg := "Webhook signature verification failed"
		if errors.Is(err, billing.ErrMissingSignature) {
			msg = "Missing Stripe signature"
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg, "code": "invalid_signature"})
	}

	svc, err := billingService()
	if err != nil {
		log.Errorf("[Webhook] %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), env.GetDuration("STRIPE_WEBHOOK_TIMEOUT", 15*time.Second))
	defer cancel()

	created, stored, err := svc.RecordWebhookEvent(ctx, billing.WebhookEventInput{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: evt.ID,
		EventType:       string(evt.Type),
		PayloadJSON:     string(rawBody),
	})
	if err != nil {
		log.Errorf("[Webhook] Failed to record event %s: %v", evt.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	if !created && stored.Handled() {
		log.Infof("[Webhook] Duplicate delivery of %s (%s), attempt %d", evt.ID, evt.Type, stored.Attempts)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true, "duplicate": true})
	}

	handleErr := dispatchStripeEvent(ctx, svc, evt)
	if err := svc.MarkWebhookProcessed(ctx, stored.ID, handleErr); err != nil {
		log.Errorf("[Webhook] Failed to mark event %s processed: %v", evt.ID, err)
	}
	if handleErr != nil {
		log.Errorw("[Webhook] Handler failed", "event_id", evt.ID, "event_type", evt.Type, "error", handleErr)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_handler_failed"})
	}

	if isCatalogEvent(string(evt.Type)) {
		InvalidatePricingCache(ctx)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true})
}

func isCatalogEvent(eventType string) bool {
	return strings.HasPrefix(eventType, "product.") || strings.HasPrefix(eventType, "price.")
}

func dispatchStripeEvent(ctx context.Context, svc *billing.Service, evt stripe.Event) error {
	ev, err := billing.ParseEvent(evt)
	if err != nil {
		return err
	}
	return svc.Dispatch(ctx, ev)
}
