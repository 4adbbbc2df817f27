package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/SaaSFox/app/models"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// Service reconciles Stripe state into the local store.
type Service struct {
	repo    Repository
	gateway Gateway
	now     func() time.Time
}

// NewService creates a billing service from an injected repository and
// gateway. gateway may be nil when Stripe is not configured; operations that
// need it return ErrGatewayNotConfigured.
func NewService(repo Repository, gateway Gateway) *Service {
	return &Service{repo: repo, gateway: gateway, now: time.Now}
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, gateway Gateway) *Service {
	return NewService(NewRepository(db), gateway)
}

// Dispatch routes a decoded event to its handler. Missing-correlation cases
// are logged and return nil; store and gateway failures are returned so the
// delivery can be retried.
func (s *Service) Dispatch(ctx context.Context, ev Event) error {
	switch e := ev.(type) {
	case SubscriptionChanged:
		_, err := s.SyncSubscription(ctx, e.Subscription)
		return err
	case SubscriptionDeleted:
		return s.CancelSubscription(ctx, e.Subscription.ID)
	case CheckoutCompleted:
		return s.CompleteCheckout(ctx, e.Session)
	case InvoicePaid:
		return s.MarkInvoicePaid(ctx, e.Invoice)
	case InvoicePaymentFailed:
		return s.MarkInvoicePaymentFailed(ctx, e.Invoice)
	case CustomerCreated:
		return s.LinkCustomer(ctx, e.Customer)
	case PaymentSucceeded:
		return s.MarkPaymentSucceeded(ctx, e.PaymentIntent)
	case ProductChanged:
		return s.repo.UpsertProduct(ctx, ProductFromPayload(e.Product))
	case PriceChanged:
		return s.repo.UpsertPrice(ctx, PriceFromPayload(e.Price))
	case Unhandled:
		log.Infof("[Billing] Unhandled event type %s (%s)", e.Type, e.ID)
		return nil
	default:
		return fmt.Errorf("unsupported event %T", ev)
	}
}

// SyncSubscription upserts a Stripe subscription for the profile linked to
// its customer. It returns (nil, nil) when no profile is linked.
func (s *Service) SyncSubscription(ctx context.Context, p SubscriptionPayload) (*models.Subscription, error) {
	if strings.TrimSpace(p.ID) == "" {
		return nil, errors.New("subscription id is required")
	}

	profile, err := s.repo.FindProfileByCustomerID(ctx, p.Customer.String())
	if errors.Is(err, ErrProfileNotFound) {
		log.Warnf("[Billing] No profile for Stripe customer %q, skipping subscription %s", p.Customer, p.ID)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup profile for customer %s: %w", p.Customer, err)
	}

	sub := SubscriptionFromPayload(p, profile.ID)
	if err := s.repo.UpsertSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("upsert subscription %s: %w", p.ID, err)
	}
	log.Infof("[Billing] Synced subscription %s for user %s (status %s)", sub.StripeSubscriptionID, sub.UserID, sub.Status)
	return sub, nil
}

// CancelSubscription marks a subscription canceled and stamps ended_at.
// Unknown ids are a no-op.
func (s *Service) CancelSubscription(ctx context.Context, stripeSubscriptionID string) error {
	id := strings.TrimSpace(stripeSubscriptionID)
	if id == "" {
		return errors.New("subscription id is required")
	}
	updated, err := s.repo.UpdateSubscription(ctx, id, map[string]interface{}{
		"status":   models.SubscriptionStatusCanceled,
		"ended_at": s.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("cancel subscription %s: %w", id, err)
	}
	if !updated {
		log.Infof("[Billing] Cancellation for unknown subscription %s ignored", id)
		return nil
	}
	log.Infof("[Billing] Subscription %s canceled", id)
	return nil
}

// CompleteCheckout links the checkout's customer to the user named in the
// session metadata and, for subscription checkouts, syncs the subscription.
func (s *Service) CompleteCheckout(ctx context.Context, session CheckoutSessionPayload) error {
	userID := metadataUserID(session.Metadata)
	if userID == "" {
		log.Warnf("[Billing] Checkout session %s has no user id in metadata", session.ID)
		return nil
	}

	if customerID := session.Customer.String(); customerID != "" {
		linked, err := s.repo.LinkCustomer(ctx, userID, customerID)
		if err != nil {
			return fmt.Errorf("link customer %s to user %s: %w", customerID, userID, err)
		}
		if !linked {
			log.Warnf("[Billing] Checkout session %s references unknown user %s", session.ID, userID)
		}
	}

	subID := session.Subscription.String()
	if session.Mode != CheckoutModeSubscription || subID == "" {
		return nil
	}
	if s.gateway == nil {
		return ErrGatewayNotConfigured
	}
	payload, err := s.gateway.RetrieveSubscription(ctx, subID)
	if err != nil {
		return err
	}
	_, err = s.SyncSubscription(ctx, payload)
	return err
}

// MarkInvoicePaid activates the invoice's subscription and refreshes its
// period end from the first invoice line.
func (s *Service) MarkInvoicePaid(ctx context.Context, invoice InvoicePayload) error {
	subID := invoice.SubscriptionID()
	if subID == "" {
		return nil
	}
	updates := map[string]interface{}{
		"status": models.SubscriptionStatusActive,
	}
	if end := epochToTime(invoice.FirstLinePeriodEnd()); end != nil {
		updates["current_period_end"] = *end
	}
	updated, err := s.repo.UpdateSubscription(ctx, subID, updates)
	if err != nil {
		return fmt.Errorf("mark subscription %s active: %w", subID, err)
	}
	if updated {
		log.Infof("[Billing] Invoice %s paid, subscription %s active", invoice.ID, subID)
	}
	return nil
}

// MarkInvoicePaymentFailed moves the invoice's subscription to past_due.
func (s *Service) MarkInvoicePaymentFailed(ctx context.Context, invoice InvoicePayload) error {
	subID := invoice.SubscriptionID()
	if subID == "" {
		return nil
	}
	if _, err := s.repo.UpdateSubscription(ctx, subID, map[string]interface{}{
		"status": models.SubscriptionStatusPastDue,
	}); err != nil {
		return fmt.Errorf("mark subscription %s past_due: %w", subID, err)
	}

	userID, err := s.repo.FindSubscriptionOwner(ctx, subID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("[Billing] Could not resolve owner of subscription %s: %v", subID, err)
		}
		return nil
	}
	log.Warnf("[Billing] Payment failed for user %s (subscription %s, invoice %s)", userID, subID, invoice.ID)
	return nil
}

// LinkCustomer stores a newly created customer's id on the profile named in
// its metadata.
func (s *Service) LinkCustomer(ctx context.Context, customer CustomerPayload) error {
	userID := metadataUserID(customer.Metadata)
	if userID == "" {
		log.Infof("[Billing] Customer %s has no user id in metadata", customer.ID)
		return nil
	}
	linked, err := s.repo.LinkCustomer(ctx, userID, customer.ID)
	if err != nil {
		return fmt.Errorf("link customer %s to user %s: %w", customer.ID, userID, err)
	}
	if !linked {
		log.Warnf("[Billing] Customer %s references unknown user %s", customer.ID, userID)
	}
	return nil
}

// MarkPaymentSucceeded activates the subscription referenced by a payment
// intent's metadata, if any.
func (s *Service) MarkPaymentSucceeded(ctx context.Context, pi PaymentIntentPayload) error {
	subID := strings.TrimSpace(pi.Metadata[MetadataSubscriptionIDKey])
	if subID != "" {
		if _, err := s.repo.UpdateSubscription(ctx, subID, map[string]interface{}{
			"status": models.SubscriptionStatusActive,
		}); err != nil {
			return fmt.Errorf("mark subscription %s active: %w", subID, err)
		}
	}
	log.Infof("[Billing] Payment succeeded: %s for customer %s", pi.ID, pi.Customer)
	return nil
}

// RecordWebhookEvent persists a verified delivery. created is false when the
// event id was seen before; the stored row tells whether it was handled.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.BillingWebhookEvent, error) {
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.BillingWebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
		Attempts:        1,
	}
	return s.repo.CreateWebhookEventIfNotExists(ctx, event)
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(ctx, webhookEventID, errMsg)
}
