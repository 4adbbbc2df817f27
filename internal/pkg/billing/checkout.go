package billing

import (
	"context"
	"errors"
	"strings"

	"github.com/ManuelReschke/SaaSFox/app/models"
	"github.com/gofiber/fiber/v2/log"
)

// CheckoutInput describes a subscription checkout for an authenticated user.
type CheckoutInput struct {
	UserID     string
	Email      string
	PriceID    string
	SuccessURL string
	CancelURL  string
}

// CreateCheckoutSession starts a subscription checkout. The user's Stripe
// customer is created on first use and stored on the profile before the
// session is opened.
func (s *Service) CreateCheckoutSession(ctx context.Context, in CheckoutInput) (*CheckoutSession, error) {
	if s.gateway == nil {
		return nil, ErrGatewayNotConfigured
	}
	if in.UserID == "" || strings.TrimSpace(in.PriceID) == "" {
		return nil, errors.New("user id and price id are required")
	}

	profile, err := s.repo.GetOrCreateProfile(ctx, in.UserID, in.Email)
	if err != nil {
		return nil, err
	}

	customerID := ""
	if profile.HasStripeCustomer() {
		customerID = *profile.StripeCustomerID
	} else {
		email := in.Email
		if email == "" && profile.Email != nil {
			email = *profile.Email
		}
		customerID, err = s.gateway.CreateCustomer(ctx, CustomerInput{UserID: in.UserID, Email: email})
		if err != nil {
			return nil, err
		}
		if _, err := s.repo.LinkCustomer(ctx, in.UserID, customerID); err != nil {
			return nil, err
		}
		log.Infof("[Billing] Created Stripe customer %s for user %s", customerID, in.UserID)
	}

	return s.gateway.CreateCheckoutSession(ctx, CheckoutSessionInput{
		UserID:     in.UserID,
		CustomerID: customerID,
		PriceID:    strings.TrimSpace(in.PriceID),
		Quantity:   1,
		SuccessURL: in.SuccessURL,
		CancelURL:  in.CancelURL,
	})
}

// CreatePortalSession opens a customer portal session for a user that
// already has a Stripe customer.
func (s *Service) CreatePortalSession(ctx context.Context, userID, returnURL string) (string, error) {
	if s.gateway == nil {
		return "", ErrGatewayNotConfigured
	}
	profile, err := s.repo.GetOrCreateProfile(ctx, userID, "")
	if err != nil {
		return "", err
	}
	if !profile.HasStripeCustomer() {
		return "", ErrNoStripeCustomer
	}
	return s.gateway.CreatePortalSession(ctx, *profile.StripeCustomerID, returnURL)
}

// GetActiveSubscription returns the user's most recently created trialing or
// active subscription with its price and product, or ErrNoActiveSubscription.
func (s *Service) GetActiveSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	return s.repo.FindActiveSubscription(ctx, userID)
}
