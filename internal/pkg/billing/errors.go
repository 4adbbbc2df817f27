package billing

import "errors"

var (
	ErrMissingSignature     = errors.New("missing stripe signature")
	ErrInvalidSignature     = errors.New("invalid stripe signature")
	ErrProfileNotFound      = errors.New("profile not found")
	ErrNoStripeCustomer     = errors.New("profile has no stripe customer")
	ErrNoActiveSubscription = errors.New("no active subscription")
	ErrGatewayNotConfigured = errors.New("stripe gateway not configured")
)
