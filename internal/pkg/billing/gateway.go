package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ManuelReschke/SaaSFox/internal/pkg/env"
	"github.com/stripe/stripe-go/v82"
)

// Gateway is the outbound Stripe surface used by the billing service.
type Gateway interface {
	RetrieveSubscription(ctx context.Context, subscriptionID string) (SubscriptionPayload, error)
	CreateCustomer(ctx context.Context, in CustomerInput) (string, error)
	CreateCheckoutSession(ctx context.Context, in CheckoutSessionInput) (*CheckoutSession, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
	ListActiveProducts(ctx context.Context) ([]ProductPayload, error)
	ListActivePrices(ctx context.Context) ([]PricePayload, error)
}

type CustomerInput struct {
	UserID string
	Email  string
}

type CheckoutSessionInput struct {
	UserID     string
	CustomerID string
	PriceID    string
	Quantity   int64
	SuccessURL string
	CancelURL  string
}

type CheckoutSession struct {
	ID  string `json:"sessionId"`
	URL string `json:"url"`
}

// StripeGateway implements Gateway with the stripe-go client.
type StripeGateway struct {
	client *stripe.Client
}

func NewStripeGateway(secretKey string) *StripeGateway {
	return &StripeGateway{client: stripe.NewClient(strings.TrimSpace(secretKey))}
}

// NewStripeGatewayFromEnv reads STRIPE_SECRET_KEY. It returns nil when the key is unset.
func NewStripeGatewayFromEnv() *StripeGateway {
	key := env.GetEnv("STRIPE_SECRET_KEY", "")
	if strings.TrimSpace(key) == "" {
		return nil
	}
	return NewStripeGateway(key)
}

func (g *StripeGateway) RetrieveSubscription(ctx context.Context, subscriptionID string) (SubscriptionPayload, error) {
	sub, err := g.client.V1Subscriptions.Retrieve(ctx, subscriptionID, &stripe.SubscriptionRetrieveParams{})
	if err != nil {
		return SubscriptionPayload{}, fmt.Errorf("retrieve subscription %s: %w", subscriptionID, err)
	}

	// Decode from the raw response so period fields resolve the same way
	// regardless of the account's API version.
	var raw []byte
	if sub.LastResponse != nil && len(sub.LastResponse.RawJSON) > 0 {
		raw = sub.LastResponse.RawJSON
	} else if raw, err = json.Marshal(sub); err != nil {
		return SubscriptionPayload{}, fmt.Errorf("encode subscription %s: %w", subscriptionID, err)
	}

	var payload SubscriptionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return SubscriptionPayload{}, fmt.Errorf("decode subscription %s: %w", subscriptionID, err)
	}
	return payload, nil
}

func (g *StripeGateway) CreateCustomer(ctx context.Context, in CustomerInput) (string, error) {
	params := &stripe.CustomerCreateParams{
		Metadata: map[string]string{MetadataUserIDKey: in.UserID},
	}
	if in.Email != "" {
		params.Email = stripe.String(in.Email)
	}
	c, err := g.client.V1Customers.Create(ctx, params)
	if err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}
	return c.ID, nil
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, in CheckoutSessionInput) (*CheckoutSession, error) {
	quantity := in.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	params := &stripe.CheckoutSessionCreateParams{
		Customer: stripe.String(in.CustomerID),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				Price:    stripe.String(in.PriceID),
				Quantity: stripe.Int64(quantity),
			},
		},
		Mode:       stripe.String(CheckoutModeSubscription),
		SuccessURL: stripe.String(in.SuccessURL),
		CancelURL:  stripe.String(in.CancelURL),
		Metadata:   map[string]string{MetadataUserIDKey: in.UserID},
	}
	s, err := g.client.V1CheckoutSessions.Create(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

func (g *StripeGateway) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	s, err := g.client.V1BillingPortalSessions.Create(ctx, &stripe.BillingPortalSessionCreateParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	})
	if err != nil {
		return "", fmt.Errorf("create portal session: %w", err)
	}
	return s.URL, nil
}

func (g *StripeGateway) ListActiveProducts(ctx context.Context) ([]ProductPayload, error) {
	params := &stripe.ProductListParams{Active: stripe.Bool(true)}
	params.Limit = stripe.Int64(100)

	var out []ProductPayload
	for p, err := range g.client.V1Products.List(ctx, params) {
		if err != nil {
			return nil, fmt.Errorf("list products: %w", err)
		}
		var payload ProductPayload
		if err := roundTrip(p, &payload); err != nil {
			return nil, fmt.Errorf("decode product %s: %w", p.ID, err)
		}
		out = append(out, payload)
	}
	return out, nil
}

func (g *StripeGateway) ListActivePrices(ctx context.Context) ([]PricePayload, error) {
	params := &stripe.PriceListParams{Active: stripe.Bool(true)}
	params.Limit = stripe.Int64(100)

	var out []PricePayload
	for p, err := range g.client.V1Prices.List(ctx, params) {
		if err != nil {
			return nil, fmt.Errorf("list prices: %w", err)
		}
		var payload PricePayload
		if err := roundTrip(p, &payload); err != nil {
			return nil, fmt.Errorf("decode price %s: %w", p.ID, err)
		}
		out = append(out, payload)
	}
	return out, nil
}

func roundTrip(in, out interface{}) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}
