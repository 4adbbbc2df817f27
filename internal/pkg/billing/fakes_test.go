package billing

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/ManuelReschke/SaaSFox/app/models"
	"gorm.io/gorm"
)

// fakeRepo is an in-memory Repository. writes counts every mutation.
type fakeRepo struct {
	profiles map[string]*models.Profile
	subs     map[string]*models.Subscription
	products map[string]*models.Product
	prices   map[string]*models.Price
	events   map[string]*models.BillingWebhookEvent
	nextID   uint
	writes   int
	failWith error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		profiles: map[string]*models.Profile{},
		subs:     map[string]*models.Subscription{},
		products: map[string]*models.Product{},
		prices:   map[string]*models.Price{},
		events:   map[string]*models.BillingWebhookEvent{},
	}
}

func (r *fakeRepo) addProfile(id, customerID string) {
	p := &models.Profile{ID: id}
	if customerID != "" {
		c := customerID
		p.StripeCustomerID = &c
	}
	r.profiles[id] = p
}

func (r *fakeRepo) FindProfileByCustomerID(_ context.Context, customerID string) (*models.Profile, error) {
	if r.failWith != nil {
		return nil, r.failWith
	}
	for _, p := range r.profiles {
		if p.StripeCustomerID != nil && *p.StripeCustomerID == customerID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrProfileNotFound
}

func (r *fakeRepo) GetOrCreateProfile(_ context.Context, userID, email string) (*models.Profile, error) {
	if r.failWith != nil {
		return nil, r.failWith
	}
	if p, ok := r.profiles[userID]; ok {
		cp := *p
		return &cp, nil
	}
	p := &models.Profile{ID: userID}
	if email != "" {
		p.Email = &email
	}
	r.profiles[userID] = p
	r.writes++
	cp := *p
	return &cp, nil
}

func (r *fakeRepo) LinkCustomer(_ context.Context, userID, customerID string) (bool, error) {
	if r.failWith != nil {
		return false, r.failWith
	}
	p, ok := r.profiles[userID]
	if !ok {
		return false, nil
	}
	c := customerID
	p.StripeCustomerID = &c
	r.writes++
	return true, nil
}

func (r *fakeRepo) UpsertSubscription(_ context.Context, sub *models.Subscription) error {
	if r.failWith != nil {
		return r.failWith
	}
	cp := *sub
	if existing, ok := r.subs[sub.StripeSubscriptionID]; ok {
		cp.ID = existing.ID
	} else if cp.ID == "" {
		cp.ID = "local_" + sub.StripeSubscriptionID
	}
	r.subs[sub.StripeSubscriptionID] = &cp
	r.writes++
	*sub = cp
	return nil
}

func (r *fakeRepo) UpdateSubscription(_ context.Context, stripeSubscriptionID string, updates map[string]interface{}) (bool, error) {
	if r.failWith != nil {
		return false, r.failWith
	}
	sub, ok := r.subs[stripeSubscriptionID]
	if !ok {
		return false, nil
	}
	applyUpdates(sub, updates)
	r.writes++
	return true, nil
}

func applyUpdates(sub *models.Subscription, updates map[string]interface{}) {
	for k, v := range updates {
		switch k {
		case "status":
			sub.Status = v.(string)
		case "ended_at":
			t := v.(time.Time)
			sub.EndedAt = &t
		case "current_period_end":
			t := v.(time.Time)
			sub.CurrentPeriodEnd = &t
		default:
			panic("fakeRepo: unexpected update column " + k)
		}
	}
}

func (r *fakeRepo) FindSubscriptionOwner(_ context.Context, stripeSubscriptionID string) (string, error) {
	sub, ok := r.subs[stripeSubscriptionID]
	if !ok {
		return "", gorm.ErrRecordNotFound
	}
	return sub.UserID, nil
}

func (r *fakeRepo) FindActiveSubscription(_ context.Context, userID string) (*models.Subscription, error) {
	var best *models.Subscription
	for _, s := range r.subs {
		if s.UserID != userID || !s.IsEntitling() {
			continue
		}
		if best == nil || (s.Created != nil && best.Created != nil && s.Created.After(*best.Created)) {
			best = s
		}
	}
	if best == nil {
		return nil, ErrNoActiveSubscription
	}
	cp := *best
	return &cp, nil
}

func (r *fakeRepo) UpsertProduct(_ context.Context, product *models.Product) error {
	if r.failWith != nil {
		return r.failWith
	}
	cp := *product
	r.products[product.ID] = &cp
	r.writes++
	return nil
}

func (r *fakeRepo) UpsertPrice(_ context.Context, price *models.Price) error {
	if r.failWith != nil {
		return r.failWith
	}
	cp := *price
	r.prices[price.ID] = &cp
	r.writes++
	return nil
}

func (r *fakeRepo) ListActiveProducts(_ context.Context) ([]models.Product, error) {
	var out []models.Product
	for _, p := range r.products {
		if !p.Active {
			continue
		}
		cp := *p
		for _, pr := range r.prices {
			if pr.ProductID == p.ID && pr.Active {
				cp.Prices = append(cp.Prices, *pr)
			}
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *fakeRepo) CreateWebhookEventIfNotExists(_ context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	if r.failWith != nil {
		return false, nil, r.failWith
	}
	key := event.Provider + "|" + event.ProviderEventID
	if stored, ok := r.events[key]; ok {
		stored.Attempts++
		cp := *stored
		return false, &cp, nil
	}
	r.nextID++
	cp := *event
	cp.ID = r.nextID
	r.events[key] = &cp
	out := cp
	return true, &out, nil
}

func (r *fakeRepo) MarkWebhookProcessed(_ context.Context, id uint, processingError string) error {
	for _, e := range r.events {
		if e.ID == id {
			now := fixedNow
			e.ProcessedAt = &now
			e.ProcessingError = processingError
			return nil
		}
	}
	return errors.New("event not found")
}

// fakeGateway records calls and serves canned Stripe responses.
type fakeGateway struct {
	subscriptions   map[string]SubscriptionPayload
	products        []ProductPayload
	prices          []PricePayload
	createdCustomer string
	customerInputs  []CustomerInput
	checkoutInputs  []CheckoutSessionInput
	portalCustomer  string
	err             error
}

func (g *fakeGateway) RetrieveSubscription(_ context.Context, id string) (SubscriptionPayload, error) {
	if g.err != nil {
		return SubscriptionPayload{}, g.err
	}
	p, ok := g.subscriptions[id]
	if !ok {
		return SubscriptionPayload{}, errors.New("no such subscription")
	}
	return p, nil
}

func (g *fakeGateway) CreateCustomer(_ context.Context, in CustomerInput) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	g.customerInputs = append(g.customerInputs, in)
	return g.createdCustomer, nil
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, in CheckoutSessionInput) (*CheckoutSession, error) {
	if g.err != nil {
		return nil, g.err
	}
	g.checkoutInputs = append(g.checkoutInputs, in)
	return &CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.test/cs_test_1"}, nil
}

func (g *fakeGateway) CreatePortalSession(_ context.Context, customerID, returnURL string) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	g.portalCustomer = customerID
	return "https://billing.stripe.test/session?return=" + returnURL, nil
}

func (g *fakeGateway) ListActiveProducts(_ context.Context) ([]ProductPayload, error) {
	return g.products, g.err
}

func (g *fakeGateway) ListActivePrices(_ context.Context) ([]PricePayload, error) {
	return g.prices, g.err
}
