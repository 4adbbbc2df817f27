package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ManuelReschke/SaaSFox/app/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(repo *fakeRepo, gw *fakeGateway) *Service {
	var g Gateway
	if gw != nil {
		g = gw
	}
	svc := NewService(repo, g)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func int64Ptr(v int64) *int64 { return &v }

func samplePayload() SubscriptionPayload {
	return SubscriptionPayload{
		ID:                 "sub_123",
		Customer:           "cus_1",
		Status:             "active",
		CancelAtPeriodEnd:  true,
		CancelAt:           1740787200,
		CurrentPeriodStart: 1738368000,
		CurrentPeriodEnd:   1740787200,
		Created:            1738368000,
		TrialEnd:           1738972800,
		Items: SubscriptionItems{Data: []SubscriptionItemPayload{
			{ID: "si_1", Price: "price_basic", Quantity: int64Ptr(3)},
		}},
	}
}

func TestDispatchSubscriptionChangedIsIdempotent(t *testing.T) {
	repo := newFakeRepo()
	repo.addProfile("u1", "cus_1")
	svc := newTestService(repo, nil)
	ev := SubscriptionChanged{EventMeta: EventMeta{ID: "evt_1", Type: EventSubscriptionUpdated}, Subscription: samplePayload()}

	require.NoError(t, svc.Dispatch(context.Background(), ev))
	first := *repo.subs["sub_123"]

	require.NoError(t, svc.Dispatch(context.Background(), ev))
	require.Len(t, repo.subs, 1)
	second := *repo.subs["sub_123"]

	assert.Equal(t, first, second)
	assert.Equal(t, "u1", second.UserID)
	assert.Equal(t, "cus_1", second.StripeCustomerID)
	assert.Equal(t, "price_basic", second.PriceID)
	assert.Equal(t, int64(3), second.Quantity)
	assert.True(t, second.CancelAtPeriodEnd)
	require.NotNil(t, second.CurrentPeriodEnd)
	assert.True(t, second.CurrentPeriodEnd.Equal(time.Unix(1740787200, 0)))
	assert.Nil(t, second.CanceledAt)
	assert.Nil(t, second.EndedAt)
}

func TestDispatchSubscriptionChangedWithoutProfileSkipsWrite(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil)

	err := svc.Dispatch(context.Background(), SubscriptionChanged{Subscription: samplePayload()})

	require.NoError(t, err)
	assert.Empty(t, repo.subs)
	assert.Zero(t, repo.writes)
}

func TestDispatchSubscriptionChangedUsesFirstLineItem(t *testing.T) {
	repo := newFakeRepo()
	repo.addProfile("u1", "cus_1")
	svc := newTestService(repo, nil)

	p := samplePayload()
	p.Items.Data = []SubscriptionItemPayload{
		{Price: "price_A", Quantity: int64Ptr(2)},
		{Price: "price_B", Quantity: int64Ptr(5)},
	}
	require.NoError(t, svc.Dispatch(context.Background(), SubscriptionChanged{Subscription: p}))

	sub := repo.subs["sub_123"]
	assert.Equal(t, "price_A", sub.PriceID)
	assert.Equal(t, int64(2), sub.Quantity)
}

func TestDispatchSubscriptionChangedStoreFailure(t *testing.T) {
	repo := newFakeRepo()
	repo.addProfile("u1", "cus_1")
	repo.failWith = errors.New("connection reset")
	svc := newTestService(repo, nil)

	err := svc.Dispatch(context.Background(), SubscriptionChanged{Subscription: samplePayload()})

	require.Error(t, err)
	assert.ErrorIs(t, err, repo.failWith)
}

func TestDispatchSubscriptionDeleted(t *testing.T) {
	t.Run("unknown id is a no-op", func(t *testing.T) {
		repo := newFakeRepo()
		svc := newTestService(repo, nil)

		err := svc.Dispatch(context.Background(), SubscriptionDeleted{Subscription: SubscriptionPayload{ID: "sub_missing"}})

		require.NoError(t, err)
		assert.Empty(t, repo.subs)
		assert.Zero(t, repo.writes)
	})

	t.Run("known id is canceled", func(t *testing.T) {
		repo := newFakeRepo()
		repo.subs["sub_123"] = &models.Subscription{StripeSubscriptionID: "sub_123", Status: "active", PriceID: "price_basic"}
		svc := newTestService(repo, nil)

		err := svc.Dispatch(context.Background(), SubscriptionDeleted{Subscription: SubscriptionPayload{ID: "sub_123"}})

		require.NoError(t, err)
		sub := repo.subs["sub_123"]
		assert.Equal(t, models.SubscriptionStatusCanceled, sub.Status)
		require.NotNil(t, sub.EndedAt)
		assert.True(t, sub.EndedAt.Equal(fixedNow))
		assert.Equal(t, "price_basic", sub.PriceID)
	})
}

func TestDispatchCheckoutCompleted(t *testing.T) {
	t.Run("missing user id writes nothing", func(t *testing.T) {
		repo := newFakeRepo()
		repo.addProfile("u1", "")
		gw := &fakeGateway{}
		svc := newTestService(repo, gw)

		err := svc.Dispatch(context.Background(), CheckoutCompleted{Session: CheckoutSessionPayload{
			ID: "cs_1", Mode: "subscription", Customer: "cus_1", Subscription: "sub_123",
		}})

		require.NoError(t, err)
		assert.Zero(t, repo.writes)
		assert.Nil(t, repo.profiles["u1"].StripeCustomerID)
	})

	t.Run("subscription checkout links customer and syncs subscription", func(t *testing.T) {
		repo := newFakeRepo()
		repo.addProfile("u1", "")
		gw := &fakeGateway{subscriptions: map[string]SubscriptionPayload{"sub_123": samplePayload()}}
		svc := newTestService(repo, gw)

		err := svc.Dispatch(context.Background(), CheckoutCompleted{Session: CheckoutSessionPayload{
			ID:           "cs_1",
			Mode:         "subscription",
			Customer:     "cus_1",
			Subscription: "sub_123",
			Metadata:     map[string]string{"userId": "u1"},
		}})

		require.NoError(t, err)
		require.NotNil(t, repo.profiles["u1"].StripeCustomerID)
		assert.Equal(t, "cus_1", *repo.profiles["u1"].StripeCustomerID)
		require.Contains(t, repo.subs, "sub_123")
		assert.Equal(t, "u1", repo.subs["sub_123"].UserID)
		assert.Equal(t, "price_basic", repo.subs["sub_123"].PriceID)
	})

	t.Run("payment mode only links customer", func(t *testing.T) {
		repo := newFakeRepo()
		repo.addProfile("u1", "")
		svc := newTestService(repo, &fakeGateway{})

		err := svc.Dispatch(context.Background(), CheckoutCompleted{Session: CheckoutSessionPayload{
			Mode: "payment", Customer: "cus_1", Metadata: map[string]string{"user_id": "u1"},
		}})

		require.NoError(t, err)
		assert.Equal(t, "cus_1", *repo.profiles["u1"].StripeCustomerID)
		assert.Empty(t, repo.subs)
	})

	t.Run("provider fetch failure is returned", func(t *testing.T) {
		repo := newFakeRepo()
		repo.addProfile("u1", "")
		svc := newTestService(repo, &fakeGateway{err: errors.New("stripe unavailable")})

		err := svc.Dispatch(context.Background(), CheckoutCompleted{Session: CheckoutSessionPayload{
			Mode: "subscription", Customer: "cus_1", Subscription: "sub_123", Metadata: map[string]string{"userId": "u1"},
		}})

		assert.Error(t, err)
	})
}

func TestDispatchInvoicePaid(t *testing.T) {
	repo := newFakeRepo()
	repo.subs["sub_123"] = &models.Subscription{StripeSubscriptionID: "sub_123", Status: "past_due", PriceID: "price_basic"}
	svc := newTestService(repo, nil)

	inv := InvoicePayload{ID: "in_1", Subscription: "sub_123"}
	inv.Lines.Data = []InvoiceLinePayload{{}}
	inv.Lines.Data[0].Period.End = 1743465600

	require.NoError(t, svc.Dispatch(context.Background(), InvoicePaid{Invoice: inv}))

	sub := repo.subs["sub_123"]
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
	require.NotNil(t, sub.CurrentPeriodEnd)
	assert.True(t, sub.CurrentPeriodEnd.Equal(time.Unix(1743465600, 0)))
	assert.Equal(t, "price_basic", sub.PriceID)
}

func TestDispatchInvoicePaidWithoutSubscriptionIsNoop(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil)

	require.NoError(t, svc.Dispatch(context.Background(), InvoicePaid{Invoice: InvoicePayload{ID: "in_1"}}))
	assert.Zero(t, repo.writes)
}

func TestDispatchInvoicePaymentFailed(t *testing.T) {
	end := time.Unix(1740787200, 0).UTC()
	repo := newFakeRepo()
	repo.subs["sub_123"] = &models.Subscription{
		StripeSubscriptionID: "sub_123", UserID: "u1", Status: "active", CurrentPeriodEnd: &end,
	}
	svc := newTestService(repo, nil)

	inv := InvoicePayload{ID: "in_2"}
	inv.Parent = &InvoiceParent{}
	inv.Parent.SubscriptionDetails = &struct {
		Subscription ExpandableID `json:"subscription"`
	}{Subscription: "sub_123"}

	require.NoError(t, svc.Dispatch(context.Background(), InvoicePaymentFailed{Invoice: inv}))

	sub := repo.subs["sub_123"]
	assert.Equal(t, models.SubscriptionStatusPastDue, sub.Status)
	assert.True(t, sub.CurrentPeriodEnd.Equal(end))
	assert.Nil(t, sub.EndedAt)
}

func TestDispatchCustomerCreated(t *testing.T) {
	repo := newFakeRepo()
	repo.addProfile("u1", "")
	svc := newTestService(repo, nil)
	ev := CustomerCreated{Customer: CustomerPayload{ID: "cus_9", Metadata: map[string]string{"userId": "u1"}}}

	require.NoError(t, svc.Dispatch(context.Background(), ev))
	require.NoError(t, svc.Dispatch(context.Background(), ev))

	require.NotNil(t, repo.profiles["u1"].StripeCustomerID)
	assert.Equal(t, "cus_9", *repo.profiles["u1"].StripeCustomerID)
	assert.Len(t, repo.profiles, 1)
}

func TestDispatchCustomerCreatedWithoutUserID(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil)

	require.NoError(t, svc.Dispatch(context.Background(), CustomerCreated{Customer: CustomerPayload{ID: "cus_9"}}))
	assert.Zero(t, repo.writes)
}

func TestDispatchPaymentSucceeded(t *testing.T) {
	repo := newFakeRepo()
	repo.subs["sub_123"] = &models.Subscription{StripeSubscriptionID: "sub_123", Status: "incomplete"}
	svc := newTestService(repo, nil)

	require.NoError(t, svc.Dispatch(context.Background(), PaymentSucceeded{PaymentIntent: PaymentIntentPayload{
		ID: "pi_1", Metadata: map[string]string{"subscription_id": "sub_123"},
	}}))
	assert.Equal(t, models.SubscriptionStatusActive, repo.subs["sub_123"].Status)

	require.NoError(t, svc.Dispatch(context.Background(), PaymentSucceeded{PaymentIntent: PaymentIntentPayload{ID: "pi_2"}}))
	assert.Equal(t, 1, repo.writes)
}

func TestDispatchUnhandled(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil)

	require.NoError(t, svc.Dispatch(context.Background(), Unhandled{EventMeta: EventMeta{ID: "evt_x", Type: "charge.refunded"}}))
	assert.Zero(t, repo.writes)
}

func TestRecordWebhookEventDedupes(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil)
	in := WebhookEventInput{Provider: "Stripe", ProviderEventID: "evt_1", EventType: "invoice.paid", PayloadJSON: "{}"}

	created, stored, err := svc.RecordWebhookEvent(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "stripe", stored.Provider)

	require.NoError(t, svc.MarkWebhookProcessed(context.Background(), stored.ID, nil))

	created, stored, err = svc.RecordWebhookEvent(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, created)
	assert.True(t, stored.Handled())
	assert.Equal(t, 2, stored.Attempts)
}

func TestRecordWebhookEventHashFallback(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil)

	_, stored, err := svc.RecordWebhookEvent(context.Background(), WebhookEventInput{Provider: "stripe", PayloadJSON: `{"a":1}`})
	require.NoError(t, err)
	assert.Contains(t, stored.ProviderEventID, "hash:")

	_, _, err = svc.RecordWebhookEvent(context.Background(), WebhookEventInput{})
	assert.Error(t, err)
	assert.Error(t, svc.MarkWebhookProcessed(context.Background(), 0, nil))
}
