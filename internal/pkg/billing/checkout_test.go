package billing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateCheckoutSessionCreatesCustomerOnce(t *testing.T) {
	repo := newFakeRepo()
	gw := &fakeGateway{createdCustomer: "cus_new"}
	svc := newTestService(repo, gw)
	in := CheckoutInput{UserID: "u1", Email: "u1@example.com", PriceID: "price_basic", SuccessURL: "https://app.test/ok", CancelURL: "https://app.test/cancel"}

	session, err := svc.CreateCheckoutSession(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", session.ID)

	require.Len(t, gw.customerInputs, 1)
	assert.Equal(t, CustomerInput{UserID: "u1", Email: "u1@example.com"}, gw.customerInputs[0])
	require.NotNil(t, repo.profiles["u1"].StripeCustomerID)
	assert.Equal(t, "cus_new", *repo.profiles["u1"].StripeCustomerID)

	_, err = svc.CreateCheckoutSession(context.Background(), in)
	require.NoError(t, err)
	assert.Len(t, gw.customerInputs, 1)

	require.Len(t, gw.checkoutInputs, 2)
	last := gw.checkoutInputs[1]
	assert.Equal(t, "cus_new", last.CustomerID)
	assert.Equal(t, "price_basic", last.PriceID)
	assert.Equal(t, int64(1), last.Quantity)
	assert.Equal(t, "u1", last.UserID)
}

func TestCreateCheckoutSessionValidation(t *testing.T) {
	svc := newTestService(newFakeRepo(), &fakeGateway{})
	_, err := svc.CreateCheckoutSession(context.Background(), CheckoutInput{UserID: "u1"})
	assert.Error(t, err)

	svc = newTestService(newFakeRepo(), nil)
	_, err = svc.CreateCheckoutSession(context.Background(), CheckoutInput{UserID: "u1", PriceID: "price_1"})
	assert.ErrorIs(t, err, ErrGatewayNotConfigured)
}

func TestCreatePortalSession(t *testing.T) {
	repo := newFakeRepo()
	repo.addProfile("u1", "")
	repo.addProfile("u2", "cus_2")
	gw := &fakeGateway{}
	svc := newTestService(repo, gw)

	_, err := svc.CreatePortalSession(context.Background(), "u1", "https://app.test/account")
	assert.ErrorIs(t, err, ErrNoStripeCustomer)

	url, err := svc.CreatePortalSession(context.Background(), "u2", "https://app.test/account")
	require.NoError(t, err)
	assert.Contains(t, url, "https://billing.stripe.test/")
	assert.Equal(t, "cus_2", gw.portalCustomer)
}
