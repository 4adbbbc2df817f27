package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ManuelReschke/SaaSFox/app/repository"
	"github.com/ManuelReschke/SaaSFox/internal/pkg/billing"
	"github.com/ManuelReschke/SaaSFox/internal/pkg/database"
	"github.com/ManuelReschke/SaaSFox/internal/pkg/env"
	"github.com/ManuelReschke/SaaSFox/internal/pkg/usercontext"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testWebhookSecret = "whsec_test_secret"

type fakeGateway struct {
	subscriptions  map[string]billing.SubscriptionPayload
	retrieveErr    error
	customers      []billing.CustomerInput
	checkouts      []billing.CheckoutSessionInput
	portalCustomer string
}

func (g *fakeGateway) RetrieveSubscription(_ context.Context, id string) (billing.SubscriptionPayload, error) {
	if g.retrieveErr != nil {
		return billing.SubscriptionPayload{}, g.retrieveErr
	}
	sub, ok := g.subscriptions[id]
	if !ok {
		return billing.SubscriptionPayload{}, errors.New("no such subscription: " + id)
	}
	return sub, nil
}

func (g *fakeGateway) CreateCustomer(_ context.Context, in billing.CustomerInput) (string, error) {
	g.customers = append(g.customers, in)
	return "cus_new", nil
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, in billing.CheckoutSessionInput) (*billing.CheckoutSession, error) {
	g.checkouts = append(g.checkouts, in)
	return &billing.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.test/cs_test_1"}, nil
}

func (g *fakeGateway) CreatePortalSession(_ context.Context, customerID, _ string) (string, error) {
	g.portalCustomer = customerID
	return "https://billing.stripe.test/session", nil
}

func (g *fakeGateway) ListActiveProducts(context.Context) ([]billing.ProductPayload, error) {
	return nil, nil
}

func (g *fakeGateway) ListActivePrices(context.Context) ([]billing.PricePayload, error) {
	return nil, nil
}

// setupControllerTest points the shared database, repository factory and
// Stripe gateway at test doubles and restores them afterwards.
func setupControllerTest(t *testing.T) (*gorm.DB, *fakeGateway) {
	t.Helper()

	cfg := database.Config()
	cfg.Logger = logger.Default.LogMode(logger.Silent)
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), cfg)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(database.Models()...))

	gw := &fakeGateway{subscriptions: map[string]billing.SubscriptionPayload{}}
	prevDB, prevGateway := database.GetDB(), newGateway
	database.SetDB(db)
	repository.InitializeFactory(db)
	newGateway = func() billing.Gateway { return gw }
	env.Env = map[string]string{"STRIPE_WEBHOOK_SECRET": testWebhookSecret}

	t.Cleanup(func() {
		database.SetDB(prevDB)
		newGateway = prevGateway
		env.Env = nil
		_ = sqlDB.Close()
	})
	return db, gw
}

// newTestApp registers the API handlers behind a stub that authenticates
// every request as userID. An empty userID leaves requests anonymous.
func newTestApp(userID string) *fiber.App {
	app := fiber.New()
	app.Post("/api/webhooks/stripe", HandleStripeWebhook)

	api := app.Group("/api", func(c *fiber.Ctx) error {
		if userID != "" {
			usercontext.SetUserContext(c, usercontext.UserContext{
				UserID:     userID,
				Email:      userID + "@example.com",
				IsLoggedIn: true,
			})
		}
		return c.Next()
	})
	api.Get("/pricing", HandleGetPricing)
	api.Get("/subscription", HandleGetSubscription)
	api.Post("/stripe/checkout", HandleCreateCheckoutSession)
	api.Post("/stripe/portal", HandleCreatePortalSession)
	api.Get("/profiles", HandleListProfiles)
	api.Post("/profiles", HandleCreateProfile)
	api.Get("/profiles/:id", HandleGetProfile)
	api.Put("/profiles/:id", HandleUpdateProfile)
	api.Patch("/profiles/:id", HandleUpdateProfile)
	api.Delete("/profiles/:id", HandleDeleteProfile)
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			raw, err := json.Marshal(b)
			require.NoError(t, err)
			reader = bytes.NewReader(raw)
		}
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	return send(t, app, req)
}

func send(t *testing.T, app *fiber.App, req *http.Request) (int, map[string]interface{}) {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]interface{}{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func errorCode(body map[string]interface{}) string {
	e, _ := body["error"].(map[string]interface{})
	code, _ := e["code"].(string)
	return code
}
