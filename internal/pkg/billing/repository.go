package billing

import (
	"context"
	"errors"
	"time"

	"github.com/ManuelReschke/SaaSFox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the billing service.
type Repository interface {
	FindProfileByCustomerID(ctx context.Context, customerID string) (*models.Profile, error)
	GetOrCreateProfile(ctx context.Context, userID, email string) (*models.Profile, error)
	LinkCustomer(ctx context.Context, userID, customerID string) (bool, error)
	UpsertSubscription(ctx context.Context, sub *models.Subscription) error
	UpdateSubscription(ctx context.Context, stripeSubscriptionID string, updates map[string]interface{}) (bool, error)
	FindSubscriptionOwner(ctx context.Context, stripeSubscriptionID string) (string, error)
	FindActiveSubscription(ctx context.Context, userID string) (*models.Subscription, error)
	UpsertProduct(ctx context.Context, product *models.Product) error
	UpsertPrice(ctx context.Context, price *models.Price) error
	ListActiveProducts(ctx context.Context) ([]models.Product, error)
	CreateWebhookEventIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkWebhookProcessed(ctx context.Context, id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) FindProfileByCustomerID(ctx context.Context, customerID string) (*models.Profile, error) {
	if customerID == "" {
		return nil, ErrProfileNotFound
	}
	var p models.Profile
	err := r.db.WithContext(ctx).Where("stripe_customer_id = ?", customerID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) GetOrCreateProfile(ctx context.Context, userID, email string) (*models.Profile, error) {
	p := models.Profile{ID: userID}
	if email != "" {
		p.Email = &email
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&p).Error; err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Where("id = ?", userID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) LinkCustomer(ctx context.Context, userID, customerID string) (bool, error) {
	tx := r.db.WithContext(ctx).Model(&models.Profile{}).
		Where("id = ?", userID).
		Update("stripe_customer_id", customerID)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) UpsertSubscription(ctx context.Context, sub *models.Subscription) error {
	db := r.db.WithContext(ctx)
	if err := db.Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "stripe_subscription_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_id",
			"stripe_customer_id",
			"status",
			"price_id",
			"quantity",
			"cancel_at_period_end",
			"cancel_at",
			"canceled_at",
			"current_period_start",
			"current_period_end",
			"created",
			"ended_at",
			"trial_start",
			"trial_end",
			"updated_at",
		}),
	}).Create(sub).Error; err != nil {
		return err
	}

	// On conflict the row keeps its original ID, so reload into a fresh value.
	var stored models.Subscription
	if err := db.Where("stripe_subscription_id = ?", sub.StripeSubscriptionID).First(&stored).Error; err != nil {
		return err
	}
	*sub = stored
	return nil
}

func (r *gormRepository) UpdateSubscription(ctx context.Context, stripeSubscriptionID string, updates map[string]interface{}) (bool, error) {
	tx := r.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("stripe_subscription_id = ?", stripeSubscriptionID).
		Updates(updates)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) FindSubscriptionOwner(ctx context.Context, stripeSubscriptionID string) (string, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).Select("user_id").
		Where("stripe_subscription_id = ?", stripeSubscriptionID).
		First(&sub).Error
	if err != nil {
		return "", err
	}
	return sub.UserID, nil
}

func (r *gormRepository) FindActiveSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).
		Preload("Price").
		Preload("Price.Product").
		Where("user_id = ? AND status IN ?", userID, []string{models.SubscriptionStatusTrialing, models.SubscriptionStatusActive}).
		Order("COALESCE(created, created_at) DESC").
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoActiveSubscription
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) UpsertProduct(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"active",
			"name",
			"description",
			"image",
			"metadata",
			"updated_at",
		}),
	}).Create(product).Error
}

func (r *gormRepository) UpsertPrice(ctx context.Context, price *models.Price) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"product_id",
			"active",
			"description",
			"unit_amount",
			"currency",
			"type",
			"interval",
			"interval_count",
			"trial_period_days",
			"metadata",
			"updated_at",
		}),
	}).Create(price).Error
}

func (r *gormRepository) ListActiveProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := r.db.WithContext(ctx).
		Preload("Prices", func(db *gorm.DB) *gorm.DB {
			return db.Where("active = ?", true).Order("unit_amount ASC")
		}).
		Where("active = ?", true).
		Order("name ASC").
		Find(&products).Error
	return products, err
}

func (r *gormRepository) CreateWebhookEventIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	db := r.db.WithContext(ctx)
	tx := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"attempts": gorm.Expr("billing_webhook_events.attempts + 1"),
		}),
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	var stored models.BillingWebhookEvent
	if err := db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return stored.Attempts <= 1, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(ctx context.Context, id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.WithContext(ctx).Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
