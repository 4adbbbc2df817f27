package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// Profile is the application-side view of a user managed by the hosted auth
// provider. The primary key is the auth provider's user id.
type Profile struct {
	ID               string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Username         *string   `gorm:"type:varchar(50);uniqueIndex" json:"username" validate:"omitempty,min=3,max=50"`
	FullName         *string   `gorm:"type:varchar(100)" json:"full_name" validate:"omitempty,max=100"`
	AvatarURL        *string   `gorm:"type:varchar(255)" json:"avatar_url" validate:"omitempty,url,max=255"`
	Website          *string   `gorm:"type:varchar(255)" json:"website" validate:"omitempty,url,max=255"`
	Email            *string   `gorm:"type:varchar(200)" json:"email" validate:"omitempty,email,max=200"`
	StripeCustomerID *string   `gorm:"type:varchar(191);uniqueIndex" json:"stripe_customer_id,omitempty"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *Profile) Validate() error {
	v := validator.New()

	return v.Struct(p)
}

// HasStripeCustomer reports whether the profile is linked to a Stripe customer.
func (p *Profile) HasStripeCustomer() bool {
	return p.StripeCustomerID != nil && *p.StripeCustomerID != ""
}
