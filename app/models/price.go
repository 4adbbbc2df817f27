package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	PriceTypeOneTime   = "one_time"
	PriceTypeRecurring = "recurring"
)

// Price mirrors a Stripe price. UnitAmount is in the currency's minor unit.
type Price struct {
	ID              string            `gorm:"type:varchar(191);primaryKey" json:"id"`
	ProductID       string            `gorm:"type:varchar(191);not null;index" json:"product_id"`
	Active          bool              `gorm:"not null;index" json:"active"`
	Description     string            `gorm:"type:varchar(255)" json:"description"`
	UnitAmount      *int64            `json:"unit_amount"`
	Currency        string            `gorm:"type:varchar(3)" json:"currency"`
	Type            string            `gorm:"type:varchar(16)" json:"type"`
	Interval        string            `gorm:"type:varchar(16)" json:"interval,omitempty"`
	IntervalCount   *int64            `json:"interval_count,omitempty"`
	TrialPeriodDays *int64            `json:"trial_period_days,omitempty"`
	Metadata        datatypes.JSONMap `json:"metadata"`
	CreatedAt       time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time         `gorm:"autoUpdateTime" json:"updated_at"`

	Product *Product `gorm:"foreignKey:ProductID;references:ID" json:"product,omitempty"`
}
