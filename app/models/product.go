package models

import (
	"time"

	"gorm.io/datatypes"
)

// Product mirrors a Stripe product.
type Product struct {
	ID          string            `gorm:"type:varchar(191);primaryKey" json:"id"`
	Active      bool              `gorm:"not null;index" json:"active"`
	Name        string            `gorm:"type:varchar(255);not null" json:"name"`
	Description string            `gorm:"type:text" json:"description"`
	Image       string            `gorm:"type:varchar(512)" json:"image"`
	Metadata    datatypes.JSONMap `json:"metadata"`
	CreatedAt   time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"autoUpdateTime" json:"updated_at"`

	Prices []Price `gorm:"foreignKey:ProductID;references:ID" json:"prices,omitempty"`
}
