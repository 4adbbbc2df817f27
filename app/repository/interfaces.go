package repository

import (
	"context"

	"github.com/ManuelReschke/SaaSFox/app/models"
	"gorm.io/gorm"
)

// ProfileRepository defines the interface for profile-related database operations
type ProfileRepository interface {
	Create(ctx context.Context, profile *models.Profile) error
	GetByID(ctx context.Context, id string) (*models.Profile, error)
	Update(ctx context.Context, id string, updates map[string]interface{}) (*models.Profile, error)
	Delete(ctx context.Context, id string) (bool, error)
	List(ctx context.Context, offset, limit int, search string) ([]models.Profile, error)
	Count(ctx context.Context, search string) (int64, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	Profile ProfileRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Profile: NewProfileRepository(db),
	}
}
