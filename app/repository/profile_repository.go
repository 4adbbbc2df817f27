package repository

import (
	"context"
	"strings"

	"github.com/ManuelReschke/SaaSFox/app/models"
	"gorm.io/gorm"
)

// profileRepository implements the ProfileRepository interface
type profileRepository struct {
	db *gorm.DB
}

// NewProfileRepository creates a new profile repository instance
func NewProfileRepository(db *gorm.DB) ProfileRepository {
	return &profileRepository{db: db}
}

// Create inserts a new profile
func (r *profileRepository) Create(ctx context.Context, profile *models.Profile) error {
	return r.db.WithContext(ctx).Create(profile).Error
}

// GetByID retrieves a profile by its auth user id
func (r *profileRepository) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	var profile models.Profile
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&profile).Error
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// Update applies a partial update and returns the stored row. Returns
// gorm.ErrRecordNotFound when no profile has the id.
func (r *profileRepository) Update(ctx context.Context, id string, updates map[string]interface{}) (*models.Profile, error) {
	db := r.db.WithContext(ctx)
	if len(updates) > 0 {
		tx := db.Model(&models.Profile{}).Where("id = ?", id).Updates(updates)
		if tx.Error != nil {
			return nil, tx.Error
		}
	}
	return r.GetByID(ctx, id)
}

// Delete removes a profile; false when nothing matched.
func (r *profileRepository) Delete(ctx context.Context, id string) (bool, error) {
	tx := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Profile{})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// List returns profiles newest first, optionally filtered by username or full name
func (r *profileRepository) List(ctx context.Context, offset, limit int, search string) ([]models.Profile, error) {
	var profiles []models.Profile
	err := r.searchScope(r.db.WithContext(ctx), search).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&profiles).Error
	return profiles, err
}

// Count returns the number of profiles matching the search
func (r *profileRepository) Count(ctx context.Context, search string) (int64, error) {
	var count int64
	err := r.searchScope(r.db.WithContext(ctx).Model(&models.Profile{}), search).Count(&count).Error
	return count, err
}

func (r *profileRepository) searchScope(db *gorm.DB, search string) *gorm.DB {
	search = strings.TrimSpace(search)
	if search == "" {
		return db
	}
	pattern := "%" + strings.ToLower(search) + "%"
	return db.Where("LOWER(username) LIKE ? OR LOWER(full_name) LIKE ?", pattern, pattern)
}
