package controllers

import (
	"encoding/json"
	"errors"

	"github.com/ManuelReschke/SaaSFox/app/models"
	"github.com/ManuelReschke/SaaSFox/app/repository"
	"github.com/ManuelReschke/SaaSFox/internal/pkg/response"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const defaultPageSize = 10

type profileListQuery struct {
	Page     int    `query:"page" json:"page" validate:"min=1"`
	PageSize int    `query:"pageSize" json:"pageSize" validate:"min=1,max=100"`
	Search   string `query:"search" json:"search" validate:"max=100"`
}

type profileListResponse struct {
	Profiles []models.Profile `json:"profiles"`
	Count    int64            `json:"count"`
	Page     int              `json:"page"`
	PageSize int              `json:"pageSize"`
}

// profileInput is the writable subset of a profile. Every field is optional;
// avatar_url and website may be set to null to clear them.
type profileInput struct {
	Username  *string `json:"username" validate:"omitempty,min=3,max=50"`
	FullName  *string `json:"full_name" validate:"omitempty,max=100"`
	AvatarURL *string `json:"avatar_url" validate:"omitempty,url,max=255"`
	Website   *string `json:"website" validate:"omitempty,url,max=255"`
}

var nullableProfileFields = map[string]bool{
	"avatar_url": true,
	"website":    true,
}

func profiles() repository.ProfileRepository {
	return repository.GetGlobalFactory().GetProfileRepository()
}

// parseProfileInput validates the body and returns the columns it sets.
// Absent fields are left out so updates stay partial.
func parseProfileInput(c *fiber.Ctx) (map[string]interface{}, error) {
	body := c.Body()
	var present map[string]json.RawMessage
	if err := json.Unmarshal(body, &present); err != nil {
		return nil, response.ErrInvalidBody(err)
	}
	var in profileInput
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, response.ErrInvalidBody(err)
	}
	if err := validate.Struct(&in); err != nil {
		return nil, response.FromValidation(err)
	}

	values := map[string]*string{
		"username":   in.Username,
		"full_name":  in.FullName,
		"avatar_url": in.AvatarURL,
		"website":    in.Website,
	}
	updates := make(map[string]interface{})
	var nullErrs []response.FieldError
	for field, v := range values {
		if _, ok := present[field]; !ok {
			continue
		}
		if v == nil {
			if !nullableProfileFields[field] {
				nullErrs = append(nullErrs, response.FieldError{Field: field, Rule: "required"})
				continue
			}
			updates[field] = nil
			continue
		}
		updates[field] = *v
	}
	if len(nullErrs) > 0 {
		return nil, response.ErrValidation(nullErrs)
	}
	return updates, nil
}

func profileError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return response.ErrNotFound("Profile not found")
	}
	if isUniqueViolation(err) {
		return response.ErrConflict("Username already taken", err)
	}
	return err
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// HandleListProfiles returns a page of profiles, newest first.
func HandleListProfiles(c *fiber.Ctx) error {
	q := profileListQuery{Page: 1, PageSize: defaultPageSize}
	if err := c.QueryParser(&q); err != nil {
		return response.Error(c, response.ErrInvalidParams(err.Error()))
	}
	if err := validate.Struct(&q); err != nil {
		return response.Error(c, response.ErrInvalidParams(response.ValidationDetails(err)))
	}

	ctx, cancel := requestContext(c, apiRequestTimeout)
	defer cancel()

	offset := (q.Page - 1) * q.PageSize
	list, err := profiles().List(ctx, offset, q.PageSize, q.Search)
	if err != nil {
		return response.Error(c, err)
	}
	count, err := profiles().Count(ctx, q.Search)
	if err != nil {
		return response.Error(c, err)
	}
	if list == nil {
		list = []models.Profile{}
	}

	return response.Data(c, fiber.StatusOK, profileListResponse{
		Profiles: list,
		Count:    count,
		Page:     q.Page,
		PageSize: q.PageSize,
	})
}

// HandleCreateProfile creates the caller's profile, or updates it when it
// already exists.
func HandleCreateProfile(c *fiber.Ctx) error {
	updates, err := parseProfileInput(c)
	if err != nil {
		return response.Error(c, err)
	}

	ctx, cancel := requestContext(c, apiRequestTimeout)
	defer cancel()

	user := currentUser(c)
	_, err = profiles().GetByID(ctx, user.UserID)
	switch {
	case err == nil:
		updated, err := profiles().Update(ctx, user.UserID, updates)
		if err != nil {
			return response.Error(c, profileError(err))
		}
		return response.Data(c, fiber.StatusOK, updated)
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return response.Error(c, err)
	}

	profile := &models.Profile{ID: user.UserID}
	if user.Email != "" {
		email := user.Email
		profile.Email = &email
	}
	applyProfileUpdates(profile, updates)
	if err := profiles().Create(ctx, profile); err != nil {
		return response.Error(c, profileError(err))
	}
	return response.Data(c, fiber.StatusCreated, profile)
}

// HandleGetProfile returns a single profile.
func HandleGetProfile(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c, apiRequestTimeout)
	defer cancel()

	profile, err := profiles().GetByID(ctx, c.Params("id"))
	if err != nil {
		return response.Error(c, profileError(err))
	}
	return response.Data(c, fiber.StatusOK, profile)
}

// HandleUpdateProfile applies a partial update to the caller's own profile.
// PUT and PATCH share this handler.
func HandleUpdateProfile(c *fiber.Ctx) error {
	id := c.Params("id")
	if currentUser(c).UserID != id {
		return response.Error(c, response.ErrForbidden("You can only update your own profile"))
	}
	updates, err := parseProfileInput(c)
	if err != nil {
		return response.Error(c, err)
	}

	ctx, cancel := requestContext(c, apiRequestTimeout)
	defer cancel()

	updated, err := profiles().Update(ctx, id, updates)
	if err != nil {
		return response.Error(c, profileError(err))
	}
	return response.Data(c, fiber.StatusOK, updated)
}

// HandleDeleteProfile deletes the caller's own profile.
func HandleDeleteProfile(c *fiber.Ctx) error {
	id := c.Params("id")
	if currentUser(c).UserID != id {
		return response.Error(c, response.ErrForbidden("You can only delete your own profile"))
	}

	ctx, cancel := requestContext(c, apiRequestTimeout)
	defer cancel()

	deleted, err := profiles().Delete(ctx, id)
	if err != nil {
		return response.Error(c, err)
	}
	if !deleted {
		return response.Error(c, response.ErrNotFound("Profile not found"))
	}
	return response.Data(c, fiber.StatusOK, fiber.Map{"message": "Profile deleted successfully"})
}

func applyProfileUpdates(p *models.Profile, updates map[string]interface{}) {
	str := func(v interface{}) *string {
		s, ok := v.(string)
		if !ok {
			return nil
		}
		return &s
	}
	for field, v := range updates {
		switch field {
		case "username":
			p.Username = str(v)
		case "full_name":
			p.FullName = str(v)
		case "avatar_url":
			p.AvatarURL = str(v)
		case "website":
			p.Website = str(v)
		}
	}
}
