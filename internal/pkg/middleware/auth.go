package middleware

import (
	"github.com/ManuelReschke/SaaSFox/internal/pkg/response"
	"github.com/ManuelReschke/SaaSFox/internal/pkg/usercontext"
	"github.com/gofiber/fiber/v2"
)

// RequireAPIAuth ensures an authenticated caller and returns the JSON 401
// envelope otherwise.
func RequireAPIAuth(c *fiber.Ctx) error {
	if !usercontext.IsLoggedIn(c) {
		return response.Error(c, response.ErrUnauthorized(""))
	}
	return c.Next()
}
