package middleware

import (
	"github.com/ManuelReschke/SaaSFox/internal/pkg/usercontext"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// UserContextMiddleware sets up the user context for every request from the
// bearer token. Missing or invalid tokens leave the request anonymous; routes
// that need a user are guarded by RequireAPIAuth.
func UserContextMiddleware(verifier *TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		anonymous := usercontext.UserContext{IsLoggedIn: false}

		token := bearerToken(c.Get(fiber.HeaderAuthorization))
		if token == "" || verifier == nil {
			usercontext.SetUserContext(c, anonymous)
			return c.Next()
		}

		claims, err := verifier.Verify(token)
		if err != nil {
			log.Debugf("[Auth] Rejected bearer token on %s: %v", c.Path(), err)
			usercontext.SetUserContext(c, anonymous)
			return c.Next()
		}

		usercontext.SetUserContext(c, usercontext.UserContext{
			UserID:     claims.Subject,
			Email:      claims.Email,
			Role:       claims.Role,
			IsLoggedIn: true,
		})
		return c.Next()
	}
}
