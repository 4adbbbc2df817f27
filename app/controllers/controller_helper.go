package controllers

import (
	"context"
	"reflect"
	"strings"
	"time"

	"github.com/ManuelReschke/SaaSFox/internal/pkg/billing"
	"github.com/ManuelReschke/SaaSFox/internal/pkg/database"
	"github.com/ManuelReschke/SaaSFox/internal/pkg/response"
	"github.com/ManuelReschke/SaaSFox/internal/pkg/usercontext"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

const apiRequestTimeout = 15 * time.Second

var validate = newValidator()

// newGateway builds the Stripe client for a request. Tests replace it with a fake.
var newGateway = func() billing.Gateway {
	if g := billing.NewStripeGatewayFromEnv(); g != nil {
		return g
	}
	return nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	// report json field names in validation details
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

func billingService() (*billing.Service, error) {
	db := database.GetDB()
	if db == nil {
		return nil, response.ErrInternal("Database unavailable", nil)
	}
	return billing.NewServiceFromDB(db, newGateway()), nil
}

func requestContext(c *fiber.Ctx, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), timeout)
}

// parseBody decodes the JSON body into dst and runs its validate tags.
func parseBody(c *fiber.Ctx, dst interface{}) error {
	if err := c.BodyParser(dst); err != nil {
		return response.ErrInvalidBody(err)
	}
	if err := validate.Struct(dst); err != nil {
		return response.FromValidation(err)
	}
	return nil
}

func currentUser(c *fiber.Ctx) usercontext.UserContext {
	return usercontext.GetUserContext(c)
}

// GetClientIP determines the actual client IP address considering proxies and dual stack
// Returns both IPv4 and IPv6 addresses if available
func GetClientIP(c *fiber.Ctx) (string, string) {
	ipv4 := ""
	ipv6 := ""

	// 1. Check for Cloudflare header
	if cfIP := c.Get("CF-Connecting-IP"); cfIP != "" {
		if strings.Contains(cfIP, ":") {
			ipv6 = cfIP
			ipv4 = firstForwarded(c.Get("X-Forwarded-For"), false)
		} else {
			ipv4 = cfIP
			ipv6 = firstForwarded(c.Get("X-Forwarded-For"), true)
		}
		return ipv4, ipv6
	}

	// 2. Check for X-Forwarded-For header (standard proxy header)
	if xff := c.Get("X-Forwarded-For"); xff != "" {
		clientIP := strings.TrimSpace(strings.Split(xff, ",")[0])
		if clientIP != "" {
			if strings.Contains(clientIP, ":") {
				return firstForwarded(xff, false), clientIP
			}
			return clientIP, firstForwarded(xff, true)
		}
	}

	// 3. If no proxy headers were found, use the normal IP address
	ipAddr := c.IP()
	switch {
	case strings.HasPrefix(ipAddr, "::ffff:") && strings.Contains(ipAddr, "."):
		ipv4 = strings.TrimPrefix(ipAddr, "::ffff:")
	case strings.Contains(ipAddr, ":"):
		ipv6 = ipAddr
	default:
		ipv4 = ipAddr
	}
	if realIP := c.Get("X-Real-IP"); realIP != "" {
		if strings.Contains(realIP, ":") && ipv6 == "" {
			ipv6 = realIP
		} else if !strings.Contains(realIP, ":") && ipv4 == "" {
			ipv4 = realIP
		}
	}
	return ipv4, ipv6
}

// ClientKey returns one stable identifier per client, used for rate limiting.
func ClientKey(c *fiber.Ctx) string {
	ipv4, ipv6 := GetClientIP(c)
	if ipv4 != "" {
		return ipv4
	}
	if ipv6 != "" {
		return ipv6
	}
	return c.IP()
}

func firstForwarded(xff string, wantIPv6 bool) string {
	for _, ip := range strings.Split(xff, ",") {
		ip = strings.TrimSpace(ip)
		if ip == "" {
			continue
		}
		if strings.Contains(ip, ":") == wantIPv6 {
			return ip
		}
	}
	return ""
}
