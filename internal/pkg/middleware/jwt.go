package middleware

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ManuelReschke/SaaSFox/internal/pkg/env"
	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// Claims are the identity fields read from an auth provider access token.
type Claims struct {
	Subject string
	Email   string
	Role    string
}

// TokenVerifier validates HMAC-signed access tokens issued by the hosted
// auth provider.
type TokenVerifier struct {
	secret   []byte
	issuer   string
	audience string
}

func NewTokenVerifier(secret, issuer, audience string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret), issuer: issuer, audience: audience}
}

// NewTokenVerifierFromEnv returns nil when AUTH_JWT_SECRET is unset.
func NewTokenVerifierFromEnv() *TokenVerifier {
	secret := env.GetEnv("AUTH_JWT_SECRET", "")
	if secret == "" {
		return nil
	}
	return NewTokenVerifier(secret, env.GetEnv("AUTH_JWT_ISSUER", ""), env.GetEnv("AUTH_JWT_AUDIENCE", ""))
}

func (v *TokenVerifier) Verify(tokenStr string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	sub := getClaimString(claims, "sub")
	if sub == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return &Claims{
		Subject: sub,
		Email:   getClaimString(claims, "email"),
		Role:    getClaimString(claims, "role"),
	}, nil
}

func getClaimString(claims jwt.MapClaims, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
