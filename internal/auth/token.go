// Package auth issues and verifies the bearer tokens of the API.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/YorickdeJong/energy-contracts/internal/common"
	"github.com/YorickdeJong/energy-contracts/internal/entity"
)

const issuer = "energy-contracts"

// Claims represents the JWT claims. Subject holds the user id.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

type Config struct {
	Secret string
	TTL    time.Duration
}

// ConfigFrom maps the server section.
func ConfigFrom(c common.ServerConfig) Config {
	return Config{Secret: c.JWTSecret, TTL: c.TokenTTL}
}

// GenerateToken signs a token for u.
func GenerateToken(u *entity.User, cfg Config) (string, time.Time, error) {
	if cfg.Secret == "" {
		return "", time.Time{}, common.NewAppError(common.CodeConfiguration, "JWT secret is not set", common.ErrNotConfigured)
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	now := time.Now()
	expiresAt := now.Add(ttl)

	claims := Claims{
		Email: u.Email,
		Role:  u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID.String(),
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ParseToken verifies signature, algorithm and expiry and returns the claims.
// Every rejection is an UNAUTHORIZED AppError.
func ParseToken(raw string, cfg Config) (*Claims, error) {
	if cfg.Secret == "" {
		return nil, common.NewAppError(common.CodeConfiguration, "JWT secret is not set", common.ErrNotConfigured)
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		msg := "invalid token"
		if errors.Is(err, jwt.ErrTokenExpired) {
			msg = "token expired"
		}
		return nil, common.NewAppError(common.CodeUnauthorized, msg, errors.Join(common.ErrUnauthorized, err))
	}
	return claims, nil
}

// Actor converts verified claims into the request actor.
func (c *Claims) Actor() (common.Actor, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return common.Actor{}, common.Unauthorized("token subject is not a user id")
	}
	return common.Actor{UserID: id, Email: c.Email, Role: c.Role}, nil
}
