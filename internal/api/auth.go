package api

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/mrdcvlsc/food-reservation/internal/domain"
)

// Roles carried in the token's role claim.
const (
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

const actorKey = "actor"

// Claims are the bearer token claims issued by the auth service.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for userID. Used by the CLI and tests; the
// production issuer is the auth service.
func IssueToken(secret []byte, userID, role string, ttl time.Duration, now time.Time) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("issue token: empty secret")
	}
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// RequireClaims verifies the bearer token and stores the caller's
// domain.Actor in the request locals.
func RequireClaims(secret []byte) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			return unauthorized("bearer token required")
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
			return secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			return unauthorized("invalid or expired token")
		}
		if claims.UserID == "" {
			return unauthorized("token has no user_id")
		}
		if claims.Role != RoleStudent && claims.Role != RoleAdmin {
			return unauthorized("token has an unknown role")
		}

		c.Locals(actorKey, domain.Actor{UserID: claims.UserID, Admin: claims.Role == RoleAdmin})
		return c.Next()
	}
}

// RequireAdmin rejects non-admin callers. Mount after RequireClaims.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !actorOf(c).Admin {
			return domain.NewError(domain.ErrCodeForbidden, "admin role required")
		}
		return c.Next()
	}
}

func actorOf(c *fiber.Ctx) domain.Actor {
	actor, _ := c.Locals(actorKey).(domain.Actor)
	return actor
}
