package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/chorepoints/internal/domain"
)

// JWTService defines operations for managing JWT authentication tokens.
//
// Identity is issued by an external account system; this service only signs
// and verifies the actor id and role it is handed.
type JWTService interface {
	// GenerateToken creates a signed JWT access token for the actor.
	// Returns the token string or an error if token generation fails.
	GenerateToken(ctx context.Context, actor domain.Actor) (string, error)

	// ValidateToken validates the provided access token string and extracts the claims.
	// Returns the claims if the token is valid, or an error if validation
	// fails (expired, invalid signature, unknown role, etc.).
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)
}

// Claims represents the custom claims structure for the JWT tokens.
type Claims struct {
	// UserID is the unique identifier of the actor the token was issued for.
	UserID uuid.UUID `json:"uid,omitempty"`

	// Role is the actor's role at issue time.
	Role domain.Role `json:"role,omitempty"`

	// Standard registered JWT claims
	Subject   string    `json:"sub,omitempty"`
	IssuedAt  time.Time `json:"iat,omitempty"`
	ExpiresAt time.Time `json:"exp,omitempty"`
	ID        string    `json:"jti,omitempty"`
}

// Actor returns the authenticated actor the claims describe.
func (c *Claims) Actor() domain.Actor {
	return domain.Actor{ID: c.UserID, Role: c.Role}
}
