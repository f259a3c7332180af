package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/shelfwise-backend/pkg/enums"
)

type AccessTokenPayload struct {
	UserID uuid.UUID
	Email  string
	Role   enums.MemberRole
	JTI    string
}

// AccessTokenClaims is the reader token issued by the identity service.
// Email is optional and becomes the payer email on charges.
type AccessTokenClaims struct {
	UserID uuid.UUID        `json:"user_id"`
	Email  string           `json:"email,omitempty"`
	Role   enums.MemberRole `json:"role"`
	jwt.RegisteredClaims
}

// Validate runs after the registered claims checks in the jwt parser.
func (c AccessTokenClaims) Validate() error {
	if c.UserID == uuid.Nil {
		return errors.New("missing user id")
	}
	if c.Role != "" && !c.Role.IsValid() {
		return fmt.Errorf("unknown role %q", c.Role)
	}
	return nil
}
