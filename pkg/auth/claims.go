package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront/pkg/enums"
)

// AccessTokenPayload is what the caller supplies when minting a token.
type AccessTokenPayload struct {
	CustomerID *uuid.UUID
	Email      string
	Role       enums.Role
	JTI        string
}

// AccessTokenClaims is the token shoppers and admins present. Email is the address the
// identity provider verified; guests carry no CustomerID.
type AccessTokenClaims struct {
	CustomerID *uuid.UUID `json:"customer_id,omitempty"`
	Email      string     `json:"email"`
	Role       enums.Role `json:"role"`
	jwt.RegisteredClaims
}

// Validate runs after the registered claims pass; jwt.Parser calls it.
func (c AccessTokenClaims) Validate() error {
	if strings.TrimSpace(c.Email) == "" {
		return errors.New("token missing email claim")
	}
	if !c.Role.IsValid() {
		return fmt.Errorf("token carries invalid role %q", c.Role)
	}
	return nil
}
