package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/settlement-core/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID  uuid.UUID
	StoreID *uuid.UUID
	Role    enums.Role
	JTI     string
}

// AccessTokenClaims represents the typed JWT presented by clients.
type AccessTokenClaims struct {
	UserID  uuid.UUID  `json:"user_id"`
	StoreID *uuid.UUID `json:"store_id,omitempty"`
	Role    enums.Role `json:"role"`
	jwt.RegisteredClaims
}

// Actor converts verified claims into the authorization context handed to
// services.
func (c AccessTokenClaims) Actor() Actor {
	return Actor{UserID: c.UserID, StoreID: c.StoreID, Role: c.Role}
}
