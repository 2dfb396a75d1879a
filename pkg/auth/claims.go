package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload is the identity an upstream issuer vouches for.
type AccessTokenPayload struct {
	UserID   uuid.UUID
	OwnerID  uuid.UUID
	TenantID *uuid.UUID
	JTI      string
}

// AccessTokenClaims is the JWT body the ledger API accepts. Owner scopes every
// query and user is recorded as the editor or creator of each change.
type AccessTokenClaims struct {
	UserID   uuid.UUID  `json:"user_id"`
	OwnerID  uuid.UUID  `json:"owner_id"`
	TenantID *uuid.UUID `json:"tenant_id,omitempty"`
	jwt.RegisteredClaims
}
