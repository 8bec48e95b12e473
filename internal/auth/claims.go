package auth

import "github.com/golang-jwt/jwt/v5"

// Claims are the only supported JWT claims shape for this gateway.
// Tokens are minted by the partner identity service; this core only
// verifies them and hands the resolved identity to the access-control
// components. TenantID identifies the business partner; ActorID is the
// end user acting on the tenant's behalf (may be empty for machine keys).
type Claims struct {
	jwt.RegisteredClaims

	TenantID string `json:"tenant_id"`
	ActorID  string `json:"actor_id,omitempty"`
	Role     string `json:"role"`
}
