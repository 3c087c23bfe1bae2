package domain

// Role is the caller's role as asserted by the identity provider
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// AuthContext contains the authenticated caller for request context
type AuthContext struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
}

// IsAdmin checks if the authenticated caller is an admin
func (a *AuthContext) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// TokenClaims represents the JWT token payload issued by the identity service
type TokenClaims struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	Role      Role   `json:"role"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// AuthContext converts claims into a request auth context.
func (c *TokenClaims) AuthContext() *AuthContext {
	return &AuthContext{
		UserID: c.UserID,
		Email:  c.Email,
		Role:   c.Role,
	}
}
