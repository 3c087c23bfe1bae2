package driven

import "github.com/h10086733/es-admin-sub000/internal/core/domain"

// TokenVerifier validates bearer tokens issued by the identity service.
// Token issuance is not handled here.
type TokenVerifier interface {
	// ParseToken verifies the signature and expiry and returns the claims
	ParseToken(token string) (*domain.TokenClaims, error)
}
