package mocks

import (
	"github.com/h10086733/es-admin-sub000/internal/core/domain"
	"github.com/h10086733/es-admin-sub000/internal/core/ports/driven"
)

// MockTokenVerifier maps raw tokens to claims
type MockTokenVerifier struct {
	Tokens map[string]*domain.TokenClaims
}

// NewMockTokenVerifier creates a verifier that knows no tokens.
func NewMockTokenVerifier() *MockTokenVerifier {
	return &MockTokenVerifier{Tokens: make(map[string]*domain.TokenClaims)}
}

func (m *MockTokenVerifier) ParseToken(token string) (*domain.TokenClaims, error) {
	claims, ok := m.Tokens[token]
	if !ok {
		return nil, domain.ErrTokenInvalid
	}
	return claims, nil
}

var _ driven.TokenVerifier = (*MockTokenVerifier)(nil)
