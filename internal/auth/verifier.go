package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jmougeot/alarm-server/internal/store"
)

// TokenVerifier implements gateway.CredentialVerifier against access tokens
// issued by NewAccessToken. It looks the subject up in the Store on every
// call rather than trusting a username embedded in the token, so a renamed or
// deleted account is reflected immediately.
type TokenVerifier struct {
	store  store.Store
	secret string
	issuer string
}

// NewTokenVerifier builds a verifier bound to a signing secret and issuer.
func NewTokenVerifier(st store.Store, secret, issuer string) *TokenVerifier {
	return &TokenVerifier{store: st, secret: secret, issuer: issuer}
}

// Verify validates the token's signature and expiry, then resolves the
// subject to a current user record.
func (v *TokenVerifier) Verify(token string) (uuid.UUID, string, error) {
	claims, err := ValidateAccessToken(token, v.secret, v.issuer)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("%w: subject is not a uuid", ErrInvalidToken)
	}

	user, err := v.store.GetUser(context.Background(), userID)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("resolve token subject: %w", err)
	}

	return user.ID, user.Username, nil
}
