package remote

import (
	"errors"
	"time"

	"github.com/MnemoResearchLab/mnemo/backend/internal/vocab"
	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultTokenTTL = 2 * time.Minute

	tokenIssuer   = "mnemo-sync"
	tokenAudience = "mnemo-remote"
)

var errMissingSigningSecret = errors.New("remote: signing secret must be provided")

// TokenSignerConfig configures the per-request bearer token signer.
type TokenSignerConfig struct {
	SigningSecret []byte
	TokenTTL      time.Duration
	Clock         func() time.Time
}

// TokenSigner mints short-lived HS256 tokens whose subject is the sync
// identity. The remote store derives the learner's partition from the
// verified subject, so identities never appear in request paths.
type TokenSigner struct {
	secret []byte
	ttl    time.Duration
	clock  func() time.Time
}

// NewTokenSigner constructs a TokenSigner with sane defaults.
func NewTokenSigner(cfg TokenSignerConfig) (*TokenSigner, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, errMissingSigningSecret
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TokenSigner{secret: cfg.SigningSecret, ttl: ttl, clock: clock}, nil
}

// Sign produces a signed bearer token scoping one request to the identity.
func (s *TokenSigner) Sign(identity vocab.SyncID) (string, error) {
	now := s.clock().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   identity.String(),
		Issuer:    tokenIssuer,
		Audience:  []string{tokenAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}
