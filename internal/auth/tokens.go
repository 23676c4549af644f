package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"aidanwoods.dev/go-paseto"

	domainerrors "github.com/neobackupapp/neobackup-server/internal/errors"
	"github.com/neobackupapp/neobackup-server/internal/id"
)

const (
	tokenIssuer   = "neobackup-server"
	tokenAudience = "neobackup-client"
)

// TokenService handles PASETO token generation and verification.
type TokenService struct {
	symmetricKey paseto.V4SymmetricKey
	ttl          time.Duration
	now          func() time.Time
}

// NewTokenService creates a token service from a 32-byte key. A ttl of zero
// issues tokens that never expire.
func NewTokenService(key []byte, ttl time.Duration) (*TokenService, error) {
	if len(key) != keyLength {
		return nil, fmt.Errorf("PASETO v4 key must be exactly %d bytes, got %d", keyLength, len(key))
	}

	symmetricKey, err := paseto.V4SymmetricKeyFromBytes(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create PASETO symmetric key: %w", err)
	}

	return &TokenService{
		symmetricKey: symmetricKey,
		ttl:          ttl,
		now:          time.Now,
	}, nil
}

// Issue creates a v4.local token for a named client.
func (s *TokenService) Issue(client string, scopes []Scope) (string, *Claims, error) {
	client = strings.TrimSpace(client)
	if client == "" {
		return "", nil, domainerrors.Validation("client name is required")
	}
	if len(scopes) == 0 {
		scopes = AllScopes
	}

	tokenID, err := id.Generate("tok")
	if err != nil {
		return "", nil, fmt.Errorf("generate token ID: %w", err)
	}

	now := s.now()
	claims := &Claims{
		Client:    client,
		Scopes:    scopes,
		Issuer:    tokenIssuer,
		Subject:   client,
		Audience:  tokenAudience,
		NotBefore: now,
		IssuedAt:  now,
		TokenID:   tokenID,
	}

	token := paseto.NewToken()
	token.SetIssuer(tokenIssuer)
	token.SetSubject(client)
	token.SetAudience(tokenAudience)
	token.SetIssuedAt(now)
	token.SetNotBefore(now)
	token.SetJti(tokenID)
	if s.ttl > 0 {
		claims.Expiration = now.Add(s.ttl)
		token.SetExpiration(claims.Expiration)
	}

	//nolint:errcheck // Token.Set only errors on invalid types, which we control
	_ = token.Set("client", client)
	//nolint:errcheck // Token.Set only errors on invalid types, which we control
	_ = token.Set("scopes", scopes)

	return token.V4Encrypt(s.symmetricKey, nil), claims, nil
}

// Verify decrypts and validates a token.
func (s *TokenService) Verify(tokenString string) (*Claims, error) {
	parser := paseto.NewParserWithoutExpiryCheck()
	parser.AddRule(paseto.ForAudience(tokenAudience))
	parser.AddRule(paseto.IssuedBy(tokenIssuer))

	token, err := parser.ParseV4Local(s.symmetricKey, tokenString, nil)
	if err != nil {
		return nil, domainerrors.Unauthorized("invalid token").WithCause(err)
	}

	var claims Claims
	if err := json.Unmarshal(token.ClaimsJSON(), &claims); err != nil {
		return nil, fmt.Errorf("parse claims: %w", err)
	}
	now := s.now()
	if now.Before(claims.NotBefore) {
		return nil, domainerrors.Unauthorized("token not yet valid")
	}
	// Checked here rather than by a parser rule so expiry keeps its own code.
	if !claims.Expiration.IsZero() && !now.Before(claims.Expiration) {
		return nil, domainerrors.ErrTokenExpired
	}

	return &claims, nil
}

// IsExpired reports whether err came from an expired token.
func IsExpired(err error) bool {
	return errors.Is(err, domainerrors.ErrTokenExpired)
}

// TTL returns the configured token lifetime.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}
