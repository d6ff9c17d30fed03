package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const (
	tokenIssuer   = "xactions"
	tokenAudience = "a2a"

	// DefaultTokenTTL is the token lifetime when callers pass zero.
	DefaultTokenTTL = time.Hour

	secretLength = 64
)

// TokenService issues and validates HS256 tokens signed with a
// process-local secret.
type TokenService struct {
	secret []byte
}

// NewTokenService loads the signing secret from path, generating one on
// first run. The secret file is created with 0600 permissions.
func NewTokenService(path string) (*TokenService, error) {
	secret, err := LoadOrCreateSecret(path)
	if err != nil {
		return nil, err
	}
	return &TokenService{secret: secret}, nil
}

// NewTokenServiceWithSecret builds a service over an explicit secret.
func NewTokenServiceWithSecret(secret []byte) *TokenService {
	return &TokenService{secret: secret}
}

// Issue signs a token for the subject with the given permissions.
func (s *TokenService) Issue(subject string, permissions []Permission, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	now := time.Now().UTC()

	perms := make([]string, len(permissions))
	for i, p := range permissions {
		perms[i] = string(p)
	}

	tok, err := jwt.NewBuilder().
		Subject(subject).
		Issuer(tokenIssuer).
		Audience([]string{tokenAudience}).
		IssuedAt(now).
		Expiration(now.Add(ttl)).
		Claim("permissions", perms).
		Build()
	if err != nil {
		return "", fmt.Errorf("build token: %w", err)
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, s.secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return string(signed), nil
}

// Validate verifies the signature, expiry, issuer, and audience, and
// returns the embedded identity.
func (s *TokenService) Validate(tokenString string) (*Identity, error) {
	tok, err := jwt.Parse(
		[]byte(tokenString),
		jwt.WithKey(jwa.HS256, s.secret),
		jwt.WithValidate(true),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithAudience(tokenAudience),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	identity := &Identity{
		Subject: tok.Subject(),
		Method:  "token",
	}
	if raw, ok := tok.Get("permissions"); ok {
		identity.Permissions = parsePermissions(raw)
	}
	return identity, nil
}

// Refresh exchanges a still-valid token for a fresh one with the same
// subject and permissions.
func (s *TokenService) Refresh(tokenString string, ttl time.Duration) (string, error) {
	identity, err := s.Validate(tokenString)
	if err != nil {
		return "", err
	}
	return s.Issue(identity.Subject, identity.Permissions, ttl)
}

func parsePermissions(raw any) []Permission {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	var perms []Permission
	for _, item := range items {
		str, ok := item.(string)
		if !ok {
			continue
		}
		p := Permission(strings.TrimSpace(str))
		if IsValidPermission(p) {
			perms = append(perms, p)
		}
	}
	return perms
}

// LoadOrCreateSecret reads the hex-encoded signing secret, generating
// and persisting a new one when the file does not exist. The same
// secret signs tokens, callback URLs, and webhook bodies.
func LoadOrCreateSecret(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		secret, decErr := hex.DecodeString(strings.TrimSpace(string(data)))
		if decErr != nil || len(secret) != secretLength {
			return nil, fmt.Errorf("corrupt signing secret at %s", path)
		}
		return secret, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read signing secret: %w", err)
	}

	secret := make([]byte, secretLength)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate signing secret: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create secret directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(secret)), 0o600); err != nil {
		return nil, fmt.Errorf("write signing secret: %w", err)
	}
	return secret, nil
}
