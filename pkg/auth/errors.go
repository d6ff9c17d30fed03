package auth

import "errors"

var (
	// ErrInvalidKey is returned when an API key does not match any record.
	ErrInvalidKey = errors.New("invalid API key")
	// ErrKeyRevoked is returned when the matching key record is revoked.
	ErrKeyRevoked = errors.New("API key revoked")
	// ErrKeyExpired is returned when the matching key record has expired.
	ErrKeyExpired = errors.New("API key expired")
	// ErrInvalidToken is returned when a token fails signature or claim
	// validation.
	ErrInvalidToken = errors.New("invalid token")
	// ErrNoCredentials is returned when the Authorization header is
	// missing or unparseable.
	ErrNoCredentials = errors.New("missing or malformed credentials")
)
