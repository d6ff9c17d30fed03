package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/xactions/xactions-a2a/pkg/a2a"
)

type contextKey string

const identityContextKey contextKey = "identity"

// Authenticator resolves the Authorization header against both
// credential mechanisms: `Bearer <token>` and `ApiKey <key>`.
type Authenticator struct {
	keys   *KeyManager
	tokens *TokenService
}

// NewAuthenticator bundles the key manager and token service.
func NewAuthenticator(keys *KeyManager, tokens *TokenService) *Authenticator {
	return &Authenticator{keys: keys, tokens: tokens}
}

// Authenticate parses the Authorization header and validates the
// credential it carries.
func (a *Authenticator) Authenticate(r *http.Request) (*Identity, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, ErrNoCredentials
	}

	scheme, value, found := strings.Cut(header, " ")
	if !found || value == "" {
		return nil, ErrNoCredentials
	}

	switch strings.ToLower(scheme) {
	case "bearer":
		return a.tokens.Validate(value)
	case "apikey":
		return a.keys.Validate(value)
	default:
		return nil, ErrNoCredentials
	}
}

// Middleware authenticates every request. When required is false,
// unauthenticated requests pass through without an identity; invalid
// credentials are still rejected.
func (a *Authenticator) Middleware(required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := a.Authenticate(r)
			if err != nil {
				if required || err != ErrNoCredentials {
					writeAuthError(w, http.StatusUnauthorized, a2a.CodeAuthRequired, "authentication required")
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// RequirePermission rejects authenticated requests lacking the
// permission. It must run after Middleware.
func RequirePermission(required Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := GetIdentity(r.Context())
			if identity == nil {
				writeAuthError(w, http.StatusUnauthorized, a2a.CodeAuthRequired, "authentication required")
				return
			}
			if !identity.HasPermission(required) {
				writeAuthError(w, http.StatusForbidden, a2a.CodeAuthForbidden, "permission denied: "+string(required))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithIdentity attaches the identity to the context.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// GetIdentity returns the identity attached by the middleware, or nil.
func GetIdentity(ctx context.Context) *Identity {
	if identity, ok := ctx.Value(identityContextKey).(*Identity); ok {
		return identity
	}
	return nil
}

func writeAuthError(w http.ResponseWriter, httpStatus, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(a2a.Error(nil, code, message))
}
