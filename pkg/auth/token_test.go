package auth

import (
	"crypto/rand"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSecret(t *testing.T) []byte {
	t.Helper()
	secret := make([]byte, 64)
	_, err := rand.Read(secret)
	require.NoError(t, err)
	return secret
}

func TestTokenService_IssueAndValidate(t *testing.T) {
	svc := NewTokenServiceWithSecret(testSecret(t))

	token, err := svc.Issue("agent-7", []Permission{PermissionRead, PermissionAnalytics}, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	identity, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "agent-7", identity.Subject)
	assert.Equal(t, "token", identity.Method)
	assert.True(t, identity.HasPermission(PermissionAnalytics))
	assert.False(t, identity.HasPermission(PermissionWrite))
}

func TestTokenService_RejectsTamperedToken(t *testing.T) {
	svc := NewTokenServiceWithSecret(testSecret(t))
	token, err := svc.Issue("victim", []Permission{PermissionRead}, time.Hour)
	require.NoError(t, err)

	// Flip a character in the payload segment.
	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	payload := []byte(parts[1])
	payload[0] ^= 0x01
	parts[1] = string(payload)

	_, err = svc.Validate(strings.Join(parts, "."))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenService_RejectsForeignSecret(t *testing.T) {
	issuer := NewTokenServiceWithSecret(testSecret(t))
	verifier := NewTokenServiceWithSecret(testSecret(t))

	token, err := issuer.Issue("someone", nil, time.Hour)
	require.NoError(t, err)

	_, err = verifier.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenService_RejectsExpiredToken(t *testing.T) {
	secret := testSecret(t)
	svc := NewTokenServiceWithSecret(secret)

	expired, err := jwt.NewBuilder().
		Subject("expired").
		Issuer("xactions").
		Audience([]string{"a2a"}).
		IssuedAt(time.Now().Add(-2 * time.Hour)).
		Expiration(time.Now().Add(-time.Hour)).
		Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(expired, jwt.WithKey(jwa.HS256, secret))
	require.NoError(t, err)

	_, err = svc.Validate(string(signed))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenService_Refresh(t *testing.T) {
	svc := NewTokenServiceWithSecret(testSecret(t))
	token, err := svc.Issue("refresher", []Permission{PermissionWorkflow}, time.Hour)
	require.NoError(t, err)

	fresh, err := svc.Refresh(token, time.Hour)
	require.NoError(t, err)

	identity, err := svc.Validate(fresh)
	require.NoError(t, err)
	assert.Equal(t, "refresher", identity.Subject)
	assert.True(t, identity.HasPermission(PermissionWorkflow))
}

func TestTokenService_DropsUnknownPermissionClaims(t *testing.T) {
	svc := NewTokenServiceWithSecret(testSecret(t))
	token, err := svc.Issue("mixed", []Permission{PermissionRead}, time.Hour)
	require.NoError(t, err)

	identity, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, []Permission{PermissionRead}, identity.Permissions)
}

func TestLoadOrCreateSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a2a", "a2a-secret.key")

	first, err := LoadOrCreateSecret(path)
	require.NoError(t, err)
	assert.Len(t, first, 64)

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}

	second, err := LoadOrCreateSecret(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestLoadOrCreateSecret_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a2a-secret.key")
	require.NoError(t, os.WriteFile(path, []byte("not-hex!"), 0o600))

	_, err := LoadOrCreateSecret(path)
	assert.Error(t, err)
}
