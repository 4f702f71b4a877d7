package auth

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karimlifatimaa/MonyoRMSAuth/internal/shared/config"
)

func testConfig(secret string) *config.Config {
	return &config.Config{
		JWT: config.JWTConfig{
			Secret:           secret,
			Issuer:           "monyorms-auth-test",
			AccessExpiresIn:  15 * time.Minute,
			RefreshExpiresIn: 7 * 24 * time.Hour,
			ResetExpiresIn:   time.Hour,
		},
	}
}

func testSecret(seed byte) string {
	key := make([]byte, 48)
	for i := range key {
		key[i] = seed + byte(i)
	}
	return base64.StdEncoding.EncodeToString(key)
}

func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	svc, err := NewTokenService(testConfig(testSecret('a')))
	require.NoError(t, err)
	return svc
}

func TestNewTokenService_SecretValidation(t *testing.T) {
	tests := []struct {
		name   string
		secret string
	}{
		{"missing secret", ""},
		{"not base64", "%%%not-base64%%%"},
		{"too short", base64.StdEncoding.EncodeToString([]byte("short"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTokenService(testConfig(tt.secret))
			assert.Error(t, err)
		})
	}
}

func TestGenerateAndDecode_Roundtrip(t *testing.T) {
	svc := newTestTokenService(t)

	tokenString, err := svc.Generate("alice", []string{"USER"}, time.Minute)
	require.NoError(t, err)

	claims, err := svc.Decode(tokenString)
	require.NoError(t, err)

	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, []string{"USER"}, claims.Roles)
	assert.Equal(t, "monyorms-auth-test", claims.Issuer)
	assert.True(t, claims.ExpiresAt.After(time.Now()))
}

func TestDecode_Expired(t *testing.T) {
	svc := newTestTokenService(t)

	tokenString, err := svc.Generate("alice", []string{"USER"}, -time.Minute)
	require.NoError(t, err)

	_, err = svc.Decode(tokenString)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestDecode_Malformed(t *testing.T) {
	svc := newTestTokenService(t)

	_, err := svc.Decode("not-a-token")
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestDecode_TamperedSignature(t *testing.T) {
	svc := newTestTokenService(t)

	tokenString, err := svc.Generate("alice", []string{"USER"}, time.Minute)
	require.NoError(t, err)

	parts := strings.Split(tokenString, ".")
	require.Len(t, parts, 3)
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	_, err = svc.Decode(tampered)
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestDecode_WrongSigningKey(t *testing.T) {
	issuer := newTestTokenService(t)
	verifier, err := NewTokenService(testConfig(testSecret('z')))
	require.NoError(t, err)

	tokenString, err := issuer.Generate("alice", []string{"USER"}, time.Minute)
	require.NoError(t, err)

	_, err = verifier.Decode(tokenString)
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestExtractors(t *testing.T) {
	svc := newTestTokenService(t)

	tokenString, err := svc.Generate("bob", []string{"ADMIN"}, time.Minute)
	require.NoError(t, err)

	subject, err := svc.ExtractSubject(tokenString)
	require.NoError(t, err)
	assert.Equal(t, "bob", subject)

	roles, err := svc.ExtractRoles(tokenString)
	require.NoError(t, err)
	assert.Equal(t, []string{"ADMIN"}, roles)

	expiry, err := svc.ExtractExpiration(tokenString)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), expiry, 5*time.Second)
}

func TestExtractSubject_FailsOnGarbage(t *testing.T) {
	svc := newTestTokenService(t)

	_, err := svc.ExtractSubject("garbage")
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestValidate(t *testing.T) {
	svc := newTestTokenService(t)
	other, err := NewTokenService(testConfig(testSecret('z')))
	require.NoError(t, err)

	tokenString, err := svc.Generate("alice", []string{"USER"}, time.Minute)
	require.NoError(t, err)

	expiredToken, err := svc.Generate("alice", []string{"USER"}, -time.Minute)
	require.NoError(t, err)

	assert.True(t, svc.Validate(tokenString, "alice"))
	assert.False(t, svc.Validate(tokenString, "Alice"), "subject match is case-sensitive")
	assert.False(t, svc.Validate(tokenString, "bob"))
	assert.False(t, svc.Validate(expiredToken, "alice"))
	assert.False(t, other.Validate(tokenString, "alice"), "different signing key")
	assert.False(t, svc.Validate("garbage", "alice"))
}

func TestIsExpired(t *testing.T) {
	assert.False(t, IsExpired(time.Now().Add(time.Minute)))
	assert.True(t, IsExpired(time.Now().Add(-time.Minute)))
}
