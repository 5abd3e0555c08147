package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestGenerateAndValidateToken(t *testing.T) {
	manager := NewJWTManager(&JWTConfig{SecretKey: testSecret})

	token, err := manager.GenerateToken("ops", "admin")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := manager.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, "matchmaker", claims.Issuer)
}

func TestValidateRejectsGarbage(t *testing.T) {
	manager := NewJWTManager(&JWTConfig{SecretKey: testSecret})

	_, err := manager.ValidateToken("not.a.token")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	issuer := NewJWTManager(&JWTConfig{SecretKey: testSecret})
	verifier := NewJWTManager(&JWTConfig{SecretKey: "another-secret-another-secret-32"})

	token, err := issuer.GenerateToken("ops", "admin")
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestValidateRejectsWrongIssuer(t *testing.T) {
	issuer := NewJWTManager(&JWTConfig{SecretKey: testSecret, Issuer: "someone-else"})
	verifier := NewJWTManager(&JWTConfig{SecretKey: testSecret})

	token, err := issuer.GenerateToken("ops", "admin")
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	manager := NewJWTManager(&JWTConfig{SecretKey: testSecret})

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "matchmaker",
			Subject:   "ops",
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = manager.ValidateToken(signed)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestValidateRejectsUnsignedAlgorithm(t *testing.T) {
	manager := NewJWTManager(&JWTConfig{SecretKey: testSecret})

	token := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "matchmaker", Subject: "ops"},
	})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = manager.ValidateToken(signed)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
