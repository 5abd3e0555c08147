// Package auth implements JSON Web Token (JWT) verification for the
// matchmaker's auth-gated surfaces (detailed stats, admin API) using
// HMAC-SHA256 signing.
//
// SECURITY:
//   - The signing algorithm is pinned to HMAC to prevent algorithm
//     substitution attacks.
//   - The secret must be at least 32 bytes; configuration validation
//     enforces this in production.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTConfig holds JWT configuration.
type JWTConfig struct {
	// SecretKey is the HMAC signing key for tokens.
	// Minimum length: 32 bytes (256 bits) for HS256.
	SecretKey string

	// Issuer identifies who issued the token.
	// Default: "matchmaker"
	Issuer string

	// TokenDuration is how long issued tokens remain valid.
	// Default: 24 hours
	TokenDuration time.Duration
}

// Claims are the token claims the matchmaker cares about.
type Claims struct {
	// Role defines the caller's permission level ("admin", "operator").
	Role string `json:"role,omitempty"`

	jwt.RegisteredClaims
}

// ErrTokenInvalid is returned for any token that fails verification.
var ErrTokenInvalid = errors.New("invalid authentication token")

// JWTManager handles JWT token operations
type JWTManager struct {
	config *JWTConfig
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(config *JWTConfig) *JWTManager {
	if config.TokenDuration == 0 {
		config.TokenDuration = 24 * time.Hour
	}
	if config.Issuer == "" {
		config.Issuer = "matchmaker"
	}
	return &JWTManager{config: config}
}

// GenerateToken issues a signed token for the given subject and role.
func (m *JWTManager) GenerateToken(subject, role string) (string, error) {
	now := time.Now()
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.config.Issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.TokenDuration)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(m.config.SecretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken verifies the signature, algorithm, issuer, and time claims,
// returning the parsed claims.
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			// Pin the algorithm family; reject anything but HMAC.
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(m.config.SecretKey), nil
		},
		jwt.WithIssuer(m.config.Issuer),
	)
	if err != nil || !token.Valid {
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
