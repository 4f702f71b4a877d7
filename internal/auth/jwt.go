package auth

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/karimlifatimaa/MonyoRMSAuth/internal/shared/config"
)

var (
	// ErrTokenMalformed covers structurally invalid tokens, unknown signing
	// methods and signature mismatches. Claims from such tokens are never
	// surfaced to callers.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrTokenExpired means the signature checked out but the expiry is in the past.
	ErrTokenExpired = errors.New("token expired")
)

// HS256 needs at least 32 bytes of key material.
const minSigningKeyBytes = 32

// Claims is the claim set embedded in every signed token.
type Claims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HMAC-SHA256 signed tokens. The signing key
// is derived once at construction and never mutated afterwards, so a single
// instance is safe for concurrent use.
type TokenService struct {
	key       []byte
	issuer    string
	accessTTL time.Duration
}

// NewTokenService derives the signing key from the configured base64 secret.
// A missing, undecodable or too-short secret is a startup failure.
func NewTokenService(cfg *config.Config) (*TokenService, error) {
	if cfg.JWT.Secret == "" {
		return nil, errors.New("JWT_SECRET is not configured")
	}

	key, err := base64.StdEncoding.DecodeString(cfg.JWT.Secret)
	if err != nil {
		return nil, fmt.Errorf("JWT_SECRET is not valid base64: %w", err)
	}

	if len(key) < minSigningKeyBytes {
		return nil, fmt.Errorf("JWT_SECRET must decode to at least %d bytes, got %d", minSigningKeyBytes, len(key))
	}

	return &TokenService{
		key:       key,
		issuer:    cfg.JWT.Issuer,
		accessTTL: cfg.JWT.AccessExpiresIn,
	}, nil
}

// Generate builds a signed token for subject carrying the given role claims,
// with issued-at = now and expiry = now + ttl.
func (s *TokenService) Generate(subject string, roles []string, ttl time.Duration) (string, error) {
	now := time.Now()

	claims := Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

// GenerateAccess issues an access token with the configured short TTL.
func (s *TokenService) GenerateAccess(subject string, roles []string) (string, error) {
	return s.Generate(subject, roles, s.accessTTL)
}

// AccessExpiresIn returns the access token lifetime in seconds, as reported
// to clients alongside issued tokens.
func (s *TokenService) AccessExpiresIn() int64 {
	return int64(s.accessTTL.Seconds())
}

// Decode verifies the signature and expiry of tokenString and returns its
// claims. The signature is checked before any claim is exposed.
func (s *TokenService) Decode(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(strings.TrimSpace(tokenString), claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenMalformed
		}
		return s.key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenMalformed
	}

	if !token.Valid || claims.ExpiresAt == nil {
		return nil, ErrTokenMalformed
	}

	return claims, nil
}

// ExtractSubject returns the subject of a verified token.
func (s *TokenService) ExtractSubject(tokenString string) (string, error) {
	claims, err := s.Decode(tokenString)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// ExtractRoles returns the role claims of a verified token.
func (s *TokenService) ExtractRoles(tokenString string) ([]string, error) {
	claims, err := s.Decode(tokenString)
	if err != nil {
		return nil, err
	}
	return claims.Roles, nil
}

// ExtractExpiration returns the expiry instant of a verified token.
func (s *TokenService) ExtractExpiration(tokenString string) (time.Time, error) {
	claims, err := s.Decode(tokenString)
	if err != nil {
		return time.Time{}, err
	}
	return claims.ExpiresAt.Time, nil
}

// Validate reports whether tokenString is a live token issued to subject.
// The subject comparison is case-sensitive. It never returns an error; any
// decode failure is simply false.
func (s *TokenService) Validate(tokenString, subject string) bool {
	claims, err := s.Decode(tokenString)
	if err != nil {
		return false
	}
	return claims.Subject == subject && !IsExpired(claims.ExpiresAt.Time)
}

// IsExpired is a strict "now > expiry" check: a token stays valid through its
// exact expiry instant.
func IsExpired(expiry time.Time) bool {
	return time.Now().After(expiry)
}
