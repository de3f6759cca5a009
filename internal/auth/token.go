package auth

import (
	"errors"
	"time"

	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	UserID uuid.UUID `json:"uid"`
	Role   string    `json:"role"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies session tokens. The signing key and
// lifetime are fixed at construction; verification touches no storage.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	hasTTL bool
}

// NewTokenManager parses tokenExp with ParseTokenExp. An unparseable
// value means issued tokens carry no expiry, matching TTL() == nil.
func NewTokenManager(secret string, tokenExp string) *TokenManager {
	ttl, ok := ParseTokenExp(tokenExp)
	return &TokenManager{
		secret: []byte(secret),
		ttl:    ttl,
		hasTTL: ok,
	}
}

// TTL returns the configured token lifetime in whole seconds, or nil
// when tokens are issued without expiry.
func (tm *TokenManager) TTL() *int64 {
	if !tm.hasTTL {
		return nil
	}
	secs := int64(tm.ttl / time.Second)
	return &secs
}

func (tm *TokenManager) Issue(username string, userID uuid.UUID, role string) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  username,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if tm.hasTTL {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(tm.ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.secret)
}

// Parse verifies signature and expiry. Any failure comes back as an
// error wrapping ErrInvalidToken so callers treat it as "unauthenticated".
func (tm *TokenManager) Parse(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return tm.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
