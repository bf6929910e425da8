// Package libauth issues and verifies the JWTs that authenticate staff
// against the chat API. Tokens carry a single identity claim; authorization
// decisions stay with the services.
package libauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNotAuthorized           = errors.New("libauth: not authorized")
	ErrTokenMissing            = errors.New("libauth: token missing")
	ErrTokenExpired            = errors.New("libauth: token expired")
	ErrTokenParsingFailed      = errors.New("libauth: token parsing failed")
	ErrTokenSigningFailed      = errors.New("libauth: token signing failed")
	ErrUnexpectedSigningMethod = errors.New("libauth: unexpected signing method")
	ErrInvalidTokenClaims      = errors.New("libauth: invalid token claims")
	ErrIdentityMissing         = errors.New("libauth: identity claim missing")
	ErrIssuedAtMissing         = errors.New("libauth: issued-at claim missing")
	ErrIssuedAtInFuture        = errors.New("libauth: issued-at claim is in the future")
)

// Claims is the token payload. Identity is the authenticated user ID.
type Claims struct {
	Identity string `json:"identity"`
	jwt.RegisteredClaims
}

// NewToken mints a signed HS256 token for identity, valid for ttl.
func NewToken(secret []byte, identity string, ttl time.Duration) (string, error) {
	if identity == "" {
		return "", ErrIdentityMissing
	}
	now := time.Now()
	claims := Claims{
		Identity: identity,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTokenSigningFailed, err)
	}
	return signed, nil
}

// VerifyToken parses and validates tokenString and returns the identity it
// carries. All failure modes map onto the package sentinels.
func VerifyToken(secret []byte, tokenString string) (string, error) {
	if tokenString == "" {
		return "", ErrTokenMissing
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w: %v", ErrUnexpectedSigningMethod, t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrUnexpectedSigningMethod):
			return "", err
		case errors.Is(err, jwt.ErrTokenExpired):
			return "", fmt.Errorf("%w: %w", ErrTokenExpired, err)
		default:
			return "", fmt.Errorf("%w: %w", ErrTokenParsingFailed, err)
		}
	}
	if !token.Valid {
		return "", ErrInvalidTokenClaims
	}
	if claims.IssuedAt == nil {
		return "", ErrIssuedAtMissing
	}
	if claims.IssuedAt.After(time.Now().Add(time.Minute)) {
		return "", ErrIssuedAtInFuture
	}
	if claims.Identity == "" {
		return "", ErrIdentityMissing
	}
	return claims.Identity, nil
}

// RefreshToken re-mints a token with a fresh expiry if the current one is
// still valid.
func RefreshToken(secret []byte, tokenString string, ttl time.Duration) (string, error) {
	identity, err := VerifyToken(secret, tokenString)
	if err != nil {
		return "", err
	}
	return NewToken(secret, identity, ttl)
}

type identityKey struct{}

// WithIdentity stamps the authenticated identity into ctx.
func WithIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFrom extracts the authenticated identity from ctx.
func IdentityFrom(ctx context.Context) (string, error) {
	identity, ok := ctx.Value(identityKey{}).(string)
	if !ok || identity == "" {
		return "", ErrNotAuthorized
	}
	return identity, nil
}
