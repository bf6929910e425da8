package libauth_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tourdesk/tourdesk/libauth"
)

var testSecret = []byte("test-secret-key")

func TestUnit_TokenRoundTrip(t *testing.T) {
	token, err := libauth.NewToken(testSecret, "user-1", time.Hour)
	require.NoError(t, err)

	identity, err := libauth.VerifyToken(testSecret, token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", identity)
}

func TestUnit_TokenRejectsEmptyIdentity(t *testing.T) {
	_, err := libauth.NewToken(testSecret, "", time.Hour)
	assert.ErrorIs(t, err, libauth.ErrIdentityMissing)
}

func TestUnit_TokenRejectsMissingToken(t *testing.T) {
	_, err := libauth.VerifyToken(testSecret, "")
	assert.ErrorIs(t, err, libauth.ErrTokenMissing)
}

func TestUnit_TokenRejectsExpired(t *testing.T) {
	token, err := libauth.NewToken(testSecret, "user-1", -time.Minute)
	require.NoError(t, err)

	_, err = libauth.VerifyToken(testSecret, token)
	assert.ErrorIs(t, err, libauth.ErrTokenExpired)
}

func TestUnit_TokenRejectsWrongSecret(t *testing.T) {
	token, err := libauth.NewToken(testSecret, "user-1", time.Hour)
	require.NoError(t, err)

	_, err = libauth.VerifyToken([]byte("other-secret"), token)
	assert.ErrorIs(t, err, libauth.ErrTokenParsingFailed)
}

func TestUnit_TokenRejectsWrongSigningMethod(t *testing.T) {
	claims := libauth.Claims{
		Identity: "user-1",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = libauth.VerifyToken(testSecret, signed)
	assert.ErrorIs(t, err, libauth.ErrUnexpectedSigningMethod)
}

func TestUnit_TokenRejectsMissingIssuedAt(t *testing.T) {
	claims := libauth.Claims{
		Identity: "user-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	require.NoError(t, err)

	_, err = libauth.VerifyToken(testSecret, signed)
	assert.ErrorIs(t, err, libauth.ErrIssuedAtMissing)
}

func TestUnit_TokenRejectsMissingIdentity(t *testing.T) {
	claims := libauth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	require.NoError(t, err)

	_, err = libauth.VerifyToken(testSecret, signed)
	assert.ErrorIs(t, err, libauth.ErrIdentityMissing)
}

func TestUnit_RefreshToken(t *testing.T) {
	token, err := libauth.NewToken(testSecret, "user-1", time.Hour)
	require.NoError(t, err)

	refreshed, err := libauth.RefreshToken(testSecret, token, 2*time.Hour)
	require.NoError(t, err)

	identity, err := libauth.VerifyToken(testSecret, refreshed)
	require.NoError(t, err)
	assert.Equal(t, "user-1", identity)
}

func TestUnit_IdentityContext(t *testing.T) {
	ctx := context.Background()

	_, err := libauth.IdentityFrom(ctx)
	assert.ErrorIs(t, err, libauth.ErrNotAuthorized)

	ctx = libauth.WithIdentity(ctx, "user-7")
	identity, err := libauth.IdentityFrom(ctx)
	require.NoError(t, err)
	assert.Equal(t, "user-7", identity)
}
