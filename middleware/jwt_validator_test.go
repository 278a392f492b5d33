package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHMACValidator(t *testing.T) {
	_, err := NewHMACValidator("", "failover")
	assert.Error(t, err)

	_, err = NewHMACValidator("  \t", "failover")
	assert.Error(t, err)

	v, err := NewHMACValidator("secret", "")
	require.NoError(t, err)
	assert.NotNil(t, v)
}

func TestHMACValidator_ValidateToken(t *testing.T) {
	ctx := context.Background()
	validator, err := NewHMACValidator("s3cret", "failover")
	require.NoError(t, err)

	sign := func(t *testing.T, claims jwt.Claims, method jwt.SigningMethod, key interface{}) string {
		t.Helper()
		token, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return token
	}

	t.Run("issued token round trips", func(t *testing.T) {
		token, err := validator.IssueToken("operator-1", []string{"operator"}, time.Minute)
		require.NoError(t, err)

		claims, err := validator.ValidateToken(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, "operator-1", claims.Sub)
		assert.Equal(t, "failover", claims.Iss)
		assert.Equal(t, []string{"operator"}, claims.Roles)
		assert.Greater(t, claims.Exp, claims.Iat)
	})

	t.Run("expired token", func(t *testing.T) {
		token, err := validator.IssueToken("operator-1", nil, -time.Hour)
		require.NoError(t, err)

		_, err = validator.ValidateToken(ctx, token)
		assert.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, err := NewHMACValidator("other", "failover")
		require.NoError(t, err)
		token, err := other.IssueToken("operator-1", nil, time.Minute)
		require.NoError(t, err)

		_, err = validator.ValidateToken(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other, err := NewHMACValidator("s3cret", "someone-else")
		require.NoError(t, err)
		token, err := other.IssueToken("operator-1", nil, time.Minute)
		require.NoError(t, err)

		_, err = validator.ValidateToken(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing expiry", func(t *testing.T) {
		token := sign(t, jwt.RegisteredClaims{Subject: "operator-1", Issuer: "failover"},
			jwt.SigningMethodHS256, []byte("s3cret"))

		_, err := validator.ValidateToken(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing subject", func(t *testing.T) {
		token := sign(t, jwt.RegisteredClaims{
			Issuer:    "failover",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		}, jwt.SigningMethodHS256, []byte("s3cret"))

		_, err := validator.ValidateToken(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("other HMAC algorithm rejected", func(t *testing.T) {
		token := sign(t, jwt.RegisteredClaims{
			Subject:   "operator-1",
			Issuer:    "failover",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		}, jwt.SigningMethodHS512, []byte("s3cret"))

		_, err := validator.ValidateToken(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := validator.ValidateToken(ctx, "not.a.jwt")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
