package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/znerol74/call/internal/auth"
)

func TestIssueAndVerify(t *testing.T) {
	v := auth.NewVerifier("s3cret")
	token, err := v.Issue("user-42", time.Hour)
	require.NoError(t, err)

	subject, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", subject)
}

func TestVerifyRejects(t *testing.T) {
	v := auth.NewVerifier("s3cret")

	_, err := v.Verify("")
	assert.ErrorIs(t, err, auth.ErrMissingToken)

	_, err = v.Verify("not-a-jwt")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	other, err := auth.NewVerifier("other").Issue("user-42", time.Hour)
	require.NoError(t, err)
	_, err = v.Verify(other)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	past := time.Now().Add(-2 * time.Hour)
	expired, err := auth.NewVerifier("s3cret").WithClock(func() time.Time { return past }).Issue("user-42", time.Hour)
	require.NoError(t, err)
	_, err = v.Verify(expired)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestVerifyRejectsWrongType(t *testing.T) {
	claims := auth.Claims{
		Type: "refresh",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-42",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	_, err = auth.NewVerifier("s3cret").Verify(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	claims := auth.Claims{
		Type: auth.TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-42",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	_, err = auth.NewVerifier("s3cret").Verify(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}
