package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMintAndVerifyRoundTrip(t *testing.T) {
	s := NewSigner([]byte("test-secret"), time.Hour)

	token, err := s.Mint("user-42")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	userID, err := s.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", userID)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	s1 := NewSigner([]byte("secret-a"), time.Hour)
	s2 := NewSigner([]byte("secret-b"), time.Hour)

	token, err := s1.Mint("user-1")
	require.NoError(t, err)

	_, err = s2.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	s := NewSigner([]byte("test-secret"), time.Hour)

	claims := jwt.MapClaims{claimUserID: "user-1", "exp": time.Now().Add(-time.Minute).Unix()}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = s.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsMalformedToken(t *testing.T) {
	s := NewSigner([]byte("test-secret"), time.Hour)

	_, err := s.Verify("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsUnsignedAlgNone(t *testing.T) {
	s := NewSigner([]byte("test-secret"), time.Hour)

	claims := jwt.MapClaims{claimUserID: "user-1", "exp": time.Now().Add(time.Hour).Unix()}
	token := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	unsigned, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = s.Verify(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
