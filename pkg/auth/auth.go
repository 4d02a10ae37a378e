// Package auth mints and verifies the bearer tokens that identify a
// WebSocket session's user (spec.md §6.1: "Connect with a bearer token as
// a query parameter token=<jwt-like-string>"). There is no user store,
// no OAuth flow, and no refresh token — this is demo-grade, stateless
// auth (SPEC_FULL.md §1 Non-goals): whoever holds a validly signed token
// for a userId is that user.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken covers every way a token can fail verification: bad
// signature, wrong algorithm, expired, or malformed claims.
var ErrInvalidToken = errors.New("auth: invalid token")

const claimUserID = "userId"

// Signer mints and verifies HS256 bearer tokens for a single shared
// secret, the teacher pack's `zfogg-sidechain` pattern
// (`jwt.NewWithClaims`/`jwt.Parse` with an explicit signing-method check)
// trimmed to this spec's single `userId` claim.
type Signer struct {
	secret []byte
	ttl    time.Duration
}

// NewSigner builds a Signer. ttl is the token lifetime; a non-positive
// ttl falls back to 24 hours. Tokens carry no refresh mechanism, so a
// session must re-authenticate after it expires.
func NewSigner(secret []byte, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Signer{secret: secret, ttl: ttl}
}

// Mint signs a new bearer token for userID.
func (s *Signer) Mint(userID string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		claimUserID: userID,
		"iat":       now.Unix(),
		"exp":       now.Add(s.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Verify checks a token's signature and expiry and returns the userId it
// was minted for.
func (s *Signer) Verify(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	userID, ok := claims[claimUserID].(string)
	if !ok || userID == "" {
		return "", ErrInvalidToken
	}

	return userID, nil
}
