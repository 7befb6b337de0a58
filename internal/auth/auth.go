// Package auth guards the local control API's mutating routes with a
// single pre-shared control secret instead of the multi-user accounts a
// general-purpose HTTP service would have — this domain has no concept of
// a "user", only one operator secret configured alongside the hub token.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const tokenTTL = time.Hour

var (
	ErrInvalidSecret = errors.New("invalid control secret")
	ErrInvalidToken  = errors.New("invalid or expired token")
)

// claims identifies only that the bearer proved the control secret once;
// there is no subject beyond that.
type claims struct {
	jwt.RegisteredClaims
}

// Service issues and verifies bearer tokens for the control API, given a
// single control secret hashed once at construction.
type Service struct {
	secretHash []byte
	signingKey []byte
}

// New hashes secret once at startup. signingKey is the HMAC key used to
// sign issued tokens; `hag start` passes the control secret's own bytes, as
// the configuration has no separate signing-key field.
func New(secret string, signingKey []byte) (*Service, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("control secret must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash control secret: %w", err)
	}
	return &Service{secretHash: hash, signingKey: signingKey}, nil
}

// IssueToken verifies the presented secret against the stored hash and, on
// success, returns a short-lived signed bearer token.
func (s *Service) IssueToken(presented string) (string, error) {
	if err := bcrypt.CompareHashAndPassword(s.secretHash, []byte(presented)); err != nil {
		return "", ErrInvalidSecret
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	})
	return token.SignedString(s.signingKey)
}

// VerifyToken reports whether accessToken is a currently-valid bearer
// token issued by IssueToken.
func (s *Service) VerifyToken(accessToken string) error {
	token, err := jwt.ParseWithClaims(accessToken, &claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.signingKey, nil
	})
	if err != nil || !token.Valid {
		return ErrInvalidToken
	}
	return nil
}
