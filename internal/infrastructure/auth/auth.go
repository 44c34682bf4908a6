package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/snipekit/snipekit/internal/domain/auction"
)

// TokenClaims represents the validated bearer token claims
type TokenClaims struct {
	Subject  string
	IssuedAt time.Time
	ExpireAt time.Time
}

// Service issues and validates the API's bearer tokens
type Service interface {
	// GenerateToken creates a new signed bearer token for a subject
	GenerateToken(subject string) (string, error)

	// ValidateToken validates and parses a bearer token
	ValidateToken(token string) (*TokenClaims, error)
}

type service struct {
	secret      []byte
	tokenExpiry time.Duration
	clock       auction.Clock
}

// maxTokenExpiry caps issued token validity at 30 days.
const maxTokenExpiry = 30 * 24 * time.Hour

// NewService creates the JWT auth service
func NewService(secret string, tokenExpiry time.Duration, clock auction.Clock) Service {
	if tokenExpiry <= 0 || tokenExpiry > maxTokenExpiry {
		tokenExpiry = maxTokenExpiry
	}
	return &service{
		secret:      []byte(secret),
		tokenExpiry: tokenExpiry,
		clock:       clock,
	}
}

func (s *service) GenerateToken(subject string) (string, error) {
	now := s.clock.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenExpiry)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

func (s *service) ValidateToken(tokenString string) (*TokenClaims, error) {
	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.clock.Now))
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	tc := &TokenClaims{Subject: claims.Subject}
	if claims.IssuedAt != nil {
		tc.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		tc.ExpireAt = claims.ExpiresAt.Time
	}
	return tc, nil
}
