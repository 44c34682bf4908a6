package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snipekit/snipekit/internal/domain/auction"
)

func TestTokenRoundTrip(t *testing.T) {
	clock := &auction.MockClock{CurrentTime: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	svc := NewService("test-secret", 24*time.Hour, clock)

	token, err := svc.GenerateToken("operator")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "operator", claims.Subject)
	assert.Equal(t, clock.Now(), claims.IssuedAt)
	assert.Equal(t, clock.Now().Add(24*time.Hour), claims.ExpireAt)
}

func TestExpiredTokenRejected(t *testing.T) {
	clock := &auction.MockClock{CurrentTime: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	svc := NewService("test-secret", time.Hour, clock)

	token, err := svc.GenerateToken("operator")
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)

	_, err = svc.ValidateToken(token)
	assert.Error(t, err)
}

func TestWrongSecretRejected(t *testing.T) {
	clock := &auction.MockClock{CurrentTime: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	issuer := NewService("secret-a", time.Hour, clock)
	verifier := NewService("secret-b", time.Hour, clock)

	token, err := issuer.GenerateToken("operator")
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.Error(t, err)
}

func TestGarbageTokenRejected(t *testing.T) {
	clock := &auction.MockClock{CurrentTime: time.Now().UTC()}
	svc := NewService("test-secret", time.Hour, clock)

	_, err := svc.ValidateToken("not-a-jwt")
	assert.Error(t, err)
}

func TestExpiryCappedAtThirtyDays(t *testing.T) {
	clock := &auction.MockClock{CurrentTime: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	svc := NewService("test-secret", 365*24*time.Hour, clock)

	token, err := svc.GenerateToken("operator")
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(30*24*time.Hour), claims.ExpireAt)
}
