package auth

import (
	"context"
	"testing"
	"time"

	userDb "github.com/bloops-games/carousing/internal/database/user/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type secretMap map[string]string

func (m secretMap) SecretHash(userID string) (string, error) {
	hash, ok := m[userID]
	if !ok {
		return "", userDb.ErrNotFound
	}
	return hash, nil
}

func TestLogin(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	secret := NewSecret()
	hash, err := HashSecret(secret)
	require.NoError(t, err)
	assert.NotEqual(t, secret, hash)

	a, err := New(&Config{SigningKey: "key"}, secretMap{"alice": hash})
	require.NoError(t, err)

	token, err := a.Login(ctx, "alice", secret)
	require.NoError(t, err)

	id, err := a.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", id)

	_, err = a.Login(ctx, "alice", "guess")
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = a.Login(ctx, "bob", secret)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	t.Parallel()

	a, err := New(&Config{SigningKey: "key", TokenTTL: time.Minute}, secretMap{})
	require.NoError(t, err)

	other, err := New(&Config{SigningKey: "other-key"}, secretMap{})
	require.NoError(t, err)
	forged, err := other.Issue("gm")
	require.NoError(t, err)

	_, err = a.Verify(forged)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = a.Verify("")
	assert.ErrorIs(t, err, ErrUnauthorized)

	// unsigned tokens are refused
	_, err = a.Verify("eyJhbGciOiJub25lIiwidHlwIjoiSldUIn0.eyJzdWIiOiJnbSIsImlzcyI6ImNhcm91c2luZyJ9.")
	assert.ErrorIs(t, err, ErrUnauthorized)

	token, err := a.Issue("alice")
	require.NoError(t, err)
	a.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = a.Verify(token)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestNewRequiresSigningKey(t *testing.T) {
	t.Parallel()

	_, err := New(&Config{}, secretMap{})
	assert.ErrorIs(t, err, ErrNoSigningKey)
}
