package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/filecluster/filecluster/internal/models"
)

func newTestController(t *testing.T) (*Controller, *models.User) {
	t.Helper()
	c := NewController(bcrypt.MinCost, zap.NewNop())

	hash, err := c.HashPassword("secret")
	require.NoError(t, err)
	user := &models.User{
		ID:           "alice",
		Name:         "Alice",
		Email:        "alice@example.com",
		PasswordHash: hash,
		Role:         models.RoleUser,
	}
	return c, user
}

func TestAuthenticate_Success(t *testing.T) {
	c, user := newTestController(t)

	token, err := c.Authenticate(user, "secret", "10.0.0.1")
	require.NoError(t, err)

	assert.Len(t, token, 64, "32 random bytes, hex encoded")
	assert.Equal(t, token, user.Token)
	assert.Equal(t, "10.0.0.1", user.LastIP)
	assert.False(t, user.LastAccess.IsZero())
	assert.Equal(t, 1, c.ActiveSessions())

	session, err := c.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", session.UserID)
	assert.Equal(t, "10.0.0.1", session.IP)
}

func TestAuthenticate_TokensAreUnique(t *testing.T) {
	c, user := newTestController(t)

	first, err := c.Authenticate(user, "secret", "10.0.0.1")
	require.NoError(t, err)
	second, err := c.Authenticate(user, "secret", "10.0.0.1")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestAuthenticate_InvalidPassword(t *testing.T) {
	c, user := newTestController(t)

	_, err := c.Authenticate(user, "wrong", "10.0.0.1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Empty(t, user.Token)
	assert.Equal(t, 0, c.ActiveSessions())
}

func TestAuthenticate_BlocklistAfterFiveFailures(t *testing.T) {
	c, user := newTestController(t)

	for i := 0; i < 5; i++ {
		_, err := c.Authenticate(user, "wrong", "10.0.0.9")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}

	// Sixth attempt fails on the blocklist even with correct credentials.
	_, err := c.Authenticate(user, "secret", "10.0.0.9")
	assert.ErrorIs(t, err, ErrIPBlocked)

	// Other IPs are unaffected.
	_, err = c.Authenticate(user, "secret", "10.0.0.10")
	assert.NoError(t, err)
}

func TestAuthenticate_RateLimitWindow(t *testing.T) {
	c, user := newTestController(t)
	current := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return current }

	// Ten attempts fit in the window, successful ones included.
	for i := 0; i < 10; i++ {
		_, err := c.Authenticate(user, "secret", "10.0.0.2")
		require.NoError(t, err)
	}

	_, err := c.Authenticate(user, "secret", "10.0.0.2")
	assert.ErrorIs(t, err, ErrRateLimited)

	// Once the window elapses the counter resets.
	current = current.Add(61 * time.Second)
	_, err = c.Authenticate(user, "secret", "10.0.0.2")
	assert.NoError(t, err)
}

func TestValidate_UnknownToken(t *testing.T) {
	c, _ := newTestController(t)

	_, err := c.Validate("bogus")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidate_ExpiredSessionIsEvicted(t *testing.T) {
	c, user := newTestController(t)
	current := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return current }

	token, err := c.Authenticate(user, "secret", "10.0.0.3")
	require.NoError(t, err)

	current = current.Add(24*time.Hour + time.Minute)
	_, err = c.Validate(token)
	assert.ErrorIs(t, err, ErrSessionExpired)

	// Lazy eviction: the token is now unknown.
	_, err = c.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Equal(t, 0, c.ActiveSessions())
}

func TestLogout(t *testing.T) {
	c, user := newTestController(t)

	token, err := c.Authenticate(user, "secret", "10.0.0.4")
	require.NoError(t, err)

	c.Logout(token)
	_, err = c.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Logging out an unknown token is a silent no-op.
	c.Logout("bogus")
}

func TestAuthenticate_SuccessClearsFailureCounter(t *testing.T) {
	c, user := newTestController(t)

	for i := 0; i < 4; i++ {
		_, err := c.Authenticate(user, "wrong", "10.0.0.5")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}
	_, err := c.Authenticate(user, "secret", "10.0.0.5")
	require.NoError(t, err)

	// The slate is clean: four more failures do not blocklist.
	for i := 0; i < 4; i++ {
		_, err := c.Authenticate(user, "wrong", "10.0.0.5")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}
	_, err = c.Authenticate(user, "secret", "10.0.0.5")
	assert.NoError(t, err)
}
