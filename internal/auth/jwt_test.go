package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "session-secret-32-chars-long!!!!"

func TestJWTManager_GenerateAndValidate(t *testing.T) {
	mgr := NewJWTManager(testSecret, 15*time.Minute, 7*24*time.Hour)

	t.Run("generate and validate access token", func(t *testing.T) {
		pair, tokenID, err := mgr.GenerateTokenPair("session-123")
		require.NoError(t, err)
		assert.NotEmpty(t, pair.AccessToken)
		assert.NotEmpty(t, pair.RefreshToken)
		assert.NotEmpty(t, tokenID)
		assert.Equal(t, "session-123", pair.SessionID)
		assert.Equal(t, int64(900), pair.ExpiresIn)

		claims, err := mgr.ValidateAccessToken(pair.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, "session-123", claims.SessionID)
	})

	t.Run("generate and validate refresh token", func(t *testing.T) {
		pair, tokenID, err := mgr.GenerateTokenPair("session-456")
		require.NoError(t, err)

		claims, err := mgr.ValidateRefreshToken(pair.RefreshToken)
		require.NoError(t, err)
		assert.Equal(t, "session-456", claims.SessionID)
		assert.Equal(t, tokenID, claims.TokenID)
	})

	t.Run("invalid token fails validation", func(t *testing.T) {
		_, err := mgr.ValidateAccessToken("invalid-token")
		assert.Error(t, err)
	})

	t.Run("tokens are not interchangeable", func(t *testing.T) {
		pair, _, err := mgr.GenerateTokenPair("session-789")
		require.NoError(t, err)

		_, err = mgr.ValidateRefreshToken(pair.AccessToken)
		assert.Error(t, err)
		_, err = mgr.ValidateAccessToken(pair.RefreshToken)
		assert.Error(t, err)
	})

	t.Run("other secret fails", func(t *testing.T) {
		other := NewJWTManager("another-secret-32-chars-long!!!!", time.Minute, time.Hour)
		pair, _, err := other.GenerateTokenPair("session-x")
		require.NoError(t, err)

		_, err = mgr.ValidateAccessToken(pair.AccessToken)
		assert.Error(t, err)
	})

	t.Run("expired token fails", func(t *testing.T) {
		shortMgr := NewJWTManager(testSecret, -1*time.Second, -1*time.Second)
		pair, _, err := shortMgr.GenerateTokenPair("session-exp")
		require.NoError(t, err)

		_, err = shortMgr.ValidateAccessToken(pair.AccessToken)
		assert.Error(t, err)
	})
}
