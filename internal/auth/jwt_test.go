package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateToken(t *testing.T) {
	mgr := NewJWTManager("test-secret", time.Hour)

	t.Run("round trip", func(t *testing.T) {
		token, err := mgr.GenerateToken("player-123", "Alice")
		require.NoError(t, err)

		claims, err := mgr.ValidateToken(token)
		require.NoError(t, err)
		assert.Equal(t, "player-123", claims.Subject)
		assert.Equal(t, "Alice", claims.Name)
	})

	t.Run("wrong secret rejected", func(t *testing.T) {
		token, err := mgr.GenerateToken("player-123", "Alice")
		require.NoError(t, err)

		other := NewJWTManager("other-secret", time.Hour)
		_, err = other.ValidateToken(token)
		require.Error(t, err)
	})

	t.Run("expired token rejected", func(t *testing.T) {
		shortLived := NewJWTManager("test-secret", -time.Minute)
		token, err := shortLived.GenerateToken("player-123", "Alice")
		require.NoError(t, err)

		_, err = shortLived.ValidateToken(token)
		require.Error(t, err)
	})

	t.Run("garbage rejected", func(t *testing.T) {
		_, err := mgr.ValidateToken("not.a.token")
		require.Error(t, err)
	})

	t.Run("empty subject rejected", func(t *testing.T) {
		token, err := mgr.GenerateToken("", "Anonymous")
		require.NoError(t, err)
		_, err = mgr.ValidateToken(token)
		require.Error(t, err)
	})
}

func TestAuthenticatePlayer(t *testing.T) {
	mgr := NewJWTManager("test-secret", time.Hour)

	echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(PlayerFromContext(r.Context())))
	})
	protected := AuthenticatePlayer(mgr)(echo)

	t.Run("valid token passes and sets context", func(t *testing.T) {
		token, err := mgr.GenerateToken("player-123", "Alice")
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "player-123", rec.Body.String())
	})

	t.Run("missing header rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("malformed header rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Token abc")
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestIdentifyPlayer(t *testing.T) {
	mgr := NewJWTManager("test-secret", time.Hour)

	echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(PlayerFromContext(r.Context())))
	})
	optional := IdentifyPlayer(mgr)(echo)

	t.Run("anonymous request passes with empty player", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		optional.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Body.String())
	})

	t.Run("valid token resolved", func(t *testing.T) {
		token, err := mgr.GenerateToken("player-123", "Alice")
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		optional.ServeHTTP(rec, req)

		assert.Equal(t, "player-123", rec.Body.String())
	})
}
