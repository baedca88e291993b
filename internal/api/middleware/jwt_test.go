package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("test-signing-key-1234567890123456")

func TestJWTConfigValidateToken_Success(t *testing.T) {
	token, err := GenerateToken(testKey, "keeper", "u-1", "alice", time.Hour)
	require.NoError(t, err)

	claims, err := JWTConfig{VerificationKeys: [][]byte{testKey}, Issuer: "keeper"}.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Actor())
	assert.Equal(t, "u-1", claims.Subject)
}

func TestJWTConfigValidateToken_RejectsInvalidIssuer(t *testing.T) {
	token, err := GenerateToken(testKey, "keeper", "u-1", "", time.Hour)
	require.NoError(t, err)

	_, err = JWTConfig{VerificationKeys: [][]byte{testKey}, Issuer: "other-issuer"}.ValidateToken(token)
	require.Error(t, err)
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)
}

func TestJWTConfigValidateToken_SupportsVerificationKeyRotation(t *testing.T) {
	oldKey := []byte("old-key-123456789012345678901234567890")
	newKey := []byte("new-key-123456789012345678901234567890")

	token, err := GenerateToken(oldKey, "keeper", "u-1", "", time.Hour)
	require.NoError(t, err)

	claims, err := JWTConfig{VerificationKeys: [][]byte{newKey, oldKey}}.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.Actor())
}

func TestJWTConfigValidateToken_RejectsNoneSigningMethod(t *testing.T) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodNone, JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u-1",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	})
	tokenString, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = JWTConfig{VerificationKeys: [][]byte{testKey}}.ValidateToken(tokenString)
	require.Error(t, err)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
}

func TestJWTConfigValidateToken_Expired(t *testing.T) {
	token, err := GenerateToken(testKey, "", "u-1", "", -time.Minute)
	require.NoError(t, err)

	_, err = JWTConfig{VerificationKeys: [][]byte{testKey}}.ValidateToken(token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestJWTConfigValidateToken_RequiresKey(t *testing.T) {
	token, err := GenerateToken(testKey, "", "u-1", "", time.Hour)
	require.NoError(t, err)

	_, err = JWTConfig{}.ValidateToken(token)
	assert.ErrorIs(t, err, errNoVerificationKey)
}

func TestActorAuth(t *testing.T) {
	newRouter := func(cfg JWTConfig) (*gin.Engine, *string) {
		var actor string
		r := gin.New()
		r.Use(ActorAuth(cfg))
		handler := func(c *gin.Context) {
			actor = GetActor(c.Request.Context())
			c.Status(http.StatusNoContent)
		}
		r.GET("/read", handler)
		r.POST("/write", handler)
		return r, &actor
	}
	do := func(r *gin.Engine, method, path, auth string) int {
		req := httptest.NewRequest(method, path, nil)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	token, err := GenerateToken(testKey, "", "u-1", "alice", time.Hour)
	require.NoError(t, err)

	optional, actor := newRouter(JWTConfig{VerificationKeys: [][]byte{testKey}})
	assert.Equal(t, http.StatusNoContent, do(optional, http.MethodPost, "/write", ""))
	assert.Empty(t, *actor)
	assert.Equal(t, http.StatusNoContent, do(optional, http.MethodPost, "/write", "Bearer "+token))
	assert.Equal(t, "alice", *actor)
	assert.Equal(t, http.StatusUnauthorized, do(optional, http.MethodGet, "/read", "Bearer garbage"))
	assert.Equal(t, http.StatusUnauthorized, do(optional, http.MethodGet, "/read", "Token "+token))

	required, _ := newRouter(JWTConfig{VerificationKeys: [][]byte{testKey}, Required: true})
	assert.Equal(t, http.StatusNoContent, do(required, http.MethodGet, "/read", ""))
	assert.Equal(t, http.StatusUnauthorized, do(required, http.MethodPost, "/write", ""))
	assert.Equal(t, http.StatusNoContent, do(required, http.MethodPost, "/write", "Bearer "+token))
}
