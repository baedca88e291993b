package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims are the claims SquadKeeper reads from operator tokens.
type JWTClaims struct {
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// Actor returns the name recorded in the ledger for this caller.
func (c *JWTClaims) Actor() string {
	if c.Username != "" {
		return c.Username
	}
	return c.Subject
}

// JWTConfig holds token verification settings. Tokens are issued by an
// external identity service; SquadKeeper only verifies them.
type JWTConfig struct {
	// VerificationKeys are tried in order, which allows key rotation.
	VerificationKeys [][]byte
	Issuer           string
	// Required rejects unauthenticated write requests.
	Required bool
}

var errNoVerificationKey = errors.New("no jwt verification key configured")

// GenerateToken creates a signed HS256 token. Used by tooling and tests.
func GenerateToken(key []byte, issuer, subject, username string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := JWTClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return s, nil
}

// ValidateToken verifies tokenString against each configured key.
func (cfg JWTConfig) ValidateToken(tokenString string) (*JWTClaims, error) {
	if len(cfg.VerificationKeys) == 0 {
		return nil, errNoVerificationKey
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	var lastErr error
	for _, key := range cfg.VerificationKeys {
		claims := &JWTClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
			return key, nil
		}, opts...)
		if err != nil {
			lastErr = err
			// A bad signature may just mean a different key signed it.
			if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
				continue
			}
			return nil, err
		}
		if !token.Valid {
			return nil, errors.New("invalid token")
		}
		return claims, nil
	}
	return nil, lastErr
}

// ActorAuth resolves the caller from a Bearer token. Without a token the
// request proceeds anonymously unless cfg.Required is set and the method
// writes. A token that is present but invalid is always rejected.
func ActorAuth(cfg JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			if cfg.Required && isWrite(c.Request.Method) {
				abortUnauthorized(c, "missing authorization header")
				return
			}
			c.Next()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abortUnauthorized(c, "invalid authorization header format")
			return
		}

		claims, err := cfg.ValidateToken(parts[1])
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, jwt.ErrTokenExpired) {
				msg = "token expired"
			}
			abortUnauthorized(c, msg)
			return
		}

		actor := claims.Actor()
		c.Set(string(ctxKeyActor), actor)
		c.Request = c.Request.WithContext(SetActor(c.Request.Context(), actor))
		c.Next()
	}
}

func isWrite(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"code":    "UNAUTHORIZED",
		"message": msg,
	})
}
