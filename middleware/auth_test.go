package middleware

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKID = "test-key"

var (
	signingKey, _ = rsa.GenerateKey(rand.Reader, 2048)
	otherKey, _   = rsa.GenerateKey(rand.Reader, 2048)
)

func staticKeyfunc(key *rsa.PrivateKey) jwt.Keyfunc {
	return func(*jwt.Token) (interface{}, error) {
		return &key.PublicKey, nil
	}
}

func signToken(t *testing.T, key *rsa.PrivateKey, claims jwt.RegisteredClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKID
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func validClaims() jwt.RegisteredClaims {
	now := time.Now()
	return jwt.RegisteredClaims{
		Subject:   "user_123",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}
}

func TestExtractToken(t *testing.T) {
	tests := []struct {
		name       string
		authHeader string
		expected   string
	}{
		{name: "valid bearer token", authHeader: "Bearer test-token-123", expected: "test-token-123"},
		{name: "lowercase scheme", authHeader: "bearer test-token-123", expected: "test-token-123"},
		{name: "missing bearer prefix", authHeader: "test-token-123", expected: ""},
		{name: "empty header", authHeader: "", expected: ""},
		{name: "bearer with empty token", authHeader: "Bearer ", expected: ""},
		{name: "basic scheme", authHeader: "Basic dXNlcjpwYXNz", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractToken(tt.authHeader))
		})
	}
}

func TestTokenVerifier(t *testing.T) {
	verifier := NewTokenVerifier(staticKeyfunc(signingKey))

	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

	noSubject := validClaims()
	noSubject.Subject = ""

	noExpiry := validClaims()
	noExpiry.ExpiresAt = nil

	hmacToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims()).SignedString([]byte("secret"))
	require.NoError(t, err)

	tests := []struct {
		name           string
		token          string
		verifier       *TokenVerifier
		expectedReason string
	}{
		{name: "valid token", token: signToken(t, signingKey, validClaims())},
		{name: "expired token", token: signToken(t, signingKey, expired), expectedReason: ReasonExpired},
		{name: "missing expiry", token: signToken(t, signingKey, noExpiry), expectedReason: ReasonInvalidToken},
		{name: "wrong signing key", token: signToken(t, otherKey, validClaims()), expectedReason: ReasonInvalidToken},
		{name: "missing subject", token: signToken(t, signingKey, noSubject), expectedReason: ReasonMissingSubject},
		{name: "hmac algorithm rejected", token: hmacToken, expectedReason: ReasonInvalidToken},
		{name: "garbage", token: "not.a.jwt", expectedReason: ReasonInvalidToken},
		{
			name:  "key lookup failure",
			token: signToken(t, signingKey, validClaims()),
			verifier: NewTokenVerifier(func(*jwt.Token) (interface{}, error) {
				return nil, errors.New("jwks unavailable")
			}),
			expectedReason: ReasonKeyLookup,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := verifier
			if tt.verifier != nil {
				v = tt.verifier
			}

			subject, err := v.Verify(tt.token)
			if tt.expectedReason == "" {
				require.NoError(t, err)
				assert.Equal(t, "user_123", subject)
				return
			}

			var authErr *AuthenticationError
			require.True(t, errors.As(err, &authErr), "unexpected error %v", err)
			assert.Equal(t, tt.expectedReason, authErr.Reason)
			assert.Empty(t, subject)
		})
	}
}

func newProtectedRouter(verifier *TokenVerifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(AuthMiddleware(verifier))
	router.GET("/protected", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": GetUserID(c)})
	})
	return router
}

func TestAuthMiddleware(t *testing.T) {
	router := newProtectedRouter(NewTokenVerifier(staticKeyfunc(signingKey)))

	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

	tests := []struct {
		name            string
		authHeader      string
		expectedStatus  int
		expectedMessage string
	}{
		{
			name:            "missing authorization header",
			expectedStatus:  http.StatusUnauthorized,
			expectedMessage: "missing authorization header",
		},
		{
			name:            "invalid authorization format",
			authHeader:      "InvalidFormat token123",
			expectedStatus:  http.StatusUnauthorized,
			expectedMessage: "invalid authorization format",
		},
		{
			name:            "expired token",
			authHeader:      "Bearer " + signToken(t, signingKey, expired),
			expectedStatus:  http.StatusUnauthorized,
			expectedMessage: "token has expired",
		},
		{
			name:            "forged token",
			authHeader:      "Bearer " + signToken(t, otherKey, validClaims()),
			expectedStatus:  http.StatusUnauthorized,
			expectedMessage: "invalid or expired token",
		},
		{
			name:           "valid token",
			authHeader:     "Bearer " + signToken(t, signingKey, validClaims()),
			expectedStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			if tt.expectedStatus == http.StatusOK {
				assert.Equal(t, "user_123", body["user_id"])
			} else {
				assert.Equal(t, tt.expectedMessage, body["error"])
			}
		})
	}
}

func jwksJSON(key *rsa.PublicKey) []byte {
	set := map[string]any{
		"keys": []map[string]string{
			{
				"kty": "RSA",
				"kid": testKID,
				"alg": "RS256",
				"use": "sig",
				"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
			},
		},
	}
	data, _ := json.Marshal(set)
	return data
}

func TestJWKSKeyfunc(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(jwksJSON(&signingKey.PublicKey))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	keyfunc, err := NewJWKSKeyfunc(ctx, server.URL)
	require.NoError(t, err)

	verifier := NewTokenVerifier(keyfunc)

	subject, err := verifier.Verify(signToken(t, signingKey, validClaims()))
	require.NoError(t, err)
	assert.Equal(t, "user_123", subject)

	_, err = verifier.Verify(signToken(t, otherKey, validClaims()))
	assert.Error(t, err)
}
