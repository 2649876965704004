package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"visit-summary-service/metrics"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Context keys set by AuthMiddleware.
const (
	ContextUserID = "user_id"
	ContextToken  = "token"
)

// Reasons reported by AuthenticationError.
const (
	ReasonMissingHeader  = "missing_header"
	ReasonInvalidFormat  = "invalid_format"
	ReasonExpired        = "expired"
	ReasonKeyLookup      = "key_lookup"
	ReasonInvalidToken   = "invalid_token"
	ReasonMissingSubject = "missing_subject"
)

var errMissingSubject = errors.New("token has no subject")

// AuthenticationError explains why a bearer token was rejected.
type AuthenticationError struct {
	Reason string
	Err    error
}

func (e *AuthenticationError) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// Message is the client-facing text for the failure.
func (e *AuthenticationError) Message() string {
	switch e.Reason {
	case ReasonMissingHeader:
		return "missing authorization header"
	case ReasonInvalidFormat:
		return "invalid authorization format"
	case ReasonExpired:
		return "token has expired"
	default:
		return "invalid or expired token"
	}
}

// TokenVerifier validates signed bearer tokens against a key source,
// normally a JWKS endpoint.
type TokenVerifier struct {
	keyfunc jwt.Keyfunc
	parser  *jwt.Parser
}

// NewTokenVerifier creates a verifier that resolves signing keys with keyfunc.
func NewTokenVerifier(keyfunc jwt.Keyfunc) *TokenVerifier {
	return &TokenVerifier{
		keyfunc: keyfunc,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{"RS256", "RS384", "RS512", "ES256", "ES384", "EdDSA"}),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(5*time.Second),
		),
	}
}

// Verify checks the token signature and time claims and returns its subject.
func (v *TokenVerifier) Verify(tokenString string) (string, error) {
	var claims jwt.RegisteredClaims
	if _, err := v.parser.ParseWithClaims(tokenString, &claims, v.keyfunc); err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return "", &AuthenticationError{Reason: ReasonExpired, Err: err}
		case errors.Is(err, jwt.ErrTokenUnverifiable):
			return "", &AuthenticationError{Reason: ReasonKeyLookup, Err: err}
		default:
			return "", &AuthenticationError{Reason: ReasonInvalidToken, Err: err}
		}
	}
	if claims.Subject == "" {
		return "", &AuthenticationError{Reason: ReasonMissingSubject, Err: errMissingSubject}
	}
	return claims.Subject, nil
}

// AuthMiddleware validates bearer tokens for protected routes
func AuthMiddleware(verifier *TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			reject(c, &AuthenticationError{Reason: ReasonMissingHeader})
			return
		}

		tokenString := extractToken(authHeader)
		if tokenString == "" {
			reject(c, &AuthenticationError{Reason: ReasonInvalidFormat})
			return
		}

		userID, err := verifier.Verify(tokenString)
		if err != nil {
			var authErr *AuthenticationError
			if !errors.As(err, &authErr) {
				authErr = &AuthenticationError{Reason: ReasonInvalidToken, Err: err}
			}
			reject(c, authErr)
			return
		}

		c.Set(ContextUserID, userID)
		c.Set(ContextToken, tokenString)
		c.Next()
	}
}

func reject(c *gin.Context, err *AuthenticationError) {
	metrics.AuthFailuresTotal.WithLabelValues(err.Reason).Inc()
	log.WithFields(log.Fields{
		"client_ip":  c.ClientIP(),
		"reason":     err.Reason,
		"request_id": c.GetString(ContextRequestID),
	}).Warnf("auth.rejected: %v", err)

	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Message()})
}

// extractToken extracts the token from the Authorization header
func extractToken(authHeader string) string {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// GetUserID returns the verified subject stored by AuthMiddleware.
func GetUserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}
