package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	// Package middleware provides HTTP middleware components for authentication,
	// authorization, telemetry, and other cross-cutting concerns.
	"github.com/golang-jwt/jwt/v5"
)

// Roles carried in the role claim.
const (
	RoleViewer = "viewer"
	RoleAdmin  = "admin"
)

// Context keys set by the auth middleware.
const (
	ContextUserID = "user_id"
	ContextRole   = "user_role"
)

// JWTClaims represents the JWT token claims.
type JWTClaims struct {
	// UserID identifies the caller, typically a planner or a batch job.
	UserID string `json:"user_id"`
	// Role is viewer or admin. Missing roles are treated as viewer.
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// AuthMiddleware provides JWT authentication middleware.
type AuthMiddleware struct {
	secretKey []byte
}

// NewAuthMiddleware creates a new authentication middleware.
//
// Parameters:
//   secretKey: Secret key for signing tokens.
//
// Returns:
//   *AuthMiddleware: Initialized middleware.
func NewAuthMiddleware(secretKey string) *AuthMiddleware {
	return &AuthMiddleware{
		secretKey: []byte(secretKey),
	}
}

// bearerToken returns the token of an "Authorization: Bearer <token>" header. The scheme is
// matched case-insensitively as per RFC 6750.
func bearerToken(header string) (string, bool) {
	parts := strings.Split(header, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// RequireAuth middleware validates JWT tokens.
// It requires a valid Bearer token in the Authorization header.
//
// Returns:
//   gin.HandlerFunc: Gin handler.
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		tokenString, ok := bearerToken(authHeader)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			return
		}

		claims, err := am.ValidateToken(tokenString)
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token expired"})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextRole, claims.role())
		c.Next()
	}
}

// RequireRole rejects callers whose token role differs from role. It must run after RequireAuth.
func (am *AuthMiddleware) RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ContextRole) != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": fmt.Sprintf("%s role required", role)})
			return
		}
		c.Next()
	}
}

// GenerateToken creates a new JWT token for a user.
//
// Parameters:
//   userID: User identifier.
//   role: viewer or admin.
//   duration: Token validity duration.
//
// Returns:
//   string: Signed token string.
//   error: Error if generation fails.
func (am *AuthMiddleware) GenerateToken(userID, role string, duration time.Duration) (string, error) {
	now := time.Now()
	claims := &JWTClaims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(am.secretKey)
}

// ValidateToken validates a JWT token and returns claims.
//
// Parameters:
//   tokenString: Token string to validate.
//
// Returns:
//   *JWTClaims: Token claims.
//   error: Error if validation fails.
func (am *AuthMiddleware) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return am.secretKey, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}

func (c *JWTClaims) role() string {
	if c.Role == "" {
		return RoleViewer
	}
	return c.Role
}
