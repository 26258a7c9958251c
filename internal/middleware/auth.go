package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"coopledger/internal/config"
)

const (
	accessTokenExpiry = 15 * time.Minute
	tokenIssuer       = "coopledger-api"
)

// getJWTKey returns the JWT key from configuration
func getJWTKey() []byte {
	return []byte(config.Get().JWTSecret)
}

// JWTClaims represents the claims in the JWT. Every token is scoped to one
// cooperative.
type JWTClaims struct {
	UserID    string `json:"user_id"`
	CoopID    string `json:"coop_id"`
	Email     string `json:"email"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// GenerateAccessToken signs a short-lived access token. Production tokens come
// from the identity service; this is used by tests and local tooling.
func GenerateAccessToken(userID, coopID, email string) (string, error) {
	now := time.Now()
	claims := &JWTClaims{
		UserID:    userID,
		CoopID:    coopID,
		Email:     email,
		TokenType: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(accessTokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   userID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(getJWTKey())
}

func unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized,
		gin.H{"error": gin.H{"code": "UNAUTHORIZED", "message": message}})
}

// AuthMiddleware verifies the JWT token and sets the user and cooperative in
// the context
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			unauthorized(c, "Authorization header is required")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			unauthorized(c, "Invalid authorization header format")
			return
		}

		claims := &JWTClaims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return getJWTKey(), nil
		})

		if err != nil || !token.Valid {
			unauthorized(c, "Invalid or expired token")
			return
		}

		// Refresh tokens from the identity service are not accepted here
		if claims.TokenType == "refresh" {
			unauthorized(c, "Invalid or expired token")
			return
		}
		if claims.UserID == "" || claims.CoopID == "" {
			unauthorized(c, "Token is not scoped to a cooperative")
			return
		}

		c.Set("userID", claims.UserID)
		c.Set("coopID", claims.CoopID)
		c.Set("email", claims.Email)
		c.Next()
	}
}
