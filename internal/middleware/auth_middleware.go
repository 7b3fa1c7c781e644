package middleware

import (
	"net/http"
	"strings"

	"github.com/consultdesk/booking-backend/pkg/jwt"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ConsultantContextKey is the key used to store consultant information in Gin context
const ConsultantContextKey = "consultant"

// ConsultantContext represents the authenticated consultant
type ConsultantContext struct {
	ConsultantID string   `json:"consultant_id"`
	Email        string   `json:"email"`
	Roles        []string `json:"roles"`
}

// AuthMiddleware creates a middleware that validates JWT tokens
func AuthMiddleware(jwtService *jwt.Service, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.WithFields(logrus.Fields{
			"path": c.Request.URL.Path,
			"ip":   c.ClientIP(),
		})

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			log.Warn("Auth failed: missing authorization header")
			abortUnauthorized(c, "unauthorized", "Authorization header is required", "MISSING_AUTH_HEADER")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			log.Warn("Auth failed: invalid authorization format")
			abortUnauthorized(c, "unauthorized", "Invalid authorization header format. Expected: Bearer <token>", "INVALID_AUTH_FORMAT")
			return
		}

		tokenString := strings.TrimSpace(parts[1])
		if tokenString == "" {
			log.Warn("Auth failed: empty token")
			abortUnauthorized(c, "unauthorized", "Token cannot be empty", "INVALID_AUTH_FORMAT")
			return
		}

		claims, err := jwtService.ValidateAccessToken(tokenString)
		if err != nil {
			if jwt.IsExpiredError(err) {
				log.WithError(err).Info("Auth failed: token expired")
				abortUnauthorized(c, "token_expired", "Access token has expired. Please refresh your token.", "TOKEN_EXPIRED")
			} else {
				log.WithError(err).Warn("Auth failed: invalid token")
				abortUnauthorized(c, "invalid_token", "Invalid access token", "INVALID_TOKEN")
			}
			return
		}

		c.Set(ConsultantContextKey, ConsultantContext{
			ConsultantID: claims.ConsultantID,
			Email:        claims.Email,
			Roles:        claims.Roles,
		})
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, errKey, message, code string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":   errKey,
		"message": message,
		"code":    code,
	})
}

// RequireRole creates a middleware that checks if the consultant has any of roles
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		consultantCtx, exists := GetConsultantContext(c)
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Consultant context not found. Auth middleware may not be applied.",
				"code":    "MISSING_USER_CONTEXT",
			})
			return
		}

		for _, required := range roles {
			for _, have := range consultantCtx.Roles {
				if have == required {
					c.Next()
					return
				}
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error":   "forbidden",
			"message": "You don't have permission to access this resource",
			"code":    "INSUFFICIENT_PERMISSIONS",
		})
	}
}

// GetConsultantContext retrieves the consultant context from Gin context
func GetConsultantContext(c *gin.Context) (ConsultantContext, bool) {
	value, exists := c.Get(ConsultantContextKey)
	if !exists {
		return ConsultantContext{}, false
	}

	consultantCtx, ok := value.(ConsultantContext)
	if !ok {
		return ConsultantContext{}, false
	}
	return consultantCtx, true
}

// MustGetConsultantContext retrieves the consultant context or panics (use only after AuthMiddleware)
func MustGetConsultantContext(c *gin.Context) ConsultantContext {
	consultantCtx, exists := GetConsultantContext(c)
	if !exists {
		panic("consultant context not found - ensure AuthMiddleware is applied")
	}
	return consultantCtx
}
