package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/consultdesk/booking-backend/internal/models"
	"github.com/consultdesk/booking-backend/pkg/jwt"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestJWTService() *jwt.Service {
	return jwt.NewService(
		"test-access-secret-key-123456789",
		"test-refresh-secret-key-123456789",
		time.Hour,
		24*time.Hour,
	)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func serve(router *gin.Engine, path, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func unreachable(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "should not reach here"})
}

func TestAuthMiddleware_Success(t *testing.T) {
	jwtService := setupTestJWTService()
	router := setupTestRouter()

	consultantID := uuid.New().String()
	token, err := jwtService.GenerateAccessToken(consultantID, "asha@example.com", []string{jwt.RoleConsultant})
	require.NoError(t, err)

	router.GET("/protected", AuthMiddleware(jwtService, testLogger()), func(c *gin.Context) {
		consultantCtx, exists := GetConsultantContext(c)
		require.True(t, exists)
		c.JSON(http.StatusOK, gin.H{
			"message":       "success",
			"consultant_id": consultantCtx.ConsultantID,
			"email":         consultantCtx.Email,
		})
	})

	w := serve(router, "/protected", "Bearer "+token)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), consultantID)
	assert.Contains(t, w.Body.String(), "asha@example.com")
}

func TestAuthMiddleware_MissingAuthHeader(t *testing.T) {
	router := setupTestRouter()
	router.GET("/protected", AuthMiddleware(setupTestJWTService(), testLogger()), unreachable)

	w := serve(router, "/protected", "")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Authorization header is required")
	assert.Contains(t, w.Body.String(), "MISSING_AUTH_HEADER")
}

func TestAuthMiddleware_InvalidAuthFormat(t *testing.T) {
	router := setupTestRouter()
	router.GET("/protected", AuthMiddleware(setupTestJWTService(), testLogger()), unreachable)

	tests := []struct {
		name   string
		header string
	}{
		{"Missing Bearer", "some-token"},
		{"Wrong prefix", "Basic some-token"},
		{"Empty Bearer", "Bearer "},
		{"No token", "Bearer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(router, "/protected", tt.header)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), "INVALID_AUTH_FORMAT")
		})
	}
}

func TestAuthMiddleware_InvalidToken(t *testing.T) {
	jwtService := setupTestJWTService()
	router := setupTestRouter()
	router.GET("/protected", AuthMiddleware(jwtService, testLogger()), unreachable)

	wrongService := jwt.NewService("wrong-secret-key", "wrong-refresh-secret", time.Hour, 24*time.Hour)
	foreign, err := wrongService.GenerateAccessToken(uuid.New().String(), "asha@example.com", nil)
	require.NoError(t, err)

	refresh, err := jwtService.GenerateRefreshToken(uuid.New().String(), "asha@example.com")
	require.NoError(t, err)

	expiredForeign, err := jwt.NewService("wrong-secret-key", "wrong-refresh-secret", -time.Minute, time.Hour).
		GenerateAccessToken(uuid.New().String(), "asha@example.com", nil)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"Random string", "randomstringnotavalidtoken"},
		{"Wrong secret", foreign},
		{"Refresh token", refresh},
		{"Malformed segments", "invalid.token.here"},
		{"Expired with wrong secret", expiredForeign},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(router, "/protected", "Bearer "+tt.token)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), "INVALID_TOKEN")
		})
	}
}

func TestAuthMiddleware_ExpiredToken(t *testing.T) {
	jwtService := jwt.NewService(
		"test-access-secret-key-123456789",
		"test-refresh-secret-key-123456789",
		-time.Minute,
		24*time.Hour,
	)
	token, err := jwtService.GenerateAccessToken(uuid.New().String(), "asha@example.com", nil)
	require.NoError(t, err)

	router := setupTestRouter()
	router.GET("/protected", AuthMiddleware(jwtService, testLogger()), unreachable)

	w := serve(router, "/protected", "Bearer "+token)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "TOKEN_EXPIRED")
}

func TestGetConsultantContext(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("Context exists", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		expected := ConsultantContext{
			ConsultantID: uuid.New().String(),
			Email:        "asha@example.com",
			Roles:        []string{jwt.RoleConsultant},
		}
		c.Set(ConsultantContextKey, expected)

		consultantCtx, exists := GetConsultantContext(c)
		assert.True(t, exists)
		assert.Equal(t, expected, consultantCtx)
	})

	t.Run("Context not found", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		consultantCtx, exists := GetConsultantContext(c)
		assert.False(t, exists)
		assert.Equal(t, ConsultantContext{}, consultantCtx)
	})

	t.Run("Context wrong type", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Set(ConsultantContextKey, "wrong type")
		_, exists := GetConsultantContext(c)
		assert.False(t, exists)
	})
}

func TestMustGetConsultantContext(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("Context exists - no panic", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Set(ConsultantContextKey, ConsultantContext{ConsultantID: "c1"})

		assert.NotPanics(t, func() {
			assert.Equal(t, "c1", MustGetConsultantContext(c).ConsultantID)
		})
	})

	t.Run("Context not found - panic", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		assert.Panics(t, func() {
			MustGetConsultantContext(c)
		})
	})
}

func TestRequireRole(t *testing.T) {
	jwtService := setupTestJWTService()
	consultantID := uuid.New().String()

	tokenWith := func(roles ...string) string {
		token, err := jwtService.GenerateAccessToken(consultantID, "asha@example.com", roles)
		require.NoError(t, err)
		return token
	}

	t.Run("Consultant has required role", func(t *testing.T) {
		router := setupTestRouter()
		router.GET("/admin-only", AuthMiddleware(jwtService, testLogger()), RequireRole(jwt.RoleAdmin), func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "success"})
		})

		w := serve(router, "/admin-only", "Bearer "+tokenWith(jwt.RoleConsultant, jwt.RoleAdmin))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "success")
	})

	t.Run("Consultant lacks required role", func(t *testing.T) {
		router := setupTestRouter()
		router.GET("/admin-only", AuthMiddleware(jwtService, testLogger()), RequireRole(jwt.RoleAdmin), unreachable)

		w := serve(router, "/admin-only", "Bearer "+tokenWith(jwt.RoleConsultant))

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Contains(t, w.Body.String(), "INSUFFICIENT_PERMISSIONS")
	})

	t.Run("Multiple roles allowed", func(t *testing.T) {
		router := setupTestRouter()
		router.GET("/multi-role", AuthMiddleware(jwtService, testLogger()), RequireRole(jwt.RoleAdmin, jwt.RoleConsultant), func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "success"})
		})

		w := serve(router, "/multi-role", "Bearer "+tokenWith(jwt.RoleConsultant))

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("No consultant context", func(t *testing.T) {
		router := setupTestRouter()
		router.GET("/no-auth", RequireRole(jwt.RoleAdmin), unreachable)

		w := serve(router, "/no-auth", "")

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "MISSING_USER_CONTEXT")
	})
}

type stubConsultants struct {
	consultant *models.Consultant
	err        error
}

func (s stubConsultants) GetByID(_ context.Context, _ string) (*models.Consultant, error) {
	return s.consultant, s.err
}

func TestRequireActiveConsultant(t *testing.T) {
	jwtService := setupTestJWTService()
	token, err := jwtService.GenerateAccessToken("c1", "asha@example.com", []string{jwt.RoleConsultant})
	require.NoError(t, err)

	tests := []struct {
		name       string
		lookup     stubConsultants
		wantStatus int
		wantCode   string
	}{
		{"active", stubConsultants{consultant: &models.Consultant{ID: "c1", IsActive: true}}, http.StatusOK, ""},
		{"unknown", stubConsultants{}, http.StatusForbidden, "CONSULTANT_NOT_FOUND"},
		{"deactivated", stubConsultants{consultant: &models.Consultant{ID: "c1"}}, http.StatusForbidden, "ACCOUNT_INACTIVE"},
		{"lookup fails", stubConsultants{err: errors.New("db down")}, http.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupTestRouter()
			router.GET("/me", AuthMiddleware(jwtService, testLogger()), RequireActiveConsultant(tt.lookup, testLogger()), func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{"message": "success"})
			})

			w := serve(router, "/me", "Bearer "+token)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantCode != "" {
				assert.Contains(t, w.Body.String(), tt.wantCode)
			}
		})
	}
}
