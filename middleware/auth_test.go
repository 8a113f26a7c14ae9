package middleware_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/stockmeta/middleware"
)

const testSecret = "test-secret"

func protectedApp() *fiber.App {
	app := fiber.New()
	app.Get("/me", middleware.Protected(testSecret), func(c *fiber.Ctx) error {
		return c.SendString(middleware.GetClientID(c) + "|" + middleware.GetClientName(c))
	})
	return app
}

func TestGenerateAndParseToken(t *testing.T) {
	token, err := middleware.GenerateToken(testSecret, "lightroom", "Lightroom plugin", time.Hour)
	require.NoError(t, err)

	claims, err := middleware.ParseToken(testSecret, token)
	require.NoError(t, err)
	assert.Equal(t, "lightroom", claims.ClientID)
	assert.Equal(t, "Lightroom plugin", claims.ClientName)
	assert.Equal(t, "lightroom", claims.Subject)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Minute)

	_, err = middleware.ParseToken("other-secret", token)
	assert.ErrorIs(t, err, middleware.ErrUnauthorized)
}

func TestParseTokenRejectsOtherAlgorithms(t *testing.T) {
	claims := middleware.Claims{ClientID: "x"}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = middleware.ParseToken(testSecret, token)
	assert.ErrorIs(t, err, middleware.ErrUnauthorized)
}

func TestProtected(t *testing.T) {
	valid, err := middleware.GenerateToken(testSecret, "lightroom", "Lightroom plugin", time.Hour)
	require.NoError(t, err)
	expired, err := middleware.GenerateToken(testSecret, "lightroom", "", -time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized},
		{"bearer", "Bearer " + valid, http.StatusOK},
		{"raw token", valid, http.StatusOK},
		{"expired ttl falls back to default", "Bearer " + expired, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := protectedApp().Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
			if tt.status == http.StatusOK {
				body, _ := io.ReadAll(resp.Body)
				assert.Contains(t, string(body), "lightroom|")
			}
		})
	}
}

func TestProtectedRejectsExpiredToken(t *testing.T) {
	claims := middleware.Claims{
		ClientID: "lightroom",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := protectedApp().Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
