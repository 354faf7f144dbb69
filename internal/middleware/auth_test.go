package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "ops-dashboard",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func authHandler() http.Handler {
	return Auth(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestAuthAllowsReadsWithoutToken(t *testing.T) {
	rec := httptest.NewRecorder()
	authHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/alerts/active", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRejectsMutationWithoutToken(t *testing.T) {
	rec := httptest.NewRecorder()
	authHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/alerts/acknowledge/a1", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Missing bearer token")
}

func TestAuthAcceptsValidToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodPut, "/alerts/acknowledge/a1", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret))

	rec := httptest.NewRecorder()
	authHandler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRejectsWrongSecret(t *testing.T) {
	req := httptest.NewRequest(http.MethodPut, "/alerts/acknowledge/a1", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "other-secret"))

	rec := httptest.NewRecorder()
	authHandler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthRejectsMalformedHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodDelete, "/alerts/a1", nil)
	req.Header.Set("Authorization", "Token abcdef")

	rec := httptest.NewRecorder()
	authHandler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
