package middleware

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p2einferno/inferno-checkin/utils"
)

const testSecret = "middleware-test-secret"

func TestMain(m *testing.M) {
	os.Setenv("JWT_SECRET", testSecret)
	os.Setenv("REDIS_ENABLED", "false")
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func protectedRouter() *gin.Engine {
	r := gin.New()
	r.GET("/me", AuthRequired(), func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"sub": ctx.GetString(ContextSubjectKey)})
	})
	return r
}

func sign(t *testing.T, claims utils.Claims, secret string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func TestAuthRequired(t *testing.T) {
	valid, err := utils.GenerateToken("did:privy:alice", time.Hour)
	require.NoError(t, err)

	expired := sign(t, utils.Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "did:privy:alice",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}}, testSecret)
	wrongKey := sign(t, utils.Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "did:privy:alice",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}, "other")
	noSubject := sign(t, utils.Claims{RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}, testSecret)
	revoked := sign(t, utils.Claims{SessionID: "sess-1", RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "did:privy:alice",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}, testSecret)
	require.NoError(t, utils.RevokeSession("sess-1", time.Now().Add(time.Hour)))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"valid", "Bearer " + valid, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + valid, http.StatusUnauthorized},
		{"empty token", "Bearer   ", http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"wrong key", "Bearer " + wrongKey, http.StatusUnauthorized},
		{"no subject", "Bearer " + noSubject, http.StatusUnauthorized},
		{"revoked", "Bearer " + revoked, http.StatusUnauthorized},
	}
	r := protectedRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.Contains(t, w.Body.String(), "did:privy:alice")
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	r := gin.New()
	r.GET("/x", RateLimit(2, func(*gin.Context) string { return "rate-limit-test" }), func(ctx *gin.Context) {
		ctx.Status(http.StatusNoContent)
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		codes = append(codes, w.Code)
	}
	// burst is perMinute/2
	assert.Equal(t, []int{http.StatusNoContent, http.StatusTooManyRequests, http.StatusTooManyRequests}, codes)
}
