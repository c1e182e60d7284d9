package utils

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const testSecret = "utils-test-secret"

func TestMain(m *testing.M) {
	os.Setenv("JWT_SECRET", testSecret)
	os.Setenv("REDIS_ENABLED", "false")
	os.Setenv("CONFIG_FILE", filepath.Join(os.TempDir(), "inferno-utils-absent.toml"))
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func TestTokenRoundTrip(t *testing.T) {
	tok, err := GenerateToken("did:privy:alice", time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "did:privy:alice", claims.Subject)
}

func TestParseTokenRejects(t *testing.T) {
	sign := func(c Claims, secret string) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
		require.NoError(t, err)
		return s
	}
	hour := jwt.NewNumericDate(time.Now().Add(time.Hour))

	cases := []struct {
		name string
		tok  string
	}{
		{"garbage", "not-a-token"},
		{"wrong secret", sign(Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "x", ExpiresAt: hour}}, "other")},
		{"expired", sign(Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "x", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))}}, testSecret)},
		{"no expiry", sign(Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "x"}}, testSecret)},
		{"no subject", sign(Claims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: hour}}, testSecret)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseToken(tc.tok)
			assert.Error(t, err)
		})
	}
}

func TestRevokeSessionInMemory(t *testing.T) {
	assert.False(t, IsSessionRevoked("s-1"))

	require.NoError(t, RevokeSession("s-1", time.Now().Add(time.Minute)))
	assert.True(t, IsSessionRevoked("s-1"))

	require.NoError(t, RevokeSession("s-2", time.Now().Add(-time.Second)))
	assert.False(t, IsSessionRevoked("s-2"))

	assert.Error(t, RevokeSession("", time.Now().Add(time.Minute)))
	assert.False(t, IsSessionRevoked(""))
}

func TestSanitizeTextStripsMarkup(t *testing.T) {
	assert.Equal(t, "gm", SanitizeText("<b>gm</b>"))
	assert.Equal(t, "", SanitizeText("<script>alert(1)</script>"))
}

func TestGinzapSetsRequestID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r := gin.New()
	r.Use(Ginzap(zap.New(core), time.RFC3339, true), RecoveryWithZap(zap.New(core), false))
	r.GET("/ok", func(c *gin.Context) { Success(c, gin.H{"ok": true}) })
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))
	assert.Contains(t, w.Body.String(), `"requestId":"req-42"`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	entries := logs.FilterField(zap.String("request_id", "req-42")).All()
	require.Len(t, entries, 1)
	assert.Equal(t, "/ok", entries[0].Message)
}

func TestNewRollingFileLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "app.log")
	l, err := NewRollingFileLogger(path, "debug", 1, 1, 1, false, false)
	require.NoError(t, err)
	l.Info("hello", zap.String("k", "v"))
	_ = l.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
	assert.Contains(t, string(data), `"k":"v"`)
}
