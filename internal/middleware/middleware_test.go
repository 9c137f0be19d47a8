package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/csschan/unitpay-sub001/internal/dto"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func signTestToken(t *testing.T, wallet string) string {
	t.Helper()

	claims := dto.JWTClaims{
		WalletAddress: wallet,
		Network:       "eth",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "unitpay-backend",
			Subject:   wallet,
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte("unitpay-jwt-secret-change-me"))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return token
}

func TestRequireAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mw := NewAuthMiddleware(quietLogger())

	r := gin.New()
	r.GET("/protected", mw.RequireAuth(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"wallet": c.GetString("wallet_address")})
	})

	t.Run("Missing Header", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "MISSING_AUTH_HEADER")
	})

	t.Run("Bad Format", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Token abc")
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "INVALID_AUTH_FORMAT")
	})

	t.Run("Invalid Token", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer garbage")
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "INVALID_TOKEN")
	})

	t.Run("Valid Token", func(t *testing.T) {
		wallet := "0x1111111111111111111111111111111111111111"
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+signTestToken(t, wallet))
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), wallet)
	})
}

func TestOptionalAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mw := NewAuthMiddleware(quietLogger())

	r := gin.New()
	r.GET("/open", mw.OptionalAuth(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"wallet": c.GetString("wallet_address")})
	})

	t.Run("No Token Passes", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/open", nil)
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Valid Token Attaches Claims", func(t *testing.T) {
		wallet := "0x2222222222222222222222222222222222222222"
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/open", nil)
		req.Header.Set("Authorization", "Bearer "+signTestToken(t, wallet))
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), wallet)
	})

	t.Run("Bad Token Still Passes", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/open", nil)
		req.Header.Set("Authorization", "Bearer garbage")
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestLocalhostOnly(t *testing.T) {
	gin.SetMode(gin.TestMode)

	newRouter := func(allowed []string) *gin.Engine {
		r := gin.New()
		r.GET("/admin", NewLocalhostOnly(quietLogger(), allowed).Restrict(), func(c *gin.Context) {
			c.Status(http.StatusOK)
		})
		return r
	}

	request := func(r *gin.Engine, remoteAddr string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.RemoteAddr = remoteAddr
		r.ServeHTTP(w, req)
		return w
	}

	t.Run("Loopback Always Allowed", func(t *testing.T) {
		r := newRouter(nil)
		assert.Equal(t, http.StatusOK, request(r, "127.0.0.1:51000").Code)
		assert.Equal(t, http.StatusOK, request(r, "[::1]:51000").Code)
	})

	t.Run("Outside Address Rejected", func(t *testing.T) {
		r := newRouter(nil)
		w := request(r, "10.1.2.3:51000")
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Contains(t, w.Body.String(), "IP_NOT_ALLOWED")
	})

	t.Run("Allowlisted IP", func(t *testing.T) {
		r := newRouter([]string{"10.1.2.3"})
		assert.Equal(t, http.StatusOK, request(r, "10.1.2.3:51000").Code)
		assert.Equal(t, http.StatusForbidden, request(r, "10.1.2.4:51000").Code)
	})

	t.Run("Allowlisted CIDR", func(t *testing.T) {
		r := newRouter([]string{"192.168.0.0/24"})
		assert.Equal(t, http.StatusOK, request(r, "192.168.0.77:51000").Code)
		assert.Equal(t, http.StatusForbidden, request(r, "192.168.1.77:51000").Code)
	})
}
