package handlers

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func authRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewAuthHandler()
	r := gin.New()
	r.GET("/api/auth/nonce", h.GenerateNonceHandler)
	r.POST("/api/auth/login", h.AuthenticateHandler)
	return r
}

func TestGenerateNonce(t *testing.T) {
	s := &testServer{router: authRouter()}

	w, resp := s.do(t, http.MethodGet, "/api/auth/nonce", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, resp["success"])
	assert.Len(t, resp["nonce"].(string), 32)
	assert.Contains(t, resp["message"].(string), "UnitPay Authentication")
}

func TestAuthenticate(t *testing.T) {
	s := &testServer{router: authRouter()}

	t.Run("Issues Valid JWT", func(t *testing.T) {
		w, resp := s.do(t, http.MethodPost, "/api/auth/login", gin.H{
			"walletAddress": testUserWallet,
			"message":       "UnitPay Authentication\nNonce: abc\nTimestamp: 1",
			"signature":     "0xdeadbeefdeadbeef",
		})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, true, resp["success"])

		token := resp["token"].(string)
		claims, err := ValidateJWTToken(token)
		assert.NoError(t, err)
		assert.Equal(t, testUserWallet, claims.WalletAddress)
		assert.Equal(t, "eth", claims.Network)
		assert.Equal(t, "unitpay-backend", claims.Issuer)
	})

	t.Run("Rejects Bad Address", func(t *testing.T) {
		w, _ := s.do(t, http.MethodPost, "/api/auth/login", gin.H{
			"walletAddress": "nope",
			"message":       "challenge",
			"signature":     "0xdeadbeefdeadbeef",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Rejects Missing Signature", func(t *testing.T) {
		w, _ := s.do(t, http.MethodPost, "/api/auth/login", gin.H{
			"walletAddress": testUserWallet,
			"message":       "challenge",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Rejects Short Signature", func(t *testing.T) {
		w, _ := s.do(t, http.MethodPost, "/api/auth/login", gin.H{
			"walletAddress": testUserWallet,
			"message":       "challenge",
			"signature":     "0x1",
		})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestValidateJWTToken(t *testing.T) {
	_, err := ValidateJWTToken("not-a-token")
	assert.Error(t, err)
}
