package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/csschan/unitpay-sub001/internal/config"
	"github.com/csschan/unitpay-sub001/internal/dto"
	"github.com/csschan/unitpay-sub001/internal/types"
)

// AuthHandler issues session tokens against a wallet signature challenge.
type AuthHandler struct{}

type AuthRequest = dto.AuthRequest
type AuthResponse = dto.AuthResponse
type JWTClaims = dto.JWTClaims

func NewAuthHandler() *AuthHandler {
	return &AuthHandler{}
}

func jwtSecret() []byte {
	if config.AppConfig != nil && config.AppConfig.Auth.JWTSecret != "" {
		return []byte(config.AppConfig.Auth.JWTSecret)
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		return []byte(secret)
	}
	return []byte("unitpay-jwt-secret-change-me")
}

// GenerateNonceHandler returns a fresh challenge for the wallet to sign.
func (h *AuthHandler) GenerateNonceHandler(c *gin.Context) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Failed to generate nonce",
		})
		return
	}

	nonceStr := hex.EncodeToString(nonce)
	timestamp := time.Now().Unix()
	message := fmt.Sprintf("UnitPay Authentication\nNonce: %s\nTimestamp: %d", nonceStr, timestamp)

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"nonce":     nonceStr,
		"message":   message,
		"timestamp": timestamp,
	})
}

// AuthenticateHandler validates the signed challenge and issues a JWT.
func (h *AuthHandler) AuthenticateHandler(c *gin.Context) {
	var req AuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, AuthResponse{
			Success: false,
			Message: fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}

	network := req.Network
	if network == "" {
		network = "eth"
	}
	addr, err := types.ParseAddressForNetwork(req.WalletAddress, network)
	if err != nil {
		c.JSON(http.StatusBadRequest, AuthResponse{
			Success: false,
			Message: fmt.Sprintf("Invalid wallet address: %v", err),
		})
		return
	}

	if !h.validateSignature(addr.String(), req.Message, req.Signature) {
		c.JSON(http.StatusUnauthorized, AuthResponse{
			Success: false,
			Message: "Signature verification failed",
		})
		return
	}

	token, err := h.generateJWTToken(addr.String(), network)
	if err != nil {
		c.JSON(http.StatusInternalServerError, AuthResponse{
			Success: false,
			Message: "Failed to generate token",
		})
		return
	}

	c.JSON(http.StatusOK, AuthResponse{
		Success: true,
		Token:   token,
		Message: "Authentication successful",
	})
}

// validateSignature checks the wallet signature over the challenge message.
// TODO: wire ecrecover for eth addresses so the signature is actually
// checked against the claimed wallet.
func (h *AuthHandler) validateSignature(walletAddress, message, signature string) bool {
	return len(walletAddress) >= 10 && len(message) > 0 && len(signature) >= 10
}

func (h *AuthHandler) generateJWTToken(walletAddress, network string) (string, error) {
	expiry := 24 * time.Hour
	if config.AppConfig != nil && config.AppConfig.Auth.TokenExpiry > 0 {
		expiry = time.Duration(config.AppConfig.Auth.TokenExpiry) * time.Hour
	}

	claims := JWTClaims{
		WalletAddress: walletAddress,
		Network:       network,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    "unitpay-backend",
			Subject:   walletAddress,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(jwtSecret())
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// ValidateJWTToken verifies a session token and returns its claims.
func ValidateJWTToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return jwtSecret(), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}
