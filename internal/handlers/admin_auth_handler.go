package handlers

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/csschan/unitpay-sub001/internal/config"
)

// AdminAuthHandler guards quota administration. Login requires the admin
// password (bcrypt-hashed in config) plus a TOTP code.
type AdminAuthHandler struct {
	jwtSecret    []byte
	totpSecret   string
	passwordHash string
	username     string
}

// AdminLoginRequest admin login request
type AdminLoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	TOTPCode string `json:"totp_code" binding:"required"`
}

// AdminLoginResponse admin login response
type AdminLoginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
	Message string `json:"message"`
}

// AdminJWTClaims admin session claims
type AdminJWTClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

func NewAdminAuthHandler() *AdminAuthHandler {
	h := &AdminAuthHandler{username: "admin"}

	if config.AppConfig != nil {
		if config.AppConfig.Admin.Username != "" {
			h.username = config.AppConfig.Admin.Username
		}
		h.passwordHash = config.AppConfig.Admin.PasswordHash
		h.totpSecret = config.AppConfig.Admin.TOTPSecret
	}
	if h.passwordHash == "" {
		h.passwordHash = os.Getenv("ADMIN_PASSWORD_HASH")
	}
	if h.totpSecret == "" {
		h.totpSecret = os.Getenv("ADMIN_TOTP_SECRET")
	}

	if h.passwordHash == "" || h.totpSecret == "" {
		logrus.Warn("⚠️ ADMIN_PASSWORD_HASH or ADMIN_TOTP_SECRET not configured, admin login will be rejected")
	}

	jwtSecretStr := os.Getenv("ADMIN_JWT_SECRET")
	if jwtSecretStr != "" {
		h.jwtSecret = []byte(jwtSecretStr)
	} else {
		h.jwtSecret = adminDefaultJWTSecret
		logrus.Warn("⚠️ Using default ADMIN_JWT_SECRET, set the environment variable in production")
	}

	return h
}

var adminDefaultJWTSecret = []byte("unitpay-admin-jwt-secret-default-change-me")

// AdminLoginHandler authenticates password + TOTP and issues an admin JWT.
func (h *AdminAuthHandler) AdminLoginHandler(c *gin.Context) {
	if h.passwordHash == "" || h.totpSecret == "" {
		c.JSON(http.StatusInternalServerError, AdminLoginResponse{
			Success: false,
			Message: "Server misconfiguration: admin credentials not set",
		})
		return
	}

	var req AdminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, AdminLoginResponse{
			Success: false,
			Message: fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}

	// Generic message on every credential failure.
	if req.Username != h.username {
		c.JSON(http.StatusUnauthorized, AdminLoginResponse{Success: false, Message: "Invalid credentials"})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(h.passwordHash), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, AdminLoginResponse{Success: false, Message: "Invalid credentials"})
		return
	}
	if !totp.Validate(req.TOTPCode, h.totpSecret) {
		c.JSON(http.StatusUnauthorized, AdminLoginResponse{Success: false, Message: "Invalid TOTP code"})
		return
	}

	token, err := h.generateAdminJWTToken(req.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, AdminLoginResponse{
			Success: false,
			Message: "Failed to generate token",
		})
		return
	}

	c.JSON(http.StatusOK, AdminLoginResponse{
		Success: true,
		Token:   token,
		Message: "Login successful",
	})
}

// GenerateTOTPSecretHandler mints a TOTP secret for initial setup. Disabled
// once a secret is configured.
func (h *AdminAuthHandler) GenerateTOTPSecretHandler(c *gin.Context) {
	if h.totpSecret != "" {
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error":   "TOTP secret already configured",
		})
		return
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "UnitPay Admin",
		AccountName: "admin@unitpay",
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to generate TOTP secret",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"secret":  key.Secret(),
		"url":     key.URL(),
		"message": "Save this secret securely to ADMIN_TOTP_SECRET env var",
	})
}

func (h *AdminAuthHandler) generateAdminJWTToken(username string) (string, error) {
	claims := AdminJWTClaims{
		Username: username,
		Role:     "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    "unitpay-backend-admin",
			Subject:   username,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(h.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// ValidateAdminJWTToken verifies an admin token and returns its claims.
func ValidateAdminJWTToken(tokenString string) (*AdminJWTClaims, error) {
	jwtSecret := adminDefaultJWTSecret
	if jwtSecretStr := os.Getenv("ADMIN_JWT_SECRET"); jwtSecretStr != "" {
		jwtSecret = []byte(jwtSecretStr)
	}

	token, err := jwt.ParseWithClaims(tokenString, &AdminJWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return jwtSecret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if claims, ok := token.Claims.(*AdminJWTClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}
