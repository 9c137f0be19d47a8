package dto

import "github.com/golang-jwt/jwt/v5"

// AuthRequest wallet-signature login request
type AuthRequest struct {
	WalletAddress string `json:"walletAddress" binding:"required"`
	Message       string `json:"message" binding:"required"`
	Signature     string `json:"signature" binding:"required"`
	Network       string `json:"network"`
}

// AuthResponse login response
type AuthResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
	Message string `json:"message"`
}

// JWTClaims user session claims
type JWTClaims struct {
	WalletAddress string `json:"walletAddress"`
	Network       string `json:"network"`
	jwt.RegisteredClaims
}
