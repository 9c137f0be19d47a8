package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims mirrors the backend session claims.
type JWTClaims struct {
	WalletAddress string `json:"walletAddress"`
	Network       string `json:"network"`
	jwt.RegisteredClaims
}

func main() {
	wallet := flag.String("wallet", "0x742d35cc6634c0532925a3b0f26750c66d78eb66", "wallet address for the token")
	network := flag.String("network", "eth", "network family (eth|sol)")
	flag.Parse()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "unitpay-jwt-secret-change-me"
	}

	now := time.Now()
	claims := JWTClaims{
		WalletAddress: *wallet,
		Network:       *network,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "unitpay-backend",
			Subject:   *wallet,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secret))
	if err != nil {
		fmt.Printf("Error generating token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("============================================================")
	fmt.Println("JWT Token Generated for Testing")
	fmt.Println("============================================================")
	fmt.Println()
	fmt.Println("Token:")
	fmt.Println(tokenString)
	fmt.Println()
	fmt.Println("Claims:")
	fmt.Printf("  Wallet Address: %s\n", *wallet)
	fmt.Printf("  Network: %s\n", *network)
	fmt.Printf("  Expires: %s\n", claims.ExpiresAt.Time)
	fmt.Println()
	fmt.Printf("Usage: curl -H \"Authorization: Bearer %s\" ...\n", tokenString)
}
