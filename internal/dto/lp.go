package dto

import "github.com/csschan/unitpay-sub001/internal/models"

// RegisterLPRequest LP onboarding request
type RegisterLPRequest struct {
	WalletAddress       string                   `json:"walletAddress" binding:"required"`
	Name                string                   `json:"name"`
	Email               string                   `json:"email"`
	PaypalEmail         string                   `json:"paypalEmail"`
	SupportedPlatforms  []models.PaymentPlatform `json:"supportedPlatforms" binding:"required"`
	FeeRate             float64                  `json:"feeRate"`
	TotalQuota          float64                  `json:"totalQuota" binding:"required,gt=0"`
	PerTransactionQuota float64                  `json:"perTransactionQuota" binding:"required,gt=0"`
	Network             string                   `json:"network"`
}

// UpdateQuotaRequest admin quota-limit update
type UpdateQuotaRequest struct {
	WalletAddress       string  `json:"walletAddress" binding:"required"`
	TotalQuota          float64 `json:"totalQuota" binding:"required,gt=0"`
	PerTransactionQuota float64 `json:"perTransactionQuota" binding:"required,gt=0"`
}
