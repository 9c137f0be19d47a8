package dto

import "github.com/csschan/unitpay-sub001/internal/models"

// CreatePaymentIntentRequest request body for creating a payment intent
type CreatePaymentIntentRequest struct {
	Amount              float64                `json:"amount" binding:"required,gt=0"`
	Currency            string                 `json:"currency"`
	Platform            models.PaymentPlatform `json:"platform" binding:"required"`
	UserWalletAddress   string                 `json:"userWalletAddress" binding:"required"`
	Description         string                 `json:"description"`
	MerchantPaypalEmail string                 `json:"merchantPaypalEmail"`
	Network             string                 `json:"network"`
	AutoMatchLP         bool                   `json:"autoMatchLP"`
}

// MarkPaidRequest LP payment proof submission
type MarkPaidRequest struct {
	LPWalletAddress string              `json:"lpWalletAddress" binding:"required"`
	PaymentProof    models.PaymentProof `json:"paymentProof" binding:"required"`
}

// ClaimRequest LP claim request
type ClaimRequest struct {
	LPWalletAddress string `json:"lpWalletAddress" binding:"required"`
}

// ConfirmRequest user confirmation of fiat receipt
type ConfirmRequest struct {
	UserWalletAddress string `json:"userWalletAddress" binding:"required"`
}

// CancelRequest user cancellation
type CancelRequest struct {
	UserWalletAddress string `json:"userWalletAddress" binding:"required"`
}
