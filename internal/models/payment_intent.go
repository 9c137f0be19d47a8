package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// PaymentIntentStatus payment intent lifecycle status
type PaymentIntentStatus string

const (
	PaymentIntentStatusCreated       PaymentIntentStatus = "created"
	PaymentIntentStatusClaimed       PaymentIntentStatus = "claimed"
	PaymentIntentStatusPaid          PaymentIntentStatus = "paid"
	PaymentIntentStatusConfirmed     PaymentIntentStatus = "confirmed"
	PaymentIntentStatusUserConfirmed PaymentIntentStatus = "user_confirmed"
	PaymentIntentStatusProcessing    PaymentIntentStatus = "processing"
	PaymentIntentStatusSettled       PaymentIntentStatus = "settled"
	PaymentIntentStatusFailed        PaymentIntentStatus = "failed"
	PaymentIntentStatusCancelled     PaymentIntentStatus = "cancelled"
)

// PaymentPlatform supported fiat payment platforms
type PaymentPlatform string

const (
	PlatformPayPal PaymentPlatform = "PayPal"
	PlatformGCash  PaymentPlatform = "GCash"
	PlatformAlipay PaymentPlatform = "Alipay"
	PlatformWeChat PaymentPlatform = "WeChat"
	PlatformOther  PaymentPlatform = "Other"
	PlatformCrypto PaymentPlatform = "Crypto"
)

// SupportedPlatforms platforms accepted at intent creation
var SupportedPlatforms = []PaymentPlatform{
	PlatformPayPal, PlatformGCash, PlatformAlipay, PlatformWeChat, PlatformOther, PlatformCrypto,
}

// IsSupportedPlatform reports whether p is a known payment platform.
func IsSupportedPlatform(p PaymentPlatform) bool {
	for _, s := range SupportedPlatforms {
		if s == p {
			return true
		}
	}
	return false
}

// TransitionRecord one entry of a payment intent's append-only status history
type TransitionRecord struct {
	Status    PaymentIntentStatus `json:"status"`
	Timestamp time.Time           `json:"timestamp"`
	Note      string              `json:"note,omitempty"`
	TxHash    string              `json:"txHash,omitempty"`
	Proof     *PaymentProof       `json:"paymentProof,omitempty"`
}

// PaymentProof platform-tagged payment evidence filed by the LP.
// The Platform discriminant selects which detail fields are meaningful.
type PaymentProof struct {
	Platform           PaymentPlatform `json:"platform"`
	TransactionID      string          `json:"transactionId,omitempty"`
	PayerEmail         string          `json:"payerEmail,omitempty"`         // PayPal
	MerchantEmail      string          `json:"merchantEmail,omitempty"`      // PayPal
	ReferenceNumber    string          `json:"referenceNumber,omitempty"`    // GCash / Alipay / WeChat
	Screenshot         string          `json:"screenshot,omitempty"`         // optional upload reference
	Note               string          `json:"note,omitempty"`               // Other
	VerificationStatus string          `json:"verificationStatus,omitempty"` // set by the verifier
	VerifiedAt         *time.Time      `json:"verifiedAt,omitempty"`
}

// Validate checks the proof payload against its platform discriminant.
func (p *PaymentProof) Validate() error {
	switch p.Platform {
	case PlatformPayPal:
		if p.TransactionID == "" {
			return fmt.Errorf("PayPal proof requires a transaction id")
		}
	case PlatformGCash, PlatformAlipay, PlatformWeChat:
		if p.ReferenceNumber == "" {
			return fmt.Errorf("%s proof requires a reference number", p.Platform)
		}
	case PlatformOther, PlatformCrypto:
		// free-form evidence is accepted
	default:
		return fmt.Errorf("unknown proof platform: %s", p.Platform)
	}
	return nil
}

// StatusHistory JSON-backed append-only transition history
type StatusHistory []TransitionRecord

// PaymentIntent core obligation record, tracked from creation through settlement
type PaymentIntent struct {
	ID       string          `json:"id" gorm:"primaryKey"` // UUID
	Amount   float64         `json:"amount" gorm:"not null"`
	Currency string          `json:"currency" gorm:"default:'USD'"`
	Platform PaymentPlatform `json:"platform" gorm:"not null;index"`

	Status  PaymentIntentStatus `json:"status" gorm:"not null;index"`
	Version int                 `json:"-" gorm:"not null;default:0"` // optimistic lock for status CAS

	UserWalletAddress string  `json:"userWalletAddress" gorm:"not null;index"`
	LPWalletAddress   *string `json:"lpWalletAddress" gorm:"index"` // nil until claimed
	LPID              *string `json:"lpId"`

	StatusHistory StatusHistory `json:"statusHistory" gorm:"type:text;serializer:json"`
	PaymentProof  *PaymentProof `json:"paymentProof" gorm:"type:text;serializer:json"`

	Description         string  `json:"description"`
	MerchantPaypalEmail string  `json:"merchantPaypalEmail"`
	Network             string  `json:"network" gorm:"default:'eth'"`
	FeeRate             float64 `json:"feeRate" gorm:"default:0.5"`
	FeeAmount           float64 `json:"feeAmount"`
	TotalAmount         float64 `json:"totalAmount"`

	ExpiresAt        *time.Time `json:"expiresAt" gorm:"index"`
	ReclaimCount     int        `json:"reclaimCount" gorm:"default:0"`
	SettlementTxHash string     `json:"settlementTxHash"`
	ErrorDetails     string     `json:"errorDetails,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName keeps the table name aligned with the original schema.
func (PaymentIntent) TableName() string { return "payment_intents" }

// CurrentStatus returns the last history entry, or nil for a malformed record.
func (pi *PaymentIntent) CurrentStatus() *TransitionRecord {
	if len(pi.StatusHistory) == 0 {
		return nil
	}
	return &pi.StatusHistory[len(pi.StatusHistory)-1]
}

// MarshalProof serializes the proof for logging and event payloads.
func (pi *PaymentIntent) MarshalProof() string {
	if pi.PaymentProof == nil {
		return ""
	}
	b, err := json.Marshal(pi.PaymentProof)
	if err != nil {
		return ""
	}
	return string(b)
}
