package models

import (
	"time"
)

// LP liquidity provider: fronts fiat payments against a credit line and is
// reimbursed on-chain at settlement.
type LP struct {
	ID            string `json:"id" gorm:"primaryKey"` // UUID
	WalletAddress string `json:"walletAddress" gorm:"uniqueIndex;not null"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	PaypalEmail   string `json:"paypalEmail"`

	SupportedPlatforms []PaymentPlatform `json:"supportedPlatforms" gorm:"type:text;serializer:json"`
	FeeRate            float64           `json:"feeRate" gorm:"default:0.5"` // percent, 0-100

	// Quota invariant: available_quota = total_quota - locked_quota, locked_quota >= 0.
	// Mutated only through the quota ledger's guarded updates.
	TotalQuota          float64 `json:"totalQuota" gorm:"not null"`
	LockedQuota         float64 `json:"lockedQuota" gorm:"not null;default:0"`
	AvailableQuota      float64 `json:"availableQuota" gorm:"not null"`
	PerTransactionQuota float64 `json:"perTransactionQuota" gorm:"not null"`

	IsVerified bool `json:"isVerified" gorm:"default:false"`
	IsActive   bool `json:"isActive" gorm:"default:true;index"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName keeps the table name aligned with the original schema.
func (LP) TableName() string { return "lps" }

// SupportsPlatform reports whether the LP accepts payment tasks on p.
func (lp *LP) SupportsPlatform(p PaymentPlatform) bool {
	for _, s := range lp.SupportedPlatforms {
		if s == p {
			return true
		}
	}
	return false
}

// ReservationStatus quota reservation lifecycle
type ReservationStatus string

const (
	ReservationStatusHeld     ReservationStatus = "held"
	ReservationStatusReleased ReservationStatus = "released"
)

// QuotaReservation binds a slice of an LP's credit line to one payment
// intent. The held->released flip is the idempotence gate: timeout sweeps
// and normal completion may race, only the first release touches the LP row.
type QuotaReservation struct {
	ID              string            `json:"id" gorm:"primaryKey"` // UUID
	LPID            string            `json:"lpId" gorm:"not null;index"`
	PaymentIntentID string            `json:"paymentIntentId" gorm:"not null;index"`
	Amount          float64           `json:"amount" gorm:"not null"`
	Status          ReservationStatus `json:"status" gorm:"not null;index"`
	ReleasedAt      *time.Time        `json:"releasedAt"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

// TableName table for quota reservations.
func (QuotaReservation) TableName() string { return "quota_reservations" }
