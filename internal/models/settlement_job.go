package models

import (
	"time"
)

// SettlementJobStatus settlement work item status
type SettlementJobStatus string

const (
	SettlementJobStatusPending    SettlementJobStatus = "pending"
	SettlementJobStatusProcessing SettlementJobStatus = "processing"
	SettlementJobStatusSubmitted  SettlementJobStatus = "submitted"
	SettlementJobStatusCompleted  SettlementJobStatus = "completed"
	SettlementJobStatusFailed     SettlementJobStatus = "failed"
)

// SettlementJob durable work item driving a confirmed payment intent to
// on-chain settlement. Keyed by payment intent so replays are detectable.
type SettlementJob struct {
	ID              string              `json:"id" gorm:"primaryKey"` // UUID
	PaymentIntentID string              `json:"paymentIntentId" gorm:"uniqueIndex;not null"`
	Amount          float64             `json:"amount" gorm:"not null"`
	UserAddress     string              `json:"userAddress" gorm:"not null"`
	LPAddress       string              `json:"lpAddress" gorm:"not null"`
	Network         string              `json:"network" gorm:"default:'eth'"`
	Status          SettlementJobStatus `json:"status" gorm:"not null;index"`

	TxHash      string     `json:"txHash"`
	RetryCount  int        `json:"retryCount" gorm:"default:0"`
	MaxRetries  int        `json:"maxRetries" gorm:"default:3"`
	NextRetryAt *time.Time `json:"nextRetryAt" gorm:"index"`
	StartedAt   *time.Time `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt"`
	LastError   string     `json:"lastError" gorm:"type:text"`

	// ProcessingTimeout bounds a single processing attempt; the timeout
	// sweeper resets or fails jobs that exceed it.
	ProcessingTimeout time.Duration `json:"processingTimeout" gorm:"default:0"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName table for settlement jobs.
func (SettlementJob) TableName() string { return "settlement_jobs" }
