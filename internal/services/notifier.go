package services

import (
	"log"

	"github.com/csschan/unitpay-sub001/internal/models"
)

// Notification event names, kept wire-compatible with the frontend.
const (
	EventPaymentCreated         = "payment_created"
	EventPaymentIntentClaimed   = "payment_intent_claimed"
	EventPaymentIntentPaid      = "payment_intent_paid"
	EventPaymentIntentConfirmed = "payment_intent_confirmed"
	EventPaymentIntentSettled   = "payment_intent_settled"
	EventPaymentIntentCancelled = "payment_intent_cancelled"
	EventPaymentIntentFailed    = "payment_intent_failed"
	EventPaymentIntentReclaimed = "payment_intent_reclaimed"
)

// NotificationPayload event body delivered to the owning user's channel.
type NotificationPayload struct {
	PaymentIntentID string  `json:"id"`
	Status          string  `json:"status"`
	UserAddress     string  `json:"userWalletAddress,omitempty"`
	LPAddress       string  `json:"lpWalletAddress,omitempty"`
	TxHash          string  `json:"txHash,omitempty"`
	Amount          float64 `json:"amount,omitempty"`
	Platform        string  `json:"platform,omitempty"`
}

// NotificationEmitter publishes state-change events to interested parties.
// Delivery is fire-and-forget: implementations log failures and never
// return them, so a dead channel cannot roll back a committed transition.
type NotificationEmitter interface {
	Emit(event string, payload NotificationPayload)
}

// PayloadForIntent builds the standard payload for an intent event.
func PayloadForIntent(intent *models.PaymentIntent) NotificationPayload {
	p := NotificationPayload{
		PaymentIntentID: intent.ID,
		Status:          string(intent.Status),
		UserAddress:     intent.UserWalletAddress,
		Amount:          intent.Amount,
		Platform:        string(intent.Platform),
		TxHash:          intent.SettlementTxHash,
	}
	if intent.LPWalletAddress != nil {
		p.LPAddress = *intent.LPWalletAddress
	}
	return p
}

// MultiEmitter fans an event out to several transports.
type MultiEmitter []NotificationEmitter

// Emit delivers the event to every transport.
func (m MultiEmitter) Emit(event string, payload NotificationPayload) {
	for _, e := range m {
		e.Emit(event, payload)
	}
}

// LogEmitter fallback emitter used when no transport is configured.
type LogEmitter struct{}

// Emit logs the event.
func (LogEmitter) Emit(event string, payload NotificationPayload) {
	log.Printf("📣 [Notify] %s intent=%s status=%s", event, payload.PaymentIntentID, payload.Status)
}
