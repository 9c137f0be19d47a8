package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/csschan/unitpay-sub001/internal/models"
)

// ProofVerifier checks a payment proof against the intent it settles.
// Implementations must not mutate the intent; they stamp the proof's
// verification fields on success.
type ProofVerifier interface {
	Verify(ctx context.Context, intent *models.PaymentIntent, proof *models.PaymentProof) error
}

// verificationStatusVerified marks a proof that passed all checks.
const verificationStatusVerified = "verified"

// personalPaypalDomains are consumer mail domains that cannot receive
// merchant payments. Creation-side validation rejects them too, this is
// the second line for intents created before the rule existed.
var personalPaypalDomains = []string{"gmail.com", "yahoo.com", "hotmail.com", "outlook.com", "qq.com", "163.com"}

// PlatformProofVerifier verifies proofs per payment platform. PayPal gets
// transaction-id and merchant-email checks; wallet platforms get a
// reference-number shape check; Other and Crypto pass on structural
// validity alone.
type PlatformProofVerifier struct{}

// NewPlatformProofVerifier returns the default verifier.
func NewPlatformProofVerifier() *PlatformProofVerifier {
	return &PlatformProofVerifier{}
}

func (v *PlatformProofVerifier) Verify(ctx context.Context, intent *models.PaymentIntent, proof *models.PaymentProof) error {
	if proof == nil {
		return NewValidationError("paymentProof", "is required")
	}
	if err := proof.Validate(); err != nil {
		return NewValidationError("paymentProof", err.Error())
	}
	if proof.Platform != intent.Platform {
		return NewValidationError("paymentProof.platform",
			fmt.Sprintf("proof platform %s does not match intent platform %s", proof.Platform, intent.Platform))
	}

	switch proof.Platform {
	case models.PlatformPayPal:
		if err := v.verifyPayPal(intent, proof); err != nil {
			return err
		}
	case models.PlatformGCash, models.PlatformAlipay, models.PlatformWeChat:
		if len(proof.ReferenceNumber) < 6 {
			return fmt.Errorf("%w: reference number too short", ErrVerificationFailed)
		}
	}

	now := time.Now()
	proof.VerificationStatus = verificationStatusVerified
	proof.VerifiedAt = &now
	return nil
}

func (v *PlatformProofVerifier) verifyPayPal(intent *models.PaymentIntent, proof *models.PaymentProof) error {
	if len(proof.TransactionID) < 8 {
		return fmt.Errorf("%w: paypal transaction id too short", ErrVerificationFailed)
	}
	if intent.MerchantPaypalEmail != "" && proof.MerchantEmail != "" &&
		!strings.EqualFold(intent.MerchantPaypalEmail, proof.MerchantEmail) {
		return fmt.Errorf("%w: merchant email %s does not match intent", ErrVerificationFailed, proof.MerchantEmail)
	}
	if proof.MerchantEmail != "" && IsPersonalPaypalEmail(proof.MerchantEmail) {
		return fmt.Errorf("%w: %s is a personal paypal account", ErrVerificationFailed, proof.MerchantEmail)
	}
	return nil
}

// IsPersonalPaypalEmail reports whether the address belongs to a consumer
// mail domain that cannot act as a PayPal merchant.
func IsPersonalPaypalEmail(email string) bool {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return false
	}
	domain := strings.ToLower(email[at+1:])
	for _, d := range personalPaypalDomains {
		if domain == d {
			return true
		}
	}
	return false
}
