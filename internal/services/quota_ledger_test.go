package services

import (
	"context"
	"testing"

	"github.com/csschan/unitpay-sub001/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestQuotaLedgerReserve(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lp := seedLP(t, env, testLPWallet)

	t.Run("Reserve Locks Quota", func(t *testing.T) {
		reservation, err := env.ledger.Reserve(ctx, lp.ID, "intent-1", 300)
		assert.NoError(t, err)
		assert.Equal(t, models.ReservationStatusHeld, reservation.Status)
		assert.Equal(t, 300.0, reservation.Amount)

		got, err := env.lpRepo.GetByID(ctx, lp.ID)
		assert.NoError(t, err)
		assert.Equal(t, 300.0, got.LockedQuota)
		assert.Equal(t, 700.0, got.AvailableQuota)
	})

	t.Run("Reserve Beyond Per Transaction Quota", func(t *testing.T) {
		_, err := env.ledger.Reserve(ctx, lp.ID, "intent-2", 600)
		assert.ErrorIs(t, err, ErrInsufficientQuota)
	})

	t.Run("Reserve Beyond Available Quota", func(t *testing.T) {
		_, err := env.ledger.Reserve(ctx, lp.ID, "intent-3", 450)
		assert.NoError(t, err) // locked now 750
		_, err = env.ledger.Reserve(ctx, lp.ID, "intent-4", 400)
		assert.ErrorIs(t, err, ErrInsufficientQuota)
	})

	t.Run("Non Positive Amount", func(t *testing.T) {
		_, err := env.ledger.Reserve(ctx, lp.ID, "intent-5", 0)
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr)
	})
}

func TestQuotaLedgerRelease(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lp := seedLP(t, env, testLPWallet)

	reservation, err := env.ledger.Reserve(ctx, lp.ID, "intent-1", 250)
	assert.NoError(t, err)

	t.Run("Release Restores Quota", func(t *testing.T) {
		assert.NoError(t, env.ledger.Release(ctx, reservation.ID))

		got, err := env.lpRepo.GetByID(ctx, lp.ID)
		assert.NoError(t, err)
		assert.Equal(t, 0.0, got.LockedQuota)
		assert.Equal(t, 1000.0, got.AvailableQuota)
	})

	t.Run("Double Release Is A No Op", func(t *testing.T) {
		assert.NoError(t, env.ledger.Release(ctx, reservation.ID))

		got, err := env.lpRepo.GetByID(ctx, lp.ID)
		assert.NoError(t, err)
		assert.Equal(t, 0.0, got.LockedQuota)
		assert.Equal(t, 1000.0, got.AvailableQuota)
	})

	t.Run("Unknown Reservation", func(t *testing.T) {
		assert.Error(t, env.ledger.Release(ctx, "no-such-reservation"))
	})
}

func TestQuotaLedgerReleaseByIntent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lp := seedLP(t, env, testLPWallet)

	_, err := env.ledger.Reserve(ctx, lp.ID, "intent-1", 100)
	assert.NoError(t, err)

	t.Run("Releases Held Reservation", func(t *testing.T) {
		assert.NoError(t, env.ledger.ReleaseByIntent(ctx, "intent-1"))

		committed, err := env.ledger.Committed(ctx, lp.ID)
		assert.NoError(t, err)
		assert.Equal(t, 0.0, committed)
	})

	t.Run("No Held Reservation Is A No Op", func(t *testing.T) {
		assert.NoError(t, env.ledger.ReleaseByIntent(ctx, "intent-1"))
		assert.NoError(t, env.ledger.ReleaseByIntent(ctx, "intent-never-reserved"))
	})
}
