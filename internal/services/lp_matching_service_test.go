package services

import (
	"context"
	"testing"

	"github.com/csschan/unitpay-sub001/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestFindBestLP(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cheap := seedLP(t, env, "0x4000000000000000000000000000000000000001", models.PlatformGCash)
	assert.NoError(t, env.db.Model(&models.LP{}).Where("id = ?", cheap.ID).Update("fee_rate", 0.3).Error)

	pricey := seedLP(t, env, "0x4000000000000000000000000000000000000002", models.PlatformGCash)
	assert.NoError(t, env.db.Model(&models.LP{}).Where("id = ?", pricey.ID).Update("fee_rate", 1.5).Error)

	seedLP(t, env, "0x4000000000000000000000000000000000000003", models.PlatformPayPal)

	t.Run("Cheapest Qualifying LP Wins", func(t *testing.T) {
		best, err := env.matcher.FindBestLP(ctx, models.PlatformGCash, 100)
		assert.NoError(t, err)
		assert.NotNil(t, best)
		assert.Equal(t, cheap.ID, best.ID)
	})

	t.Run("Quota Ceilings Filter Candidates", func(t *testing.T) {
		// per-transaction ceiling is 500 for all seeded LPs
		best, err := env.matcher.FindBestLP(ctx, models.PlatformGCash, 600)
		assert.NoError(t, err)
		assert.Nil(t, best)
	})

	t.Run("Platform Filter", func(t *testing.T) {
		best, err := env.matcher.FindBestLP(ctx, models.PlatformWeChat, 100)
		assert.NoError(t, err)
		assert.Nil(t, best)
	})

	t.Run("Locked Quota Shrinks Availability", func(t *testing.T) {
		_, err := env.ledger.Reserve(ctx, cheap.ID, "intent-hold", 500)
		assert.NoError(t, err)
		_, err = env.ledger.Reserve(ctx, cheap.ID, "intent-hold-2", 480)
		assert.NoError(t, err) // 20 left

		best, err := env.matcher.FindBestLP(ctx, models.PlatformGCash, 100)
		assert.NoError(t, err)
		assert.NotNil(t, best)
		assert.Equal(t, pricey.ID, best.ID)
	})
}

func TestAvailableLPs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	seedLP(t, env, "0x5000000000000000000000000000000000000001", models.PlatformGCash)
	seedLP(t, env, "0x5000000000000000000000000000000000000002", models.PlatformGCash, models.PlatformPayPal)
	seedLP(t, env, "0x5000000000000000000000000000000000000003", models.PlatformPayPal)

	all, err := env.matcher.AvailableLPs(ctx, "", 0)
	assert.NoError(t, err)
	assert.Len(t, all, 3)

	gcash, err := env.matcher.AvailableLPs(ctx, models.PlatformGCash, 0)
	assert.NoError(t, err)
	assert.Len(t, gcash, 2)

	bigTicket, err := env.matcher.AvailableLPs(ctx, models.PlatformGCash, 700)
	assert.NoError(t, err)
	assert.Empty(t, bigTicket)
}
