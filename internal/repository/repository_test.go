package repository

import (
	"testing"

	"github.com/csschan/unitpay-sub001/internal/models"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	// every pooled connection to :memory: is its own database
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(
		&models.PaymentIntent{},
		&models.LP{},
		&models.QuotaReservation{},
		&models.SettlementJob{},
	); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

func newTestIntent(platform models.PaymentPlatform, amount float64) *models.PaymentIntent {
	return &models.PaymentIntent{
		ID:                uuid.New().String(),
		Amount:            amount,
		Currency:          "USD",
		Platform:          platform,
		Status:            models.PaymentIntentStatusCreated,
		UserWalletAddress: "0x1111111111111111111111111111111111111111",
		Network:           "eth",
		FeeRate:           0.5,
		StatusHistory: models.StatusHistory{
			{Status: models.PaymentIntentStatusCreated},
		},
	}
}

func newTestLP(wallet string) *models.LP {
	return &models.LP{
		ID:                  uuid.New().String(),
		WalletAddress:       wallet,
		Name:                "Test LP",
		SupportedPlatforms:  []models.PaymentPlatform{models.PlatformPayPal, models.PlatformGCash},
		FeeRate:             0.5,
		TotalQuota:          1000,
		AvailableQuota:      1000,
		PerTransactionQuota: 500,
		IsActive:            true,
	}
}
