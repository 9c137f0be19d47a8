package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/csschan/unitpay-sub001/internal/models"
	"github.com/csschan/unitpay-sub001/internal/repository"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	testUserWallet  = "0x1111111111111111111111111111111111111111"
	testLPWallet    = "0x2222222222222222222222222222222222222222"
	testOtherWallet = "0x3333333333333333333333333333333333333333"
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

type testEnv struct {
	db         *gorm.DB
	intentRepo repository.PaymentIntentRepository
	lpRepo     repository.LPRepository
	jobRepo    repository.SettlementJobRepository
	ledger     *QuotaLedger
	matcher    *LPMatchingService
	emitter    *recordingEmitter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := setupTestDB(t)
	lpRepo := repository.NewLPRepository(db)
	return &testEnv{
		db:         db,
		intentRepo: repository.NewPaymentIntentRepository(db),
		lpRepo:     lpRepo,
		jobRepo:    repository.NewSettlementJobRepository(db),
		ledger:     NewQuotaLedger(db, lpRepo),
		matcher:    NewLPMatchingService(lpRepo),
		emitter:    &recordingEmitter{},
	}
}

func (e *testEnv) coordinator() *ClaimCoordinator {
	return NewClaimCoordinator(e.intentRepo, e.lpRepo, e.ledger, e.matcher, NewPlatformProofVerifier(), e.emitter)
}

// recordingEmitter captures emitted events for assertions.
type recordingEmitter struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingEmitter) Emit(event string, payload NotificationPayload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingEmitter) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return ""
	}
	return r.events[len(r.events)-1]
}

func (r *recordingEmitter) has(event string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e == event {
			return true
		}
	}
	return false
}

func seedLP(t *testing.T, e *testEnv, wallet string, platforms ...models.PaymentPlatform) *models.LP {
	t.Helper()

	if len(platforms) == 0 {
		platforms = []models.PaymentPlatform{models.PlatformPayPal, models.PlatformGCash, models.PlatformAlipay}
	}
	lp := &models.LP{
		ID:                  uuid.New().String(),
		WalletAddress:       wallet,
		Name:                "Test LP",
		SupportedPlatforms:  platforms,
		FeeRate:             0.5,
		TotalQuota:          1000,
		AvailableQuota:      1000,
		PerTransactionQuota: 500,
		IsActive:            true,
	}
	if err := e.lpRepo.Create(context.Background(), lp); err != nil {
		t.Fatalf("failed to seed LP: %v", err)
	}
	return lp
}

func seedIntent(t *testing.T, e *testEnv, status models.PaymentIntentStatus, amount float64) *models.PaymentIntent {
	t.Helper()

	intent := &models.PaymentIntent{
		ID:                uuid.New().String(),
		Amount:            amount,
		Currency:          "USD",
		Platform:          models.PlatformGCash,
		Status:            status,
		UserWalletAddress: testUserWallet,
		Network:           "eth",
		FeeRate:           0.5,
		StatusHistory:     models.StatusHistory{{Status: status, Timestamp: time.Now()}},
	}
	if err := e.intentRepo.Create(context.Background(), intent); err != nil {
		t.Fatalf("failed to seed intent: %v", err)
	}
	return intent
}
