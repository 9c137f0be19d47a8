package db

import (
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/csschan/unitpay-sub001/internal/config"
	"github.com/csschan/unitpay-sub001/internal/models"
)

var DB *gorm.DB

func InitDB() {
	var err error

	if config.AppConfig == nil || config.AppConfig.Database.DSN == "" {
		log.Fatalf("Database DSN is required")
	}

	dsn := config.AppConfig.Database.DSN

	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true,
		PrepareStmt:                              true,
		TranslateError:                           true,
		Logger:                                   logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}

	log.Println("✅ Database connected successfully")

	if err := Migrate(DB); err != nil {
		log.Fatalf("AutoMigrate failed: %v", err)
	}

	log.Println("✅ Database schema migrated successfully")
}

// Migrate runs schema migration plus data repairs. Exposed so tests can run
// it against an in-memory database.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.PaymentIntent{},
		&models.LP{},
		&models.QuotaReservation{},
		&models.SettlementJob{},
	); err != nil {
		return err
	}

	// available_quota is derived; rows written by older builds can drift
	// from total_quota - locked_quota.
	if err := fixQuotaConsistency(db); err != nil {
		log.Printf("⚠️ Failed to repair quota consistency: %v", err)
	}
	return nil
}

func fixQuotaConsistency(db *gorm.DB) error {
	result := db.Model(&models.LP{}).
		Where("available_quota <> total_quota - locked_quota").
		Update("available_quota", gorm.Expr("total_quota - locked_quota"))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		log.Printf("🔧 Repaired available_quota on %d LP rows", result.RowsAffected)
	}
	return nil
}
