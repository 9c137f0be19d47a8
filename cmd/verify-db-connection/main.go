package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/joho/godotenv"

	"github.com/csschan/unitpay-sub001/internal/config"
	"github.com/csschan/unitpay-sub001/internal/db"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	fmt.Println("🔍 Verifying database connection and schema...")

	_ = godotenv.Load()
	if err := config.LoadConfig(*configPath); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db.InitDB()

	sqlDB, err := db.DB.DB()
	if err != nil {
		log.Fatalf("Failed to get database connection: %v", err)
	}
	defer sqlDB.Close()

	var dbName string
	if err := sqlDB.QueryRow("SELECT current_database()").Scan(&dbName); err != nil {
		log.Fatalf("Failed to get database name: %v", err)
	}
	fmt.Printf("📋 Connected to database: %s\n", dbName)

	for _, table := range []string{"payment_intents", "lps", "quota_reservations", "settlement_jobs"} {
		var count int64
		if err := db.DB.Table(table).Count(&count).Error; err != nil {
			log.Fatalf("❌ Table %s not reachable: %v", table, err)
		}
		fmt.Printf("✅ %s: %d rows\n", table, count)
	}

	fmt.Println("✅ Database verification complete")
}
