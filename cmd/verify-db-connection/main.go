// Command verify-db-connection checks that the configured DSN is reachable
// and that the relay's tables migrated.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/sirupsen/logrus"

	"payables-relay/internal/config"
	"payables-relay/internal/db"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default config.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	gormDB, err := db.Open(cfg.Database.DSN, logrus.New())
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		log.Fatalf("Failed to get sql.DB: %v", err)
	}
	defer sqlDB.Close()

	var dbName string
	if err := sqlDB.QueryRow("SELECT current_database()").Scan(&dbName); err != nil {
		log.Fatalf("Failed to query database name: %v", err)
	}
	fmt.Printf("Connected to database: %s\n", dbName)

	tables := []string{
		"payables", "user_payments", "payable_payments",
		"withdrawals", "users", "finalization_records",
	}
	for _, table := range tables {
		var exists bool
		err := sqlDB.QueryRow(`
			SELECT EXISTS (
				SELECT 1 FROM information_schema.tables
				WHERE table_schema = 'public' AND table_name = $1
			)`, table).Scan(&exists)
		if err != nil {
			log.Fatalf("Failed to check table %s: %v", table, err)
		}
		status := "ok"
		if !exists {
			status = "MISSING"
		}
		fmt.Printf("  %-22s %s\n", table, status)
	}
}
