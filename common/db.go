package common

import (
	"log"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func ConnectDb(cfg *Config) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(cfg.DatabaseFile), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		log.Println("Error opening sqlite db: " + err.Error())
		return nil
	}
	log.Println("opened sqlite db at:", cfg.DatabaseFile)
	return db
}

// ConnectAnalyticsDb opens the separate analytics database, if configured.
func ConnectAnalyticsDb(cfg *Config) *gorm.DB {
	if cfg.AnalyticsDatabase == "" {
		log.Println("ANALYTICS_DATABASE_FILE not set - analytics will be disabled")
		return nil
	}

	db, err := gorm.Open(sqlite.Open(cfg.AnalyticsDatabase), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		log.Println("Error opening analytics sqlite db: " + err.Error())
		return nil
	}

	log.Println("opened analytics sqlite db at:", cfg.AnalyticsDatabase)
	return db
}
