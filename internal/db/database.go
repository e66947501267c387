package db

import (
	"fmt"
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"carewire/internal/config"
	"carewire/pkg/models"
)

// NewDatabase creates a new database connection
func NewDatabase(cfg config.DBConfig) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Error),
		TranslateError: true,
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// AutoMigrate runs database migrations using GORM
func AutoMigrate(db *gorm.DB) error {
	log.Println("Running GORM AutoMigrate...")

	// Create required extensions first
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`).Error; err != nil {
		log.Printf("Warning: Could not create uuid-ossp extension: %v", err)
	}

	// Run GORM AutoMigrate with all models
	if err := db.AutoMigrate(models.GetAllModels()...); err != nil {
		return fmt.Errorf("failed to run GORM AutoMigrate: %w", err)
	}

	// Create any custom indexes that GORM might not handle automatically
	if err := createCustomIndexes(db); err != nil {
		log.Printf("Warning: Failed to create some custom indexes: %v", err)
	}

	log.Println("GORM AutoMigrate completed successfully")
	return nil
}

// createCustomIndexes creates any custom indexes that GORM might not handle
func createCustomIndexes(db *gorm.DB) error {
	indexes := []string{
		// One virtual number per staff user, ignoring free rows
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_virtual_numbers_assigned_user ON virtual_numbers(assigned_user_id) WHERE assigned_user_id IS NOT NULL`,

		// One active external participant per phone per conversation
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_participants_active_phone ON participants(conversation_id, phone) WHERE kind = 'sms' AND is_active = true`,

		// One active staff participant per user per conversation
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_participants_active_user ON participants(conversation_id, user_id) WHERE kind = 'virtual' AND is_active = true`,

		// Inbound replay protection keys off provider message IDs
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_external_id ON messages(external_id) WHERE external_id != ''`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			log.Printf("Warning: Failed to create index: %s - %v", idx, err)
		}
	}

	return nil
}

// RunMigrations is the main migration function called from main.go
func RunMigrations(db *gorm.DB) error {
	log.Println("Starting database migrations...")

	if err := AutoMigrate(db); err != nil {
		return fmt.Errorf("AutoMigrate failed: %w", err)
	}

	log.Println("All migrations completed successfully")
	return nil
}
