package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"smshub/internal/config"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// gormMessage mirrors the messages table for AutoMigrate. It exists only in
// this binary; the runtime repository reads and writes the same table
// through raw SQL (internal/repository/postgres).
type gormMessage struct {
	ID                string    `gorm:"type:uuid;primaryKey"`
	SubscriptionKey   string    `gorm:"column:subscription_key;index:idx_messages_tenant_created,priority:1;not null"`
	Content           string    `gorm:"not null"`
	Recipient         string    `gorm:"not null"`
	ChannelType       string    `gorm:"column:channel_type;not null"`
	Status            string    `gorm:"index:idx_messages_status_created,priority:1;not null"`
	CreatedAt         time.Time `gorm:"index:idx_messages_tenant_created,priority:2,sort:desc;index:idx_messages_status_created,priority:2"`
	UpdatedAt         time.Time
	ExternalMessageID string `gorm:"column:external_message_id;index"`
	ErrorMessage      string `gorm:"column:error_message"`
	RetryCount        int    `gorm:"column:retry_count;not null;default:0"`
}

func (gormMessage) TableName() string { return "messages" }

func main() {
	conf := config.FromEnv()

	fmt.Println("connecting to database...")
	fmt.Println("dsn:", conf.DatabaseURL)

	db, err := gorm.Open(postgres.Open(conf.DatabaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}

	sqlDB, _ := db.DB()
	if err := sqlDB.Ping(); err != nil {
		log.Fatalf("failed to ping database: %v", err)
	}

	fmt.Println("connected")
	fmt.Println("running migrations...")

	if err := db.AutoMigrate(&gormMessage{}); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	fmt.Println("migration complete")

	var tables []string
	db.Raw("SELECT tablename FROM pg_tables WHERE schemaname = 'public'").Scan(&tables)
	if len(tables) == 0 {
		fmt.Println("no tables found")
		os.Exit(1)
	}

	fmt.Println("tables:")
	for _, table := range tables {
		fmt.Printf("  - %s\n", table)
	}
}
