// Package archive write-through copies finalized assistant turns to the
// durable message store. Writes are best-effort: a failure is logged and
// never blocks the chat response path.
package archive

import (
	"context"
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type chatLogModel struct {
	ID          uint   `gorm:"primaryKey"`
	SessionID   string `gorm:"index"`
	CharacterID string
	Role        string
	Speaker     string
	Content     string
	Emotion     string
	CreatedAt   time.Time
}

func (chatLogModel) TableName() string { return "chat_log" }

// Writer persists conversation turns. A nil Writer is valid and drops every
// record, which is how the engine runs when no DSN is configured.
type Writer struct {
	db *gorm.DB
}

// Open connects to Postgres and migrates the chat_log table.
func Open(dsn string) (*Writer, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}
	if err := db.AutoMigrate(&chatLogModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate chat_log: %w", err)
	}
	return &Writer{db: db}, nil
}

// Record stores one turn. Errors are logged, never returned.
func (w *Writer) Record(ctx context.Context, sessionID, characterID, role, speaker, content, mood string) {
	if w == nil || w.db == nil {
		return
	}

	record := chatLogModel{
		SessionID:   sessionID,
		CharacterID: characterID,
		Role:        role,
		Speaker:     speaker,
		Content:     content,
		Emotion:     mood,
	}
	if err := w.db.WithContext(ctx).Create(&record).Error; err != nil {
		log.Printf("[archive] failed to record turn for session=%s: %v", sessionID, err)
	}
}
