package indexer

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EventRecord is one committed ledger event.
type EventRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Sequence   uint64    `gorm:"uniqueIndex;not null"`
	Type       string    `gorm:"size:64;index"`
	Module     string    `gorm:"size:32;index"`
	SubjectID  string    `gorm:"size:128;index"`
	Attributes string    `gorm:"type:text"`
	CreatedAt  time.Time `gorm:"index"`
}

// AttributeMap decodes the stored attribute document.
func (r EventRecord) AttributeMap() map[string]string {
	if r.Attributes == "" {
		return nil
	}
	out := make(map[string]string)
	if err := json.Unmarshal([]byte(r.Attributes), &out); err != nil {
		return nil
	}
	return out
}

// AutoMigrate creates or updates the journal schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&EventRecord{})
}
