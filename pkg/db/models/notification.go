package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shelfwise-backend/pkg/enums"
)

// Notification stores in-app notification payloads scoped to readers.
type Notification struct {
	ID             uuid.UUID              `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         uuid.UUID              `gorm:"type:uuid;not null;index" json:"user_id"`
	SubscriptionID *uuid.UUID             `gorm:"type:uuid;index" json:"subscription_id,omitempty"`
	Type           enums.NotificationType `gorm:"not null" json:"type"`
	Title          string                 `gorm:"type:text;not null" json:"title"`
	Message        string                 `gorm:"type:text;not null" json:"message"`
	ReadAt         *time.Time             `json:"read_at,omitempty"`
	CreatedAt      time.Time              `gorm:"autoCreateTime" json:"created_at"`
}

// BeforeCreate assigns an id when the caller did not.
func (n *Notification) BeforeCreate(*gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}
