package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/shelfwise-backend/pkg/enums"
)

// Subscription is a reader's time-boxed entitlement to a book plus the
// payment intent that funds it.
type Subscription struct {
	ID                uuid.UUID                `gorm:"type:uuid;primaryKey"`
	UserID            uuid.UUID                `gorm:"column:user_id;type:uuid;not null;index"`
	BookID            uuid.UUID                `gorm:"column:book_id;type:uuid;not null;index"`
	Plan              string                   `gorm:"column:plan;not null"`
	Price             decimal.Decimal          `gorm:"column:price;type:numeric(12,2);not null"`
	DurationDays      int                      `gorm:"column:duration_days;not null"`
	StartDate         time.Time                `gorm:"column:start_date;not null"`
	EndDate           time.Time                `gorm:"column:end_date;not null"`
	MobileNumber      string                   `gorm:"column:mobile_number;not null"`
	ServiceProvider   string                   `gorm:"column:service_provider;not null"`
	AccountName       string                   `gorm:"column:account_name;not null"`
	Status            enums.SubscriptionStatus `gorm:"column:status;not null;default:'pending';index"`
	PaidAt            *time.Time               `gorm:"column:paid_at"`
	ExternalReference *string                  `gorm:"column:external_reference;uniqueIndex"`
	AmountMinor       *int64                   `gorm:"column:amount_minor"`
	Currency          *string                  `gorm:"column:currency"`
	GatewayStatus     *string                  `gorm:"column:gateway_status"`
	CreatedAt         time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

// BeforeCreate assigns an id when the caller did not.
func (s *Subscription) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// Duration returns the plan length as a time.Duration.
func (s *Subscription) Duration() time.Duration {
	return time.Duration(s.DurationDays) * 24 * time.Hour
}

// PriceMinor converts the price into the currency's minor unit (2 decimals).
func (s *Subscription) PriceMinor() int64 {
	return s.Price.Shift(2).Round(0).IntPart()
}

// Reference returns the external reference or an empty string.
func (s *Subscription) Reference() string {
	if s.ExternalReference == nil {
		return ""
	}
	return *s.ExternalReference
}
