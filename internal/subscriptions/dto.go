package subscriptions

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/shelfwise-backend/pkg/db/models"
	"github.com/angelmondragon/shelfwise-backend/pkg/enums"
)

// CreateSubscriptionInput captures a reader's request to subscribe to a book.
type CreateSubscriptionInput struct {
	BookID          uuid.UUID
	Plan            string
	Price           decimal.Decimal
	DurationDays    int
	MobileNumber    string
	ServiceProvider string
	AccountName     string
}

// InitializePaymentInput starts a mobile-money charge for a pending subscription.
// AmountMinor is optional; when present it must equal the subscription price.
type InitializePaymentInput struct {
	SubscriptionID uuid.UUID
	Email          string
	AmountMinor    *int64
}

// InitializePaymentResult is returned to the payer.
type InitializePaymentResult struct {
	Subscription     *models.Subscription
	AuthorizationURL string
	Instructions     string
	Reference        string
}

// ReconcileInput identifies a payment to check with the gateway. A nil UserID
// marks a system caller (webhook or scheduled poll) that skips the owner check.
type ReconcileInput struct {
	Reference string
	Source    enums.ReconcileSource
	UserID    *uuid.UUID
}

// ReconcileResult reports what a reconciliation did.
type ReconcileResult struct {
	Subscription  *models.Subscription
	GatewayStatus enums.GatewayStatus
	Applied       bool
}

// SubscriptionDTO is the public JSON shape of a subscription.
type SubscriptionDTO struct {
	ID                uuid.UUID                `json:"id"`
	UserID            uuid.UUID                `json:"user_id"`
	BookID            uuid.UUID                `json:"book_id"`
	Plan              string                   `json:"plan"`
	Price             decimal.Decimal          `json:"price"`
	DurationDays      int                      `json:"duration_days"`
	StartDate         time.Time                `json:"start_date"`
	EndDate           time.Time                `json:"end_date"`
	MobileNumber      string                   `json:"mobile_number"`
	ServiceProvider   string                   `json:"service_provider"`
	AccountName       string                   `json:"account_name"`
	Status            enums.SubscriptionStatus `json:"status"`
	PaidAt            *time.Time               `json:"paid_at,omitempty"`
	ExternalReference *string                  `json:"external_reference,omitempty"`
	AmountMinor       *int64                   `json:"amount_minor,omitempty"`
	Currency          *string                  `json:"currency,omitempty"`
	GatewayStatus     *string                  `json:"gateway_status,omitempty"`
	CreatedAt         time.Time                `json:"created_at"`
	UpdatedAt         time.Time                `json:"updated_at"`
}

// FromModel maps a persisted subscription to its DTO.
func FromModel(sub *models.Subscription) SubscriptionDTO {
	if sub == nil {
		return SubscriptionDTO{}
	}
	return SubscriptionDTO{
		ID:                sub.ID,
		UserID:            sub.UserID,
		BookID:            sub.BookID,
		Plan:              sub.Plan,
		Price:             sub.Price,
		DurationDays:      sub.DurationDays,
		StartDate:         sub.StartDate,
		EndDate:           sub.EndDate,
		MobileNumber:      sub.MobileNumber,
		ServiceProvider:   sub.ServiceProvider,
		AccountName:       sub.AccountName,
		Status:            sub.Status,
		PaidAt:            sub.PaidAt,
		ExternalReference: sub.ExternalReference,
		AmountMinor:       sub.AmountMinor,
		Currency:          sub.Currency,
		GatewayStatus:     sub.GatewayStatus,
		CreatedAt:         sub.CreatedAt,
		UpdatedAt:         sub.UpdatedAt,
	}
}

// FromModels maps a slice of subscriptions.
func FromModels(subs []models.Subscription) []SubscriptionDTO {
	out := make([]SubscriptionDTO, 0, len(subs))
	for i := range subs {
		out = append(out, FromModel(&subs[i]))
	}
	return out
}
