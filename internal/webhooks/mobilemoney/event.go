package mobilemoneywebhook

import (
	"strings"

	"github.com/angelmondragon/shelfwise-backend/pkg/enums"
)

// Event types the processor sends for mobile-money charges.
const (
	EventChargeSuccess = "charge.success"
	EventChargeFailed  = "charge.failed"
)

// Event is the webhook body. Only the reference is trusted; the outcome is
// always re-read from the gateway.
type Event struct {
	Event string    `json:"event"`
	Data  EventData `json:"data"`
}

// EventData carries the charge fields of a webhook.
type EventData struct {
	ID        int64  `json:"id"`
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Channel   string `json:"channel"`
}

// Type returns the normalized event type.
func (e *Event) Type() string {
	return strings.ToLower(strings.TrimSpace(e.Event))
}

// Reference returns the merchant reference of the charge.
func (e *Event) Reference() string {
	return strings.TrimSpace(e.Data.Reference)
}

// Handled reports whether the event type triggers reconciliation.
func (e *Event) Handled() bool {
	switch e.Type() {
	case EventChargeSuccess, EventChargeFailed:
		return true
	}
	return false
}

// DedupKey identifies one logical delivery: the same outcome for the same charge.
func (e *Event) DedupKey() string {
	return e.Type() + ":" + e.Reference()
}

// ReportedStatus is the status claimed by the payload, for logging only.
func (e *Event) ReportedStatus() enums.GatewayStatus {
	return enums.NormalizeGatewayStatus(e.Data.Status)
}
