package enums

import "strings"

// GatewayStatus is the processor's view of a charge, folded into four values.
type GatewayStatus string

const (
	GatewayStatusSuccess   GatewayStatus = "success"
	GatewayStatusAbandoned GatewayStatus = "abandoned"
	GatewayStatusFailed    GatewayStatus = "failed"
	GatewayStatusPending   GatewayStatus = "pending"
)

// NormalizeGatewayStatus maps raw processor statuses onto GatewayStatus.
// Anything still in flight (ongoing, processing, queued, send_otp) is
// pending. Reversed and declined charges count as failed.
func NormalizeGatewayStatus(raw string) GatewayStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "success", "successful", "succeeded":
		return GatewayStatusSuccess
	case "abandoned":
		return GatewayStatusAbandoned
	case "failed", "reversed", "declined":
		return GatewayStatusFailed
	default:
		return GatewayStatusPending
	}
}
