package enums

// ReconcileSource is what triggered a payment reconciliation: a gateway
// webhook, a reader-initiated verify, or the pending-payment sweep.
type ReconcileSource string

const (
	ReconcileSourceWebhook ReconcileSource = "webhook"
	ReconcileSourcePoll    ReconcileSource = "poll"
)

func (r ReconcileSource) IsValid() bool {
	return set[ReconcileSource]{ReconcileSourceWebhook, ReconcileSourcePoll}.has(r)
}
