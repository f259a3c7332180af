package enums

// SubscriptionStatus is the lifecycle state of a reader's subscription to
// one book.
//
//	pending -> active -> expired
//	pending -> failed
type SubscriptionStatus string

const (
	SubscriptionStatusPending SubscriptionStatus = "pending"
	SubscriptionStatusActive  SubscriptionStatus = "active"
	SubscriptionStatusFailed  SubscriptionStatus = "failed"
	SubscriptionStatusExpired SubscriptionStatus = "expired"
)

var subscriptionStatuses = set[SubscriptionStatus]{
	SubscriptionStatusPending,
	SubscriptionStatusActive,
	SubscriptionStatusFailed,
	SubscriptionStatusExpired,
}

func (s SubscriptionStatus) IsValid() bool { return subscriptionStatuses.has(s) }

// Predecessor returns the only status a transition into s may start from.
// Pending has none; it is only ever created.
func (s SubscriptionStatus) Predecessor() (SubscriptionStatus, bool) {
	switch s {
	case SubscriptionStatusActive, SubscriptionStatusFailed:
		return SubscriptionStatusPending, true
	case SubscriptionStatusExpired:
		return SubscriptionStatusActive, true
	default:
		return "", false
	}
}

func CanTransition(from, to SubscriptionStatus) bool {
	pred, ok := to.Predecessor()
	return ok && pred == from
}
