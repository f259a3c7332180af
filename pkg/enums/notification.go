package enums

// NotificationType is stored in notifications.type.
type NotificationType string

const (
	NotificationTypeRenewalReminder     NotificationType = "renewal_reminder"
	NotificationTypeSubscriptionExpired NotificationType = "subscription_expired"
	NotificationTypePaymentConfirmed    NotificationType = "payment_confirmed"
)

var notificationTypes = set[NotificationType]{
	NotificationTypeRenewalReminder,
	NotificationTypeSubscriptionExpired,
	NotificationTypePaymentConfirmed,
}

func (n NotificationType) IsValid() bool { return notificationTypes.has(n) }
