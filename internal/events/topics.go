package events

const (
	// TopicPurchaseCreated follows a Chip In purchase being opened for an order.
	TopicPurchaseCreated = "purchase.created"
	// TopicOrderStatusUpdated follows a payment-driven status change.
	TopicOrderStatusUpdated = "order.status_updated"
)

// Known reports whether topic is one the bridge emits.
func Known(topic string) bool {
	switch topic {
	case TopicPurchaseCreated, TopicOrderStatusUpdated:
		return true
	}
	return false
}
