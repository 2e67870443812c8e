package auction

// Queue names are derived from the item id by convention shared with the
// surrounding services. Every component resolves names through these two
// functions so the scheduler, intake loop and publisher can never disagree
// on the mapping.

const (
	intakeQueueSuffix     = "bid"
	forwardingQueueSuffix = "Queue"
)

// IntakeQueueName returns the queue raw bid submissions land on.
func IntakeQueueName(itemID string) string {
	return itemID + intakeQueueSuffix
}

// ForwardingQueueName returns the queue validated bids are forwarded to,
// consumed by the auction authority.
func ForwardingQueueName(itemID string) string {
	return itemID + forwardingQueueSuffix
}
