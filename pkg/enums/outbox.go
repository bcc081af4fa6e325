package enums

import "fmt"

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder      OutboxAggregateType = "order"
	AggregateWithdrawal OutboxAggregateType = "withdrawal"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateWithdrawal,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// OutboxEventType names a domain event written through the outbox.
type OutboxEventType string

const (
	EventOrderCreated        OutboxEventType = "order.created"
	EventOrderPaid           OutboxEventType = "order.paid"
	EventOrderFailed         OutboxEventType = "order.failed"
	EventOrderDelivering     OutboxEventType = "order.delivering"
	EventOrderCompleted      OutboxEventType = "order.completed"
	EventWithdrawalRequested OutboxEventType = "withdrawal.requested"
	EventWithdrawalApproved  OutboxEventType = "withdrawal.approved"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderPaid,
	EventOrderFailed,
	EventOrderDelivering,
	EventOrderCompleted,
	EventWithdrawalRequested,
	EventWithdrawalApproved,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
