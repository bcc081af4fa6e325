package enums

import "fmt"

// DeliveryStatus tracks the physical fulfilment of an order.
type DeliveryStatus string

const (
	DeliveryStatusProcessing DeliveryStatus = "processing"
	DeliveryStatusDelivering DeliveryStatus = "delivering"
	DeliveryStatusCompleted  DeliveryStatus = "completed"
)

var validDeliveryStatuses = []DeliveryStatus{
	DeliveryStatusProcessing,
	DeliveryStatusDelivering,
	DeliveryStatusCompleted,
}

// String implements fmt.Stringer.
func (d DeliveryStatus) String() string {
	return string(d)
}

// IsValid reports whether the value is a known DeliveryStatus.
func (d DeliveryStatus) IsValid() bool {
	for _, candidate := range validDeliveryStatuses {
		if candidate == d {
			return true
		}
	}
	return false
}

// Next returns the only status reachable from d, or false when d is terminal.
func (d DeliveryStatus) Next() (DeliveryStatus, bool) {
	switch d {
	case DeliveryStatusProcessing:
		return DeliveryStatusDelivering, true
	case DeliveryStatusDelivering:
		return DeliveryStatusCompleted, true
	default:
		return "", false
	}
}

// ParseDeliveryStatus converts raw input into a DeliveryStatus.
func ParseDeliveryStatus(value string) (DeliveryStatus, error) {
	for _, candidate := range validDeliveryStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid delivery status %q", value)
}
