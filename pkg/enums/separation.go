package enums

import "fmt"

// SeparationOrderStatus is the picking order state machine.
type SeparationOrderStatus string

const (
	SeparationOpen      SeparationOrderStatus = "OPEN"
	SeparationInPrep    SeparationOrderStatus = "IN_PREP"
	SeparationReady     SeparationOrderStatus = "READY"
	SeparationPickedUp  SeparationOrderStatus = "PICKED_UP"
	SeparationCancelled SeparationOrderStatus = "CANCELLED"
	SeparationExpired   SeparationOrderStatus = "EXPIRED"
)

// IsTerminal reports whether the order can no longer change.
func (s SeparationOrderStatus) IsTerminal() bool {
	switch s {
	case SeparationPickedUp, SeparationCancelled, SeparationExpired:
		return true
	default:
		return false
	}
}

// SeparationItemStatus tracks one line of a picking order.
type SeparationItemStatus string

const (
	SeparationItemPending     SeparationItemStatus = "PENDING"
	SeparationItemPicked      SeparationItemStatus = "PICKED"
	SeparationItemUnavailable SeparationItemStatus = "UNAVAILABLE"
	SeparationItemPartial     SeparationItemStatus = "PARTIAL"
	SeparationItemCancelled   SeparationItemStatus = "CANCELLED"
)

// IsFinal reports whether a line was already resolved.
func (s SeparationItemStatus) IsFinal() bool {
	switch s {
	case SeparationItemPicked, SeparationItemUnavailable, SeparationItemCancelled:
		return true
	default:
		return false
	}
}

// SeparationPriority orders picking work.
type SeparationPriority string

const (
	PriorityLow    SeparationPriority = "LOW"
	PriorityNormal SeparationPriority = "NORMAL"
	PriorityHigh   SeparationPriority = "HIGH"
	PriorityUrgent SeparationPriority = "URGENT"
)

var validPriorities = []SeparationPriority{PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent}

// IsValid reports whether the value matches a known priority.
func (p SeparationPriority) IsValid() bool {
	for _, candidate := range validPriorities {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseSeparationPriority converts raw input into SeparationPriority.
func ParseSeparationPriority(value string) (SeparationPriority, error) {
	for _, candidate := range validPriorities {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid priority %q", value)
}
