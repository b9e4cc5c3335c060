package enums

import "fmt"

// MovementType enumerates every ledger transaction kind.
type MovementType string

const (
	MovementEntry          MovementType = "ENTRY"
	MovementExit           MovementType = "EXIT"
	MovementAdjustPos      MovementType = "ADJUST_POS"
	MovementAdjustNeg      MovementType = "ADJUST_NEG"
	MovementTransfer       MovementType = "TRANSFER"
	MovementReserve        MovementType = "RESERVE"
	MovementReleaseReserve MovementType = "RELEASE_RESERVE"
	MovementBOMConsume     MovementType = "BOM_CONSUME"
	MovementDiscard        MovementType = "DISCARD"
	MovementLoss           MovementType = "LOSS"
	MovementExpiry         MovementType = "EXPIRY"
	MovementCustomerReturn MovementType = "CUSTOMER_RETURN"
	MovementSupplierReturn MovementType = "SUPPLIER_RETURN"
)

var validMovementTypes = []MovementType{
	MovementEntry,
	MovementExit,
	MovementAdjustPos,
	MovementAdjustNeg,
	MovementTransfer,
	MovementReserve,
	MovementReleaseReserve,
	MovementBOMConsume,
	MovementDiscard,
	MovementLoss,
	MovementExpiry,
	MovementCustomerReturn,
	MovementSupplierReturn,
}

// IsValid reports whether the value matches a known movement type.
func (m MovementType) IsValid() bool {
	for _, candidate := range validMovementTypes {
		if candidate == m {
			return true
		}
	}
	return false
}

// IsDiscardClass reports whether the type goes through the approval gate.
func (m MovementType) IsDiscardClass() bool {
	switch m {
	case MovementDiscard, MovementLoss, MovementExpiry:
		return true
	default:
		return false
	}
}

// IsInbound reports whether the type increases the destination quantity.
func (m MovementType) IsInbound() bool {
	switch m {
	case MovementEntry, MovementAdjustPos, MovementCustomerReturn:
		return true
	default:
		return false
	}
}

// IsOutbound reports whether the type decreases the origin quantity.
func (m MovementType) IsOutbound() bool {
	switch m {
	case MovementExit, MovementAdjustNeg, MovementBOMConsume, MovementSupplierReturn,
		MovementDiscard, MovementLoss, MovementExpiry:
		return true
	default:
		return false
	}
}

// ParseMovementType converts raw input into MovementType.
func ParseMovementType(value string) (MovementType, error) {
	for _, candidate := range validMovementTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid movement type %q", value)
}
