package enums

import "fmt"

// OriginKind tags who asked for a movement or a reservation.
type OriginKind string

const (
	OriginManual                  OriginKind = "manual"
	OriginPickingOrder            OriginKind = "picking_order"
	OriginSalesOrder              OriginKind = "sales_order"
	OriginPurchaseOrder           OriginKind = "purchase_order"
	OriginEmployeeMaterialRequest OriginKind = "employee_material_request"
)

var validOriginKinds = []OriginKind{
	OriginManual,
	OriginPickingOrder,
	OriginSalesOrder,
	OriginPurchaseOrder,
	OriginEmployeeMaterialRequest,
}

// IsValid reports whether the value matches a known origin kind.
func (k OriginKind) IsValid() bool {
	for _, candidate := range validOriginKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// RequiresID reports whether the origin kind must reference a document.
func (k OriginKind) RequiresID() bool {
	return k != OriginManual
}

// ParseOriginKind converts raw input into OriginKind.
func ParseOriginKind(value string) (OriginKind, error) {
	for _, candidate := range validOriginKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid origin kind %q", value)
}
