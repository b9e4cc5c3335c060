package errors

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StockShortage is the structured detail carried by INSUFFICIENT_STOCK errors.
type StockShortage struct {
	TenantID   string          `json:"tenant_id"`
	ItemID     uuid.UUID       `json:"item_id"`
	LocationID uuid.UUID       `json:"location_id"`
	Requested  decimal.Decimal `json:"requested"`
	Available  decimal.Decimal `json:"available"`
}

// InsufficientStock builds the typed error for a shortage.
func InsufficientStock(shortage StockShortage) *Error {
	msg := fmt.Sprintf("requested %s but only %s available for item %s at location %s",
		shortage.Requested.String(), shortage.Available.String(), shortage.ItemID, shortage.LocationID)
	return New(CodeInsufficientStock, msg).WithDetails(shortage)
}

// ShortageOf extracts the shortage details from err, if any.
func ShortageOf(err error) (StockShortage, bool) {
	typed := As(err)
	if typed == nil || typed.Code() != CodeInsufficientStock {
		return StockShortage{}, false
	}
	shortage, ok := typed.Details().(StockShortage)
	return shortage, ok
}
