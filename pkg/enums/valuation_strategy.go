package enums

// ValuationStrategy selects how an item's stock is costed.
type ValuationStrategy string

const (
	ValuationWeightedAverage ValuationStrategy = "WEIGHTED_AVERAGE"
	ValuationFIFO            ValuationStrategy = "FIFO"
)

// IsValid reports whether the value matches a known strategy.
func (v ValuationStrategy) IsValid() bool {
	return v == ValuationWeightedAverage || v == ValuationFIFO
}
