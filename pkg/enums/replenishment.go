package enums

// ReplenishmentStrategy describes how a reorder quantity is suggested.
type ReplenishmentStrategy string

const (
	// ReplenishMinMax suggests topping the balance up to the rule maximum.
	ReplenishMinMax ReplenishmentStrategy = "MIN_MAX"
	// ReplenishToMin suggests only the shortfall below the minimum.
	ReplenishToMin ReplenishmentStrategy = "TO_MIN"
)

// IsValid reports whether the value matches a known strategy.
func (s ReplenishmentStrategy) IsValid() bool {
	return s == ReplenishMinMax || s == ReplenishToMin
}
