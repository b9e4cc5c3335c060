package enums

// ReservationStatus tracks a soft hold lifecycle.
type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "ACTIVE"
	ReservationConsumed  ReservationStatus = "CONSUMED"
	ReservationCancelled ReservationStatus = "CANCELLED"
	ReservationExpired   ReservationStatus = "EXPIRED"
)

// IsValid reports whether the value matches a known reservation status.
func (s ReservationStatus) IsValid() bool {
	switch s {
	case ReservationActive, ReservationConsumed, ReservationCancelled, ReservationExpired:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is possible.
func (s ReservationStatus) IsTerminal() bool {
	return s != ReservationActive
}
