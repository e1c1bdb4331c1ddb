package enums

// ReservationStatus maps to the reservation_status enum in Postgres. A reservation is
// released at most once.
type ReservationStatus string

const (
	ReservationStatusActive   ReservationStatus = "active"
	ReservationStatusReleased ReservationStatus = "released"
)

var reservationStatuses = set[ReservationStatus]{ReservationStatusActive, ReservationStatusReleased}

func (s ReservationStatus) IsValid() bool { return reservationStatuses.has(s) }
