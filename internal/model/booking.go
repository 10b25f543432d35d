package model

import "time"

// Booking statuses. Any status may currently be set from any other; the
// transition check lives in one place (service.BookingService) so a
// transition graph can be introduced later without touching callers.
const (
	BookingStatusPending   = "pending"
	BookingStatusCompleted = "completed"
	BookingStatusNoShow    = "no-show"
	BookingStatusCancelled = "cancelled"
)

// ValidBookingStatus reports whether s is one of the four known statuses.
func ValidBookingStatus(s string) bool {
	switch s {
	case BookingStatusPending, BookingStatusCompleted, BookingStatusNoShow, BookingStatusCancelled:
		return true
	}
	return false
}

// Booking is a durable record of a created bus booking. Bookings are never
// deleted; only their status changes.
type Booking struct {
	ID             int64     `db:"id" json:"-"`
	BookingID      string    `db:"booking_id" json:"bookingId"`
	UserID         string    `db:"user_id" json:"userId"`
	PNR            string    `db:"pnr" json:"pnr"`
	BusID          string    `db:"bus_id" json:"busId"`
	BusName        string    `db:"bus_name" json:"busName"`
	From           string    `db:"from_city" json:"from"`
	To             string    `db:"to_city" json:"to"`
	Date           string    `db:"journey_date" json:"date"`
	Seats          int       `db:"seats" json:"seats"`
	TotalPrice     int       `db:"total_price" json:"totalPrice"`
	Status         string    `db:"status" json:"status"`
	PassengerName  string    `db:"passenger_name" json:"passengerName"`
	PassengerEmail string    `db:"passenger_email" json:"passengerEmail"`
	PassengerPhone string    `db:"passenger_phone" json:"passengerPhone"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time `db:"updated_at" json:"updatedAt"`
}
