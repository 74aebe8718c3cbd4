package domain

import (
	"math"
	"time"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingCompleted BookingStatus = "completed"
)

type Customer struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email,omitempty" validate:"omitempty,email"`
	Phone string `json:"phone,omitempty"`
}

// RoomRef is denormalized onto the booking; it is not a foreign key.
type RoomRef struct {
	Type   string `json:"type" validate:"required"`
	Number string `json:"number" validate:"required"`
}

type Booking struct {
	ID              string
	Customer        Customer
	Room            RoomRef
	CheckIn         time.Time
	CheckOut        time.Time
	Status          BookingStatus
	TotalPrice      float64
	PaymentMethod   string
	SpecialRequests string
	CreatedAt       time.Time
}

type NewBooking struct {
	Customer        Customer      `json:"customer"`
	Room            RoomRef       `json:"room"`
	CheckIn         time.Time     `json:"checkIn" validate:"required"`
	CheckOut        time.Time     `json:"checkOut" validate:"required,gtefield=CheckIn"`
	Status          BookingStatus `json:"status" validate:"omitempty,oneof=pending confirmed"`
	TotalPrice      float64       `json:"totalPrice" validate:"gte=0"`
	PaymentMethod   string        `json:"paymentMethod,omitempty"`
	SpecialRequests string        `json:"specialRequests,omitempty"`
}

// Nights counts started 24h units between check-in and check-out.
// A same-instant stay is zero nights; so is an inverted range.
func (b Booking) Nights() int {
	d := b.CheckOut.Sub(b.CheckIn)
	if d <= 0 || b.CheckIn.IsZero() || b.CheckOut.IsZero() {
		return 0
	}
	return int(math.Ceil(d.Hours() / 24))
}

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingPending, BookingConfirmed, BookingCancelled, BookingCompleted:
		return true
	}
	return false
}

func (s BookingStatus) Terminal() bool {
	return s == BookingCancelled || s == BookingCompleted
}

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingPending:   {BookingConfirmed, BookingCancelled},
	BookingConfirmed: {BookingCancelled, BookingCompleted},
}

// CanTransitionTo reports whether a booking may move from s to next.
// Staying in the same status is always allowed.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	if !next.Valid() {
		return false
	}
	if s == next {
		return true
	}
	for _, to := range bookingTransitions[s] {
		if to == next {
			return true
		}
	}
	return false
}
