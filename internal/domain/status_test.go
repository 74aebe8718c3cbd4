package domain_test

import (
	"testing"
	"time"

	"hotelops/internal/domain"
)

func TestBookingStatus_Transitions(t *testing.T) {
	cases := []struct {
		from, to domain.BookingStatus
		ok       bool
	}{
		{domain.BookingPending, domain.BookingConfirmed, true},
		{domain.BookingPending, domain.BookingCancelled, true},
		{domain.BookingPending, domain.BookingCompleted, false},
		{domain.BookingConfirmed, domain.BookingCompleted, true},
		{domain.BookingConfirmed, domain.BookingCancelled, true},
		{domain.BookingConfirmed, domain.BookingPending, false},
		{domain.BookingCancelled, domain.BookingConfirmed, false},
		{domain.BookingCompleted, domain.BookingCancelled, false},
		{domain.BookingCompleted, domain.BookingCompleted, true},
		{domain.BookingPending, "archived", false},
	}
	for _, c := range cases {
		if got := c.from.CanTransitionTo(c.to); got != c.ok {
			t.Fatalf("%s -> %s: got %v want %v", c.from, c.to, got, c.ok)
		}
	}
}

func TestRoomStatus_Transitions(t *testing.T) {
	if !domain.RoomAvailable.CanTransitionTo(domain.RoomMaintenance) {
		t.Fatalf("available -> maintenance must be allowed")
	}
	if !domain.RoomOccupied.CanTransitionTo(domain.RoomMaintenance) {
		t.Fatalf("occupied -> maintenance must be allowed")
	}
	if domain.RoomMaintenance.CanTransitionTo(domain.RoomOccupied) {
		t.Fatalf("maintenance -> occupied must go through available")
	}
	if domain.RoomAvailable.CanTransitionTo("closed") {
		t.Fatalf("unknown status accepted")
	}
}

func TestBooking_Nights(t *testing.T) {
	in := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)
	cases := []struct {
		out  time.Time
		want int
	}{
		{in, 0},
		{in.Add(-time.Hour), 0},
		{in.Add(24 * time.Hour), 1},
		{in.Add(44 * time.Hour), 2},
		{in.Add(72 * time.Hour), 3},
	}
	for _, c := range cases {
		b := domain.Booking{CheckIn: in, CheckOut: c.out}
		if got := b.Nights(); got != c.want {
			t.Fatalf("nights(%s): got %d want %d", c.out.Sub(in), got, c.want)
		}
	}
	if (domain.Booking{CheckOut: in}).Nights() != 0 {
		t.Fatalf("missing check-in must yield zero nights")
	}
}

func TestFilter_Match(t *testing.T) {
	d := domain.Document{ID: "a", Fields: map[string]any{"status": "pending", "amenities": []any{"wifi"}}}
	if !(domain.Filter{}).Match(d) {
		t.Fatalf("empty filter must match")
	}
	if !(domain.Filter{IDs: []string{"b", "a"}}).Match(d) {
		t.Fatalf("id filter must match")
	}
	if (domain.Filter{IDs: []string{"b"}}).Match(d) {
		t.Fatalf("id filter must not match")
	}
	if !(domain.Filter{Equals: map[string]any{"status": "pending"}}).Match(d) {
		t.Fatalf("equals filter must match")
	}
	if (domain.Filter{Equals: map[string]any{"amenities": "wifi"}}).Match(d) {
		t.Fatalf("slice field must not equal string")
	}
}
