// Package aggregate derives dashboard Stats from the rooms and bookings
// projections. Everything here is pure: the same inputs and the same clock
// reading always produce the same Stats.
package aggregate

import (
	"math"
	"time"

	"hotelops/internal/domain"
)

// UpcomingWindow bounds upcoming check-ins. Both ends are exclusive.
const UpcomingWindow = 7 * 24 * time.Hour

type RevenuePolicy int

const (
	// RevenueAllBookings sums every booking regardless of status.
	RevenueAllBookings RevenuePolicy = iota
	// RevenueRealized sums confirmed and completed bookings only.
	RevenueRealized
)

func ParseRevenuePolicy(s string) (RevenuePolicy, bool) {
	switch s {
	case "", "all":
		return RevenueAllBookings, true
	case "realized":
		return RevenueRealized, true
	}
	return RevenueAllBookings, false
}

func (p RevenuePolicy) counts(s domain.BookingStatus) bool {
	if p == RevenueRealized {
		return s == domain.BookingConfirmed || s == domain.BookingCompleted
	}
	return true
}

type Engine struct {
	Revenue RevenuePolicy
	Window  time.Duration
	Now     func() time.Time
}

// Compute evaluates the engine's policy at the engine's clock.
func (e Engine) Compute(rooms []domain.Room, bookings []domain.Booking) domain.Stats {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	window := e.Window
	if window <= 0 {
		window = UpcomingWindow
	}
	return compute(rooms, bookings, now(), window, e.Revenue)
}

// Compute uses the default policy: revenue over all bookings, a 7 day window.
func Compute(rooms []domain.Room, bookings []domain.Booking, now time.Time) domain.Stats {
	return compute(rooms, bookings, now, UpcomingWindow, RevenueAllBookings)
}

func compute(rooms []domain.Room, bookings []domain.Booking, now time.Time, window time.Duration, policy RevenuePolicy) domain.Stats {
	var s domain.Stats

	s.TotalRooms = len(rooms)
	for _, r := range rooms {
		switch r.Status {
		case domain.RoomOccupied:
			s.OccupiedRooms++
		case domain.RoomAvailable:
			s.AvailableRooms++
		case domain.RoomMaintenance:
			s.MaintenanceRooms++
		}
	}
	s.OccupancyPercent = OccupancyPercent(s.OccupiedRooms, s.TotalRooms)

	horizon := now.Add(window)
	for _, b := range bookings {
		if policy.counts(b.Status) && validMoney(b.TotalPrice) {
			s.Revenue += b.TotalPrice
		}
		switch b.Status {
		case domain.BookingPending:
			s.PendingBookings++
		case domain.BookingConfirmed:
			if b.CheckIn.After(now) && b.CheckIn.Before(horizon) {
				s.UpcomingCheckIns++
			}
		}
	}
	return s
}

// OccupancyPercent rounds occupied/total to a whole percent; zero rooms is 0%.
func OccupancyPercent(occupied, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(occupied) / float64(total) * 100))
}

func validMoney(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
