package domain

type RoomStatus string

const (
	RoomAvailable   RoomStatus = "available"
	RoomOccupied    RoomStatus = "occupied"
	RoomMaintenance RoomStatus = "maintenance"
)

type Room struct {
	ID        string
	Number    string
	Type      string
	Price     float64
	Capacity  int
	Status    RoomStatus
	Amenities []string
	ImageURL  string
}

// NewRoom is the validated input of an add-room request.
type NewRoom struct {
	Number    string     `json:"number" validate:"required"`
	Type      string     `json:"type" validate:"required"`
	Price     float64    `json:"price" validate:"gte=0"`
	Capacity  int        `json:"capacity" validate:"min=1"`
	Status    RoomStatus `json:"status" validate:"omitempty,oneof=available occupied maintenance"`
	Amenities []string   `json:"amenities,omitempty" validate:"omitempty,dive,required"`
	ImageURL  string     `json:"imageUrl,omitempty" validate:"omitempty,url"`
}

func (s RoomStatus) Valid() bool {
	switch s {
	case RoomAvailable, RoomOccupied, RoomMaintenance:
		return true
	}
	return false
}

var roomTransitions = map[RoomStatus][]RoomStatus{
	RoomAvailable:   {RoomOccupied, RoomMaintenance},
	RoomOccupied:    {RoomAvailable, RoomMaintenance},
	RoomMaintenance: {RoomAvailable},
}

// CanTransitionTo reports whether a room may move from s to next.
// Staying in the same status is always allowed.
func (s RoomStatus) CanTransitionTo(next RoomStatus) bool {
	if !next.Valid() {
		return false
	}
	if s == next {
		return true
	}
	for _, to := range roomTransitions[s] {
		if to == next {
			return true
		}
	}
	return false
}
