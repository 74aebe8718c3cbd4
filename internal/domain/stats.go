package domain

// Stats is derived from the two projections and never stored.
type Stats struct {
	TotalRooms       int     `json:"totalRooms"`
	OccupiedRooms    int     `json:"occupiedRooms"`
	AvailableRooms   int     `json:"availableRooms"`
	MaintenanceRooms int     `json:"maintenanceRooms"`
	OccupancyPercent int     `json:"occupancyPercent"`
	Revenue          float64 `json:"revenue"`
	UpcomingCheckIns int     `json:"upcomingCheckIns"`
	PendingBookings  int     `json:"pendingBookings"`
}
