package projection_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hotelops/internal/domain"
	"hotelops/internal/projection"
)

func rooms(n int, status domain.RoomStatus) []domain.Room {
	out := make([]domain.Room, n)
	for i := range out {
		out[i] = domain.Room{ID: string(rune('a' + i)), Status: status}
	}
	return out
}

func TestStore_EmptyOnStart(t *testing.T) {
	s := projection.New()
	v := s.Read()
	assert.Equal(t, 0, v.Rooms.Len())
	assert.Equal(t, 0, v.Bookings.Len())
	assert.Equal(t, uint64(0), v.Rooms.Version)
}

func TestStore_ReplaceIsWholeTable(t *testing.T) {
	s := projection.New()
	s.ReplaceRooms(rooms(3, domain.RoomAvailable))
	old := s.Read()

	s.ReplaceRooms(rooms(1, domain.RoomOccupied))
	cur := s.Read()

	assert.Equal(t, 3, old.Rooms.Len(), "earlier view is immutable")
	require.Equal(t, 1, cur.Rooms.Len())
	r, ok := cur.Rooms.Get("a")
	require.True(t, ok)
	assert.Equal(t, domain.RoomOccupied, r.Status)
	_, ok = cur.Rooms.Get("b")
	assert.False(t, ok)
	assert.Equal(t, uint64(2), cur.Rooms.Version)
}

func TestStore_DuplicateIDsCollapse(t *testing.T) {
	s := projection.New()
	s.ReplaceRooms([]domain.Room{
		{ID: "2", Status: domain.RoomAvailable},
		{ID: "1"},
		{ID: "2", Status: domain.RoomMaintenance},
	})
	v := s.Read()
	require.Equal(t, 2, v.Rooms.Len())
	all := v.Rooms.All()
	assert.Equal(t, "2", all[0].ID)
	assert.Equal(t, domain.RoomMaintenance, all[0].Status)
}

func TestStore_AllReturnsCopy(t *testing.T) {
	s := projection.New()
	s.ReplaceRooms(rooms(2, domain.RoomAvailable))
	all := s.Read().Rooms.All()
	all[0].Status = domain.RoomOccupied
	r, _ := s.Read().Rooms.Get("a")
	assert.Equal(t, domain.RoomAvailable, r.Status)
}

func TestStore_ChangedFiresOnReplace(t *testing.T) {
	s := projection.New()
	ch := s.Changed()
	s.ReplaceBookings([]domain.Booking{{ID: "x"}})
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("changed channel not closed")
	}
	assert.Equal(t, 1, s.Read().Bookings.Len())
}

func TestStore_CloseReleasesAndFreezes(t *testing.T) {
	s := projection.New()
	s.Close()
	s.Close()
	select {
	case <-s.Done():
	default:
		t.Fatal("done not closed")
	}
	s.ReplaceRooms(rooms(2, domain.RoomAvailable))
	assert.Equal(t, 0, s.Read().Rooms.Len())
}

func TestStore_ConcurrentReadersSeeWholeTables(t *testing.T) {
	s := projection.New()
	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			if i%2 == 0 {
				s.ReplaceRooms(rooms(4, domain.RoomAvailable))
			} else {
				s.ReplaceRooms(rooms(4, domain.RoomOccupied))
			}
		}
		close(stop)
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				all := s.Read().Rooms.All()
				if len(all) == 0 {
					continue
				}
				for _, room := range all {
					if room.Status != all[0].Status {
						t.Errorf("torn read: %v", all)
						return
					}
				}
			}
		}()
	}
	wg.Wait()
}
