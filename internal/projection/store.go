// Package projection holds the local read-only replicas of the remote rooms
// and bookings collections.
//
// Each collection is replaced as a whole through an atomic pointer swap, so
// readers see either the previous or the next table, never a mix. There is
// one writer per collection (its feed) and any number of readers.
package projection

import (
	"sync"
	"sync/atomic"
	"time"

	"hotelops/internal/domain"
)

// Table is an immutable, id-keyed collection in delivery order.
type Table[T any] struct {
	items     []T
	byID      map[string]int
	Version   uint64
	UpdatedAt time.Time
}

func newTable[T any](items []T, idOf func(T) string, version uint64, at time.Time) *Table[T] {
	t := &Table[T]{
		items:     make([]T, 0, len(items)),
		byID:      make(map[string]int, len(items)),
		Version:   version,
		UpdatedAt: at,
	}
	for _, it := range items {
		id := idOf(it)
		if i, dup := t.byID[id]; dup {
			t.items[i] = it
			continue
		}
		t.byID[id] = len(t.items)
		t.items = append(t.items, it)
	}
	return t
}

func (t *Table[T]) Len() int {
	if t == nil {
		return 0
	}
	return len(t.items)
}

// All returns a copy of the items.
func (t *Table[T]) All() []T {
	if t == nil {
		return nil
	}
	out := make([]T, len(t.items))
	copy(out, t.items)
	return out
}

func (t *Table[T]) Get(id string) (T, bool) {
	var zero T
	if t == nil {
		return zero, false
	}
	i, ok := t.byID[id]
	if !ok {
		return zero, false
	}
	return t.items[i], true
}

// View is a consistent read of both tables. The two tables may have been
// materialized at different times.
type View struct {
	Rooms    *Table[domain.Room]
	Bookings *Table[domain.Booking]
}

type Store struct {
	rooms    atomic.Pointer[Table[domain.Room]]
	bookings atomic.Pointer[Table[domain.Booking]]
	now      func() time.Time

	mu      sync.Mutex
	changed chan struct{}
	done    chan struct{}
	closed  bool
}

func New() *Store {
	s := &Store{
		now:     time.Now,
		changed: make(chan struct{}),
		done:    make(chan struct{}),
	}
	s.rooms.Store(newTable[domain.Room](nil, roomID, 0, time.Time{}))
	s.bookings.Store(newTable[domain.Booking](nil, bookingID, 0, time.Time{}))
	return s
}

func roomID(r domain.Room) string       { return r.ID }
func bookingID(b domain.Booking) string { return b.ID }

// ReplaceRooms swaps in a new rooms table. It is a no-op after Close.
func (s *Store) ReplaceRooms(rooms []domain.Room) {
	if s.isClosed() {
		return
	}
	prev := s.rooms.Load()
	s.rooms.Store(newTable(rooms, roomID, prev.Version+1, s.now()))
	s.notify()
}

// ReplaceBookings swaps in a new bookings table. It is a no-op after Close.
func (s *Store) ReplaceBookings(bookings []domain.Booking) {
	if s.isClosed() {
		return
	}
	prev := s.bookings.Load()
	s.bookings.Store(newTable(bookings, bookingID, prev.Version+1, s.now()))
	s.notify()
}

func (s *Store) Read() View {
	return View{Rooms: s.rooms.Load(), Bookings: s.bookings.Load()}
}

// Changed returns a channel closed by the next replacement of either table.
// Take the channel before calling Read to avoid missing an update.
func (s *Store) Changed() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}

// Done is closed by Close.
func (s *Store) Done() <-chan struct{} { return s.done }

// Close releases everyone waiting on Changed. Later replacements are ignored.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Store) notify() {
	s.mu.Lock()
	close(s.changed)
	s.changed = make(chan struct{})
	s.mu.Unlock()
}
