package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"hotelops/internal/adapters/observability"
	"hotelops/internal/aggregate"
	"hotelops/internal/domain"
	"hotelops/internal/feed"
	"hotelops/internal/projection"
)

var ErrAlreadyStarted = errors.New("session already started")

type SessionConfig struct {
	Store            domain.DocumentStore
	Clock            func() time.Time
	RevenuePolicy    aggregate.RevenuePolicy
	UpcomingWindow   time.Duration
	ReconcileTimeout time.Duration
	WriteTimeout     time.Duration
	MutationRPS      int
	// OnError receives *domain.FeedSubscriptionError values raised by live feeds.
	OnError func(error)
}

// Overview is everything the dashboard renders, read at one instant. Rooms
// and bookings may come from snapshots taken at different times.
type Overview struct {
	Stats           domain.Stats     `json:"stats"`
	ComputedAt      time.Time        `json:"computedAt"`
	Rooms           []domain.Room    `json:"rooms"`
	Bookings        []domain.Booking `json:"bookings"`
	RoomsVersion    uint64           `json:"roomsVersion"`
	BookingsVersion uint64           `json:"bookingsVersion"`
}

// Session owns one dashboard's live state: two feeds, the projection they
// fill, the derived stats, and the gateway for writes.
type Session struct {
	cfg      SessionConfig
	proj     *projection.Store
	engine   aggregate.Engine
	gateway  *Gateway
	hub      *StatsHub
	rooms    *feed.ChangeFeed[domain.Room]
	bookings *feed.ChangeFeed[domain.Booking]

	mu      sync.Mutex
	started bool
	stopped bool
	unsubs  []feed.Unsubscribe

	roomsReady, bookingsReady chan struct{}
	roomsOnce, bookingsOnce   sync.Once

	recomputeMu sync.Mutex
}

func NewSession(cfg SessionConfig) *Session {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	proj := projection.New()
	s := &Session{
		cfg:  cfg,
		proj: proj,
		engine: aggregate.Engine{
			Revenue: cfg.RevenuePolicy,
			Window:  cfg.UpcomingWindow,
			Now:     cfg.Clock,
		},
		gateway: NewGateway(GatewayConfig{
			Store:            cfg.Store,
			Echoes:           proj,
			ReconcileTimeout: cfg.ReconcileTimeout,
			WriteTimeout:     cfg.WriteTimeout,
			MutationRPS:      cfg.MutationRPS,
			Clock:            cfg.Clock,
		}),
		hub:           NewStatsHub(),
		roomsReady:    make(chan struct{}),
		bookingsReady: make(chan struct{}),
	}
	s.rooms = feed.New(cfg.Store, domain.CollectionRooms, DecodeRoom).HandleErrors(s.reportError)
	s.bookings = feed.New(cfg.Store, domain.CollectionBookings, DecodeBooking).HandleErrors(s.reportError)
	return s
}

// Start subscribes both feeds and returns once each has delivered its first
// snapshot, so the bootstrap stats come from the feeds themselves. On any
// failure everything acquired so far is released.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	unsub, err := s.rooms.Subscribe(ctx, s.onRooms)
	if err != nil {
		s.Stop()
		return err
	}
	s.track(unsub)

	unsub, err = s.bookings.Subscribe(ctx, s.onBookings)
	if err != nil {
		s.Stop()
		return err
	}
	s.track(unsub)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return waitReady(gctx, s.roomsReady, domain.CollectionRooms) })
	g.Go(func() error { return waitReady(gctx, s.bookingsReady, domain.CollectionBookings) })
	if err := g.Wait(); err != nil {
		s.Stop()
		return err
	}

	st, _ := s.Stats()
	log.Info().
		Int("rooms", st.Stats.TotalRooms).
		Int("occupancy", st.Stats.OccupancyPercent).
		Int("pending", st.Stats.PendingBookings).
		Msg("dashboard session started")
	return nil
}

func waitReady(ctx context.Context, ready <-chan struct{}, collection string) error {
	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for first %s snapshot: %w", collection, ctx.Err())
	}
}

func (s *Session) track(u feed.Unsubscribe) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		// Stop ran concurrently; release right away
		go u()
		return
	}
	s.unsubs = append(s.unsubs, u)
}

// Stop releases feeds in reverse order, then the projection and the hub.
// Safe to call more than once and from any goroutine except a feed callback.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()

	for i := len(unsubs) - 1; i >= 0; i-- {
		unsubs[i]()
	}
	s.proj.Close()
	s.hub.Close()
	log.Info().Msg("dashboard session stopped")
}

func (s *Session) onRooms(snap feed.Snapshot[domain.Room]) {
	s.proj.ReplaceRooms(snap.Items)
	s.roomsOnce.Do(func() { close(s.roomsReady) })
	s.recompute()
}

func (s *Session) onBookings(snap feed.Snapshot[domain.Booking]) {
	s.proj.ReplaceBookings(snap.Items)
	s.bookingsOnce.Do(func() { close(s.bookingsReady) })
	s.recompute()
}

func (s *Session) bootstrapped() bool {
	select {
	case <-s.roomsReady:
	default:
		return false
	}
	select {
	case <-s.bookingsReady:
	default:
		return false
	}
	return true
}

// recompute runs inline on the delivering feed's goroutine. The lock only
// keeps two feeds from publishing out of order.
func (s *Session) recompute() {
	if !s.bootstrapped() {
		return
	}
	s.recomputeMu.Lock()
	defer s.recomputeMu.Unlock()

	u := s.statsOf(s.proj.Read())
	observability.ObserveStats(u.Stats)
	s.hub.Publish(u)
}

func (s *Session) statsOf(v projection.View) StatsUpdate {
	now := s.cfg.Clock()
	e := s.engine
	e.Now = func() time.Time { return now }
	return StatsUpdate{
		Stats:           e.Compute(v.Rooms.All(), v.Bookings.All()),
		ComputedAt:      now,
		RoomsVersion:    v.Rooms.Version,
		BookingsVersion: v.Bookings.Version,
	}
}

func (s *Session) reportError(err error) {
	if s.cfg.OnError != nil {
		s.cfg.OnError(err)
	}
}

// Stats evaluates the current projection against the clock at call time, so
// time-relative counters age without a feed delivery. ok is false until both
// feeds delivered.
func (s *Session) Stats() (StatsUpdate, bool) {
	if !s.bootstrapped() {
		return StatsUpdate{}, false
	}
	return s.statsOf(s.proj.Read()), true
}

// Overview returns stats and both tables from one view. ok is false until
// both feeds delivered.
func (s *Session) Overview() (Overview, bool) {
	if !s.bootstrapped() {
		return Overview{}, false
	}
	v := s.proj.Read()
	st := s.statsOf(v)
	return Overview{
		Stats:           st.Stats,
		ComputedAt:      st.ComputedAt,
		Rooms:           v.Rooms.All(),
		Bookings:        v.Bookings.All(),
		RoomsVersion:    v.Rooms.Version,
		BookingsVersion: v.Bookings.Version,
	}, true
}

func (s *Session) Rooms() []domain.Room {
	return s.proj.Read().Rooms.All()
}

func (s *Session) Bookings() []domain.Booking {
	return s.proj.Read().Bookings.All()
}

func (s *Session) Gateway() *Gateway { return s.gateway }

func (s *Session) Hub() *StatsHub { return s.hub }
