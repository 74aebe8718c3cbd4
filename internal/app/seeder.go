package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"hotelops/internal/domain"
)

// Fixture is the seed file layout.
type Fixture struct {
	Rooms    []domain.NewRoom    `json:"rooms"`
	Bookings []domain.NewBooking `json:"bookings"`
}

func LoadFixture(path string) (Fixture, error) {
	var fx Fixture
	b, err := os.ReadFile(path)
	if err != nil {
		return fx, err
	}
	if err := json.Unmarshal(b, &fx); err != nil {
		return fx, fmt.Errorf("decode fixture %s: %w", path, err)
	}
	return fx, nil
}

type Report struct {
	Rooms    int
	Bookings int
	Failed   int
	Errors   []error
}

// Seeder writes fixtures straight to the store without waiting for echoes;
// there is no session to observe them.
type Seeder struct {
	store   domain.DocumentStore
	workers int
	clock   func() time.Time
}

func NewSeeder(store domain.DocumentStore, workers int) *Seeder {
	if workers <= 0 {
		workers = 4
	}
	return &Seeder{store: store, workers: workers, clock: time.Now}
}

func (s *Seeder) Seed(ctx context.Context, fx Fixture) (Report, error) {
	var (
		rep Report
		mu  sync.Mutex
		wg  sync.WaitGroup
	)
	sem := semaphore.NewWeighted(int64(s.workers))

	record := func(kind, label string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			rep.Failed++
			rep.Errors = append(rep.Errors, fmt.Errorf("%s %s: %w", kind, label, err))
			log.Warn().Str("kind", kind).Str("ref", label).Err(err).Msg("seed failed")
			return
		}
		if kind == "room" {
			rep.Rooms++
		} else {
			rep.Bookings++
		}
	}

	run := func(kind, label string, fn func() error) error {
		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, 1); err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			record(kind, label, fn())
		}()
		return nil
	}

	for _, r := range fx.Rooms {
		r := normalizeRoom(r)
		err := run("room", r.Number, func() error {
			if err := validateStruct("room", r); err != nil {
				return err
			}
			_, err := s.store.AddDocument(ctx, domain.CollectionRooms, encodeRoom(r))
			return err
		})
		if err != nil {
			wg.Wait()
			return rep, err
		}
	}
	for _, b := range fx.Bookings {
		b := normalizeBooking(b)
		err := run("booking", b.Customer.Name+"/"+b.Room.Number, func() error {
			if err := validateStruct("booking", b); err != nil {
				return err
			}
			_, err := s.store.AddDocument(ctx, domain.CollectionBookings, encodeBooking(b, s.clock()))
			return err
		})
		if err != nil {
			wg.Wait()
			return rep, err
		}
	}

	wg.Wait()
	log.Info().Int("rooms", rep.Rooms).Int("bookings", rep.Bookings).Int("failed", rep.Failed).Msg("seed completed")
	return rep, nil
}
