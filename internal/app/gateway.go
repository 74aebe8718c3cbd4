package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"hotelops/internal/adapters/observability"
	"hotelops/internal/domain"
	"hotelops/internal/projection"
)

const (
	OpAddRoom             = "add_room"
	OpUpdateRoomStatus    = "update_room_status"
	OpAddBooking          = "add_booking"
	OpUpdateBookingStatus = "update_booking_status"
)

// EchoSource is where the gateway looks for its own writes coming back.
type EchoSource interface {
	Read() projection.View
	Changed() <-chan struct{}
	Done() <-chan struct{}
}

type GatewayConfig struct {
	Store            domain.DocumentStore
	Echoes           EchoSource
	ReconcileTimeout time.Duration
	WriteTimeout     time.Duration
	MutationRPS      int
	Clock            func() time.Time
}

// Gateway issues writes against the backend store and waits for them to be
// echoed back through the feeds. It never touches the projection itself.
type Gateway struct {
	store            domain.DocumentStore
	echoes           EchoSource
	reconcileTimeout time.Duration
	writeTimeout     time.Duration
	limiter          *rate.Limiter
	clock            func() time.Time
}

func NewGateway(cfg GatewayConfig) *Gateway {
	g := &Gateway{
		store:            cfg.Store,
		echoes:           cfg.Echoes,
		reconcileTimeout: cfg.ReconcileTimeout,
		writeTimeout:     cfg.WriteTimeout,
		limiter:          rate.NewLimiter(rate.Inf, 0),
		clock:            cfg.Clock,
	}
	if g.reconcileTimeout <= 0 {
		g.reconcileTimeout = 10 * time.Second
	}
	if g.writeTimeout <= 0 {
		g.writeTimeout = 15 * time.Second
	}
	if cfg.MutationRPS > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(cfg.MutationRPS), cfg.MutationRPS)
	}
	if g.clock == nil {
		g.clock = time.Now
	}
	return g
}

// AddRoom validates and writes a new room, then waits for it to show up in
// the rooms projection. The id is returned even on ReconciliationTimeout.
func (g *Gateway) AddRoom(ctx context.Context, in domain.NewRoom) (id string, err error) {
	defer func() { g.observe(OpAddRoom, id, err) }()

	in = normalizeRoom(in)
	if err := validateStruct("room", in); err != nil {
		return "", err
	}
	id, err = g.add(ctx, OpAddRoom, domain.CollectionRooms, encodeRoom(in))
	if err != nil {
		return "", err
	}
	return id, g.awaitEcho(ctx, OpAddRoom, domain.CollectionRooms, id, func(v projection.View) bool {
		_, ok := v.Rooms.Get(id)
		return ok
	})
}

func (g *Gateway) UpdateRoomStatus(ctx context.Context, id string, status domain.RoomStatus) (err error) {
	defer func() { g.observe(OpUpdateRoomStatus, id, err) }()

	if !status.Valid() {
		return &domain.ValidationError{Entity: "room", Fields: []domain.FieldError{{Field: "status", Reason: "must be one of: available occupied maintenance"}}}
	}
	doc, err := g.current(ctx, OpUpdateRoomStatus, domain.CollectionRooms, id)
	if err != nil {
		return err
	}
	cur := DecodeRoom(doc)
	if statusHealed(cur.Issues) {
		return &domain.TransitionError{Entity: "room", ID: id, From: rawStatus(doc, roomAliases), To: string(status)}
	}
	from := cur.Value.Status
	if !from.CanTransitionTo(status) {
		return &domain.TransitionError{Entity: "room", ID: id, From: string(from), To: string(status)}
	}
	if from == status {
		return nil
	}
	if err := g.update(ctx, OpUpdateRoomStatus, domain.CollectionRooms, id, encodeStatus(string(status), g.clock())); err != nil {
		return err
	}
	return g.awaitEcho(ctx, OpUpdateRoomStatus, domain.CollectionRooms, id, func(v projection.View) bool {
		r, ok := v.Rooms.Get(id)
		return ok && r.Status == status
	})
}

func (g *Gateway) AddBooking(ctx context.Context, in domain.NewBooking) (id string, err error) {
	defer func() { g.observe(OpAddBooking, id, err) }()

	in = normalizeBooking(in)
	if err := validateStruct("booking", in); err != nil {
		return "", err
	}
	id, err = g.add(ctx, OpAddBooking, domain.CollectionBookings, encodeBooking(in, g.clock()))
	if err != nil {
		return "", err
	}
	return id, g.awaitEcho(ctx, OpAddBooking, domain.CollectionBookings, id, func(v projection.View) bool {
		_, ok := v.Bookings.Get(id)
		return ok
	})
}

func (g *Gateway) UpdateBookingStatus(ctx context.Context, id string, status domain.BookingStatus) (err error) {
	defer func() { g.observe(OpUpdateBookingStatus, id, err) }()

	if !status.Valid() {
		return &domain.ValidationError{Entity: "booking", Fields: []domain.FieldError{{Field: "status", Reason: "must be one of: pending confirmed cancelled completed"}}}
	}
	doc, err := g.current(ctx, OpUpdateBookingStatus, domain.CollectionBookings, id)
	if err != nil {
		return err
	}
	cur := DecodeBooking(doc)
	if statusHealed(cur.Issues) {
		return &domain.TransitionError{Entity: "booking", ID: id, From: rawStatus(doc, bookingAliases), To: string(status)}
	}
	from := cur.Value.Status
	if !from.CanTransitionTo(status) {
		return &domain.TransitionError{Entity: "booking", ID: id, From: string(from), To: string(status)}
	}
	if from == status {
		return nil
	}
	if err := g.update(ctx, OpUpdateBookingStatus, domain.CollectionBookings, id, encodeStatus(string(status), g.clock())); err != nil {
		return err
	}
	return g.awaitEcho(ctx, OpUpdateBookingStatus, domain.CollectionBookings, id, func(v projection.View) bool {
		b, ok := v.Bookings.Get(id)
		return ok && b.Status == status
	})
}

// current reads the authoritative document so transitions are checked
// against the store rather than a possibly stale projection.
func (g *Gateway) current(ctx context.Context, op, collection, id string) (domain.Document, error) {
	docs, err := g.store.Query(ctx, collection, domain.Filter{IDs: []string{id}})
	if err != nil {
		if cerr := ctx.Err(); cerr != nil && errors.Is(err, cerr) {
			return domain.Document{}, err
		}
		return domain.Document{}, &domain.MutationWriteError{Op: op, Collection: collection, ID: id, Err: fmt.Errorf("load current document: %w", err)}
	}
	if len(docs) == 0 {
		return domain.Document{}, fmt.Errorf("%s/%s: %w", collection, id, domain.ErrNotFound)
	}
	return docs[0], nil
}

// statusHealed reports whether the stored status was unreadable. A healed
// default must not be used as the origin of a transition.
func statusHealed(issues []*domain.FeedDecodeError) bool {
	for _, is := range issues {
		if is.Field == "status" {
			return true
		}
	}
	return false
}

func rawStatus(doc domain.Document, aliases map[string][]string) string {
	v := firstAlias(doc.Fields, aliases, "status")
	if v == nil {
		return "<missing>"
	}
	return fmt.Sprint(v)
}

func (g *Gateway) add(ctx context.Context, op, collection string, fields map[string]any) (string, error) {
	var id string
	err := g.write(ctx, op, func(wctx context.Context) error {
		var err error
		id, err = g.store.AddDocument(wctx, collection, fields)
		return err
	})
	if err != nil {
		return "", g.writeErr(ctx, op, collection, "", err)
	}
	return id, nil
}

func (g *Gateway) update(ctx context.Context, op, collection, id string, fields map[string]any) error {
	err := g.write(ctx, op, func(wctx context.Context) error {
		return g.store.UpdateDocument(wctx, collection, id, fields)
	})
	if err != nil {
		return g.writeErr(ctx, op, collection, id, err)
	}
	return nil
}

func (g *Gateway) writeErr(ctx context.Context, op, collection, id string, err error) error {
	// the caller gave up; the outcome of the write is unknown to it
	if cerr := ctx.Err(); cerr != nil && errors.Is(err, cerr) {
		return err
	}
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%s/%s: %w", collection, id, err)
	}
	return &domain.MutationWriteError{Op: op, Collection: collection, ID: id, Err: err}
}

// write runs fn detached from the caller's cancellation so a started write
// still completes server-side if the caller goes away. The caller stops
// waiting on ctx; fn only reports into its own buffered channel.
func (g *Gateway) write(ctx context.Context, op string, fn func(context.Context) error) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() {
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.writeTimeout)
		defer cancel()
		done <- fn(wctx)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		log.Warn().Str("op", op).Msg("caller left before write ack; write continues")
		return ctx.Err()
	}
}

func (g *Gateway) awaitEcho(ctx context.Context, op, collection, id string, seen func(projection.View) bool) error {
	start := time.Now()
	timer := time.NewTimer(g.reconcileTimeout)
	defer timer.Stop()

	for {
		changed := g.echoes.Changed()
		if seen(g.echoes.Read()) {
			observability.ObserveReconcile(op, time.Since(start))
			return nil
		}
		select {
		case <-changed:
		case <-g.echoes.Done():
			return domain.ErrSessionClosed
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return &domain.ReconciliationTimeout{Op: op, Collection: collection, ID: id, Waited: g.reconcileTimeout}
		}
	}
}

func (g *Gateway) observe(op, id string, err error) {
	outcome := Outcome(err)
	observability.ObserveMutation(op, outcome)
	ev := log.Info()
	if err != nil {
		ev = log.Warn().Err(err).Str("kind", observability.LabelErr(err))
	}
	ev.Str("op", op).Str("id", id).Str("outcome", outcome).Msg("mutation")
}

// Outcome classifies a mutation error for metrics and logs.
func Outcome(err error) string {
	var (
		verr *domain.ValidationError
		terr *domain.TransitionError
		werr *domain.MutationWriteError
		rerr *domain.ReconciliationTimeout
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &verr):
		return "invalid"
	case errors.As(err, &terr):
		return "conflict"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.As(err, &werr):
		return "write_error"
	case errors.As(err, &rerr):
		return "timeout"
	case errors.Is(err, domain.ErrSessionClosed):
		return "closed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}
	return "error"
}
