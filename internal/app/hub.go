package app

import (
	"context"
	"sync"
	"time"

	"hotelops/internal/domain"
)

type StatsUpdate struct {
	Stats           domain.Stats `json:"stats"`
	ComputedAt      time.Time    `json:"computedAt"`
	RoomsVersion    uint64       `json:"roomsVersion"`
	BookingsVersion uint64       `json:"bookingsVersion"`
}

// StatsHub fans stats updates out to live listeners. A slow listener only
// ever misses intermediate updates, never the latest one.
type StatsHub struct {
	mu          sync.RWMutex
	subscribers map[int64]chan StatsUpdate
	nextID      int64
	bufferSize  int
	closed      bool
}

func NewStatsHub() *StatsHub {
	return &StatsHub{
		subscribers: make(map[int64]chan StatsUpdate),
		bufferSize:  4,
	}
}

// Subscribe returns a stream closed on cleanup, on ctx end, or on hub Close.
func (h *StatsHub) Subscribe(ctx context.Context) (<-chan StatsUpdate, func()) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		ch := make(chan StatsUpdate)
		close(ch)
		return ch, func() {}
	}
	h.nextID++
	id := h.nextID
	stream := make(chan StatsUpdate, h.bufferSize)
	h.subscribers[id] = stream
	h.mu.Unlock()

	var once sync.Once
	cleanup := func() {
		once.Do(func() { h.unregister(id) })
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return stream, cleanup
}

func (h *StatsHub) Publish(u StatsUpdate) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, stream := range h.subscribers {
		select {
		case stream <- u:
			continue
		default:
		}
		// full: drop the oldest queued update and retry once
		select {
		case <-stream:
		default:
		}
		select {
		case stream <- u:
		default:
		}
	}
}

func (h *StatsHub) Listeners() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

func (h *StatsHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, stream := range h.subscribers {
		close(stream)
		delete(h.subscribers, id)
	}
}

func (h *StatsHub) unregister(id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if stream, ok := h.subscribers[id]; ok {
		close(stream)
		delete(h.subscribers, id)
	}
}
