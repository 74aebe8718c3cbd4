package domain

import (
	"context"
	"reflect"
)

const (
	CollectionRooms    = "rooms"
	CollectionBookings = "bookings"
)

// Document is one entry of a remote collection as the store delivers it.
type Document struct {
	ID     string
	Fields map[string]any
}

// Filter selects documents for a one-shot Query. Empty means everything.
type Filter struct {
	IDs    []string
	Equals map[string]any
}

// Match reports whether d passes the filter. Equals compares top-level fields.
func (f Filter) Match(d Document) bool {
	if len(f.IDs) > 0 {
		found := false
		for _, id := range f.IDs {
			if id == d.ID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for k, want := range f.Equals {
		if got, ok := d.Fields[k]; !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

// DocumentStore is the backend store client consumed by this core.
type DocumentStore interface {
	// Subscribe delivers the full current collection once subscribed and again
	// after every change. The returned cancel func is safe to call repeatedly.
	Subscribe(ctx context.Context, collection string, onSnapshot func([]Document), onError func(error)) (cancel func(), err error)
	Query(ctx context.Context, collection string, f Filter) ([]Document, error)
	AddDocument(ctx context.Context, collection string, fields map[string]any) (string, error)
	UpdateDocument(ctx context.Context, collection, id string, fields map[string]any) error
}
