package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrSessionClosed = errors.New("session closed")
)

type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

type ValidationError struct {
	Entity string
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Reason)
	}
	return fmt.Sprintf("invalid %s: %s", e.Entity, strings.Join(parts, "; "))
}

type TransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s %s: cannot move from %q to %q", e.Entity, e.ID, e.From, e.To)
}

// FeedSubscriptionError is a transport or auth failure of a feed.
type FeedSubscriptionError struct {
	Collection string
	Err        error
}

func (e *FeedSubscriptionError) Error() string {
	return fmt.Sprintf("feed %s: subscription failed: %v", e.Collection, e.Err)
}

func (e *FeedSubscriptionError) Unwrap() error { return e.Err }

// FeedDecodeError describes one malformed field of one document. The document
// is still delivered with Default substituted.
type FeedDecodeError struct {
	Collection string
	DocumentID string
	Field      string
	Default    any
	Reason     string
}

func (e *FeedDecodeError) Error() string {
	return fmt.Sprintf("feed %s: document %s: field %s %s (using %v)", e.Collection, e.DocumentID, e.Field, e.Reason, e.Default)
}

// MutationWriteError means the remote write itself failed.
type MutationWriteError struct {
	Op         string
	Collection string
	ID         string
	Err        error
}

func (e *MutationWriteError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s %s: write failed: %v", e.Op, e.Collection, e.Err)
	}
	return fmt.Sprintf("%s %s/%s: write failed: %v", e.Op, e.Collection, e.ID, e.Err)
}

func (e *MutationWriteError) Unwrap() error { return e.Err }

// ReconciliationTimeout means the write was acknowledged but its echo was not
// seen on the feed in time. The write may still have succeeded.
type ReconciliationTimeout struct {
	Op         string
	Collection string
	ID         string
	Waited     time.Duration
}

func (e *ReconciliationTimeout) Error() string {
	return fmt.Sprintf("%s %s/%s: no feed echo after %s; the write may still have succeeded", e.Op, e.Collection, e.ID, e.Waited)
}
