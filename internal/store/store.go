// Package store persists help requests and knowledge-base entries in a
// relational database. Every mutation of a help request runs in its own
// short transaction scoped to exactly that request.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/h1v3-io/frontdesk/pkg/protocol"
)

var (
	// ErrNotFound is returned when a ticket or KB entry does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition is returned when a help request is not in a state
	// that permits the requested transition.
	ErrInvalidTransition = errors.New("invalid state transition")
)

// Store is the persistence interface for help requests and the knowledge base.
type Store interface {
	// CreateRequest inserts a new PENDING help request and fills in its row ID.
	CreateRequest(ctx context.Context, hr *protocol.HelpRequest) error
	// GetRequest retrieves a help request by its external ticket ID.
	GetRequest(ctx context.Context, ticketID string) (*protocol.HelpRequest, error)
	// ListRequests returns help requests matching the filter, newest first.
	ListRequests(ctx context.Context, filter Filter) ([]*protocol.HelpRequest, error)
	// CountRequests returns the number of help requests matching the filter.
	CountRequests(ctx context.Context, filter Filter) (int, error)
	// Resolve moves a PENDING request to RESOLVED and upserts the KB entry
	// for its question, atomically.
	Resolve(ctx context.Context, ticketID, answer string, at time.Time) (*protocol.HelpRequest, error)
	// Expire moves a PENDING request to UNRESOLVED. changed is false when the
	// request had already left PENDING; that case is not an error.
	Expire(ctx context.Context, ticketID, note string, at time.Time) (hr *protocol.HelpRequest, changed bool, err error)
	// BindRoom records the voice room for a request if none is bound yet.
	// bound is false when a room was already recorded.
	BindRoom(ctx context.Context, ticketID, room string) (bound bool, err error)

	// ListEntries returns every KB entry in insertion order.
	ListEntries(ctx context.Context) ([]*protocol.KBEntry, error)
	// CountEntries returns the number of KB entries.
	CountEntries(ctx context.Context) (int, error)
	// AddEntry inserts a KB entry unconditionally.
	AddEntry(ctx context.Context, question, answer string, at time.Time) (*protocol.KBEntry, error)
	// UpsertEntry updates the entry whose question equals question exactly,
	// or inserts a new one.
	UpsertEntry(ctx context.Context, question, answer string, at time.Time) (*protocol.KBEntry, error)
	// DeleteEntry removes a KB entry by ID.
	DeleteEntry(ctx context.Context, id int64) error

	// Close releases the underlying database.
	Close() error
}

// Filter constrains help request list queries.
type Filter struct {
	States []protocol.RequestState // any of; empty = all
	Caller string                  // exact match
	Limit  int                     // 0 = no limit
}

// Pending is the filter used by the timeout sweep.
func Pending() Filter {
	return Filter{States: []protocol.RequestState{protocol.StatePending}}
}

// Closed matches requests that have left PENDING.
func Closed() Filter {
	return Filter{States: []protocol.RequestState{protocol.StateResolved, protocol.StateUnresolved}}
}
