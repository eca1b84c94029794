package desk

import (
	"context"
	"fmt"
	"strings"

	"github.com/h1v3-io/frontdesk/internal/store"
	"github.com/h1v3-io/frontdesk/pkg/protocol"
)

// FindAnswer looks question up in the knowledge base without escalating.
func (d *Desk) FindAnswer(ctx context.Context, question string) (*protocol.KBEntry, error) {
	return d.resolver.FindAnswer(ctx, question)
}

// Entries returns the knowledge base in insertion order.
func (d *Desk) Entries(ctx context.Context) ([]*protocol.KBEntry, error) {
	entries, err := d.store.ListEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("desk: list kb: %w", err)
	}
	return entries, nil
}

// AddEntry adds a knowledge base entry by hand.
func (d *Desk) AddEntry(ctx context.Context, question, answer string) (*protocol.KBEntry, error) {
	question = strings.TrimSpace(question)
	answer = strings.TrimSpace(answer)
	if question == "" || answer == "" {
		return nil, fmt.Errorf("desk: add kb: %w: question and answer are required", ErrInvalidInput)
	}
	e, err := d.store.AddEntry(ctx, question, answer, d.now())
	if err != nil {
		return nil, fmt.Errorf("desk: add kb: %w", err)
	}
	d.logger.Info("kb entry added", "kb_entry", e.ID)
	return e, nil
}

// DeleteEntry removes a knowledge base entry.
func (d *Desk) DeleteEntry(ctx context.Context, id int64) error {
	if err := d.store.DeleteEntry(ctx, id); err != nil {
		return fmt.Errorf("desk: delete kb %d: %w", id, err)
	}
	d.logger.Info("kb entry deleted", "kb_entry", id)
	return nil
}

// Dashboard is the supervisor's view of the desk.
type Dashboard struct {
	Pending []*protocol.HelpRequest `json:"pending"`
	Closed  []*protocol.HelpRequest `json:"closed"`
	Entries []*protocol.KBEntry     `json:"kb"`
}

// Dashboard loads open and closed requests plus the knowledge base.
// closedLimit caps the closed list; 0 means no limit.
func (d *Desk) Dashboard(ctx context.Context, closedLimit int) (*Dashboard, error) {
	pending, err := d.ListTickets(ctx, store.Pending())
	if err != nil {
		return nil, err
	}
	closedFilter := store.Closed()
	closedFilter.Limit = closedLimit
	closed, err := d.ListTickets(ctx, closedFilter)
	if err != nil {
		return nil, err
	}
	entries, err := d.Entries(ctx)
	if err != nil {
		return nil, err
	}
	return &Dashboard{Pending: pending, Closed: closed, Entries: entries}, nil
}
