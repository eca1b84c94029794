// Package kb answers caller questions from the knowledge base.
package kb

import (
	"context"
	"fmt"
	"strings"

	"github.com/h1v3-io/frontdesk/pkg/protocol"
)

// EntryLister is the slice of the store the resolver reads from.
type EntryLister interface {
	ListEntries(ctx context.Context) ([]*protocol.KBEntry, error)
}

// Resolver matches free-text questions against stored KB entries.
type Resolver struct {
	entries EntryLister
}

// NewResolver creates a resolver over the given entry source.
func NewResolver(entries EntryLister) *Resolver {
	return &Resolver{entries: entries}
}

// Normalize trims and lowercases a question for matching.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Matches reports whether entryQuestion, normalized, is contained in the
// normalized caller question. Empty entry questions never match.
func Matches(entryQuestion, question string) bool {
	needle := Normalize(entryQuestion)
	if needle == "" {
		return false
	}
	return strings.Contains(Normalize(question), needle)
}

// FindAnswer returns the first KB entry, in store order, whose question is a
// case-insensitive substring of question. It returns nil when nothing matches.
func (r *Resolver) FindAnswer(ctx context.Context, question string) (*protocol.KBEntry, error) {
	entries, err := r.entries.ListEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("kb: find answer: %w", err)
	}
	for _, e := range entries {
		if Matches(e.Question, question) {
			return e, nil
		}
	}
	return nil, nil
}
