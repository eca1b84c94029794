package protocol

import "time"

// RequestState represents the lifecycle state of a help request.
type RequestState string

const (
	StatePending    RequestState = "PENDING"
	StateResolved   RequestState = "RESOLVED"
	StateUnresolved RequestState = "UNRESOLVED"
)

// TimeoutFollowUpMessage is recorded as the resolution note of a help request
// that expired without a supervisor answer.
const TimeoutFollowUpMessage = "This request timed out. A supervisor will follow up within 24 hours."

// Valid reports whether s is one of the known states.
func (s RequestState) Valid() bool {
	switch s {
	case StatePending, StateResolved, StateUnresolved:
		return true
	}
	return false
}

// Terminal reports whether no further transition can leave s.
func (s RequestState) Terminal() bool {
	return s == StateResolved || s == StateUnresolved
}

// CanTransition reports whether a help request may move from s to next.
// Only PENDING → RESOLVED and PENDING → UNRESOLVED are allowed.
func (s RequestState) CanTransition(next RequestState) bool {
	return s == StatePending && next.Terminal()
}

// HelpRequest is an escalated caller question awaiting (or past) supervisor review.
// The internal row ID is never exposed; TicketID is the external identifier.
type HelpRequest struct {
	ID               int64        `json:"-"`
	TicketID         string       `json:"ticket_id"`
	Caller           string       `json:"caller"`
	Question         string       `json:"question"`
	State            RequestState `json:"state"`
	SupervisorAnswer *string      `json:"supervisor_answer,omitempty"`
	ResolutionNote   string       `json:"resolution_note,omitempty"`
	RoomBinding      *string      `json:"room_binding,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	ResolvedAt       *time.Time   `json:"resolved_at,omitempty"`
}

// Elapsed returns how long the request has been open as of now.
func (h *HelpRequest) Elapsed(now time.Time) time.Duration {
	return now.Sub(h.CreatedAt)
}

// Room returns the bound voice room name, or "" when none has been provisioned.
func (h *HelpRequest) Room() string {
	if h.RoomBinding == nil {
		return ""
	}
	return *h.RoomBinding
}
