package protocol

// AskResult is the outcome of routing a caller question through the desk.
// Exactly one of Answer or TicketID is meaningful, selected by Found.
type AskResult struct {
	Found           bool   `json:"found"`
	Answer          string `json:"answer,omitempty"`
	TicketID        string `json:"ticket_id,omitempty"`
	NeedsSupervisor bool   `json:"needs_supervisor,omitempty"`
}

// ParticipantRole selects which side of a voice session a token is minted for.
type ParticipantRole string

const (
	RoleCaller     ParticipantRole = "caller"
	RoleSupervisor ParticipantRole = "supervisor"
)

// Valid reports whether r is a known participant role.
func (r ParticipantRole) Valid() bool {
	return r == RoleCaller || r == RoleSupervisor
}

// JoinCredentials carries everything a client needs to join a voice room.
type JoinCredentials struct {
	URL      string `json:"url"`
	Room     string `json:"room"`
	Token    string `json:"token"`
	Identity string `json:"identity"`
}
