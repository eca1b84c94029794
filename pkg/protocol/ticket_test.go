package protocol

import (
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	states := []RequestState{StatePending, StateResolved, StateUnresolved}
	allowed := map[[2]RequestState]bool{
		{StatePending, StateResolved}:   true,
		{StatePending, StateUnresolved}: true,
	}
	for _, from := range states {
		for _, to := range states {
			want := allowed[[2]RequestState{from, to}]
			if got := from.CanTransition(to); got != want {
				t.Errorf("%s → %s: got %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestTerminal(t *testing.T) {
	if StatePending.Terminal() {
		t.Error("PENDING should not be terminal")
	}
	if !StateResolved.Terminal() || !StateUnresolved.Terminal() {
		t.Error("RESOLVED and UNRESOLVED should be terminal")
	}
}

func TestValid(t *testing.T) {
	if RequestState("OPEN").Valid() {
		t.Error("unknown state reported valid")
	}
	if !StatePending.Valid() {
		t.Error("PENDING reported invalid")
	}
	if !RoleCaller.Valid() || !RoleSupervisor.Valid() {
		t.Error("known roles reported invalid")
	}
	if ParticipantRole("admin").Valid() {
		t.Error("unknown role reported valid")
	}
}

func TestRoomAndElapsed(t *testing.T) {
	created := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	hr := &HelpRequest{CreatedAt: created}
	if hr.Room() != "" {
		t.Errorf("Room() = %q, want empty", hr.Room())
	}
	room := "help-abc"
	hr.RoomBinding = &room
	if hr.Room() != "help-abc" {
		t.Errorf("Room() = %q", hr.Room())
	}
	if got := hr.Elapsed(created.Add(5 * time.Minute)); got != 5*time.Minute {
		t.Errorf("Elapsed = %v", got)
	}
}
