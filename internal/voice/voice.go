// Package voice binds help requests to real-time voice rooms. Room creation
// and token signing are delegated to an external room service.
package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/h1v3-io/frontdesk/pkg/protocol"
)

// ErrUnavailable is returned when voice support is not configured.
var ErrUnavailable = errors.New("voice service not configured")

// Provisioner creates rooms on the external service.
type Provisioner interface {
	// CreateRoom creates (or reuses) a room and returns its name.
	CreateRoom(ctx context.Context, name string) (string, error)
}

// Minter signs join tokens for a room.
type Minter interface {
	Mint(grant Grant) (string, error)
}

// Grant describes the participant a token is minted for.
type Grant struct {
	Room     string
	Identity string
	Name     string
	Metadata string
}

// Config holds external room service settings.
type Config struct {
	URL          string
	APIKey       string
	APISecret    string
	EmptyTimeout time.Duration // how long an empty room is kept
	TokenTTL     time.Duration
}

// Validate reports missing credentials. The error lists every missing field.
func (c Config) Validate() error {
	var missing []string
	if c.URL == "" {
		missing = append(missing, "LIVEKIT_URL")
	}
	if c.APIKey == "" {
		missing = append(missing, "LIVEKIT_API_KEY")
	}
	if c.APISecret == "" {
		missing = append(missing, "LIVEKIT_API_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("voice: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// RoomName is the deterministic room name for a ticket. It is both the name
// requested at provisioning time and the fallback when no room was bound.
func RoomName(ticketID string) string {
	return "help-" + ticketID
}

// Identity is the participant identity for role on a ticket.
func Identity(role protocol.ParticipantRole, ticketID string) string {
	short := ticketID
	if len(short) > 8 {
		short = short[:8]
	}
	return string(role) + "-" + short
}

// Binding mints join credentials for ticket rooms.
type Binding struct {
	URL    string
	Minter Minter
}

// Credentials mints a token for role to join room on behalf of ticketID.
func (b *Binding) Credentials(room, ticketID string, role protocol.ParticipantRole) (*protocol.JoinCredentials, error) {
	if b == nil || b.Minter == nil {
		return nil, ErrUnavailable
	}
	if !role.Valid() {
		return nil, fmt.Errorf("voice: unknown role %q", role)
	}
	identity := Identity(role, ticketID)
	meta, _ := json.Marshal(map[string]string{"role": string(role)})
	token, err := b.Minter.Mint(Grant{
		Room:     room,
		Identity: identity,
		Name:     string(role) + "_" + identity,
		Metadata: string(meta),
	})
	if err != nil {
		return nil, fmt.Errorf("voice: mint token: %w", err)
	}
	return &protocol.JoinCredentials{
		URL:      b.URL,
		Room:     room,
		Token:    token,
		Identity: identity,
	}, nil
}
