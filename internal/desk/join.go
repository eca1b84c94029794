package desk

import (
	"context"
	"fmt"
	"time"

	"github.com/h1v3-io/frontdesk/internal/voice"
	"github.com/h1v3-io/frontdesk/pkg/protocol"
)

// JoinCredentials mints credentials for role to join the voice room of a
// request. With wait set, an unbound room is polled for briefly and then
// replaced by the fallback name; without it, an unbound room fails with
// ErrRoomNotReady.
func (d *Desk) JoinCredentials(ctx context.Context, ticketID string, role protocol.ParticipantRole, wait bool) (*protocol.JoinCredentials, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("desk: join: %w: unknown role %q", ErrInvalidInput, role)
	}

	hr, err := d.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if d.voice == nil {
		return nil, fmt.Errorf("desk: join %q: %w", ticketID, voice.ErrUnavailable)
	}

	if hr.RoomBinding == nil && wait {
		hr, err = d.waitForRoom(ctx, hr)
		if err != nil {
			return nil, err
		}
	}

	var room string
	switch {
	case hr.RoomBinding != nil:
		room = *hr.RoomBinding
	case wait:
		d.logger.Warn("room not provisioned, using fallback", "ticket", ticketID)
		room = voice.RoomName(ticketID)
	default:
		return nil, fmt.Errorf("desk: join %q: %w", ticketID, ErrRoomNotReady)
	}

	creds, err := d.voice.Credentials(room, ticketID, role)
	if err != nil {
		return nil, fmt.Errorf("desk: join %q: %w", ticketID, err)
	}
	d.logger.Info("join token issued", "ticket", ticketID, "role", role, "room", room)
	return creds, nil
}

func (d *Desk) waitForRoom(ctx context.Context, hr *protocol.HelpRequest) (*protocol.HelpRequest, error) {
	for i := 0; i < d.joinRetries; i++ {
		timer := time.NewTimer(d.joinRetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		latest, err := d.GetTicket(ctx, hr.TicketID)
		if err != nil {
			return nil, err
		}
		if latest.RoomBinding != nil {
			return latest, nil
		}
		hr = latest
	}
	return hr, nil
}
