package voice

import (
	"context"
	"fmt"
	"time"

	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
)

const (
	defaultEmptyTimeout = 30 * time.Second
	defaultTokenTTL     = time.Hour
)

// LiveKit provisions rooms and mints tokens against a LiveKit server.
type LiveKit struct {
	cfg   Config
	rooms *lksdk.RoomServiceClient
}

// NewLiveKit validates cfg and creates a LiveKit client. It fails fast when
// credentials are missing.
func NewLiveKit(cfg Config) (*LiveKit, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.EmptyTimeout <= 0 {
		cfg.EmptyTimeout = defaultEmptyTimeout
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}
	return &LiveKit{
		cfg:   cfg,
		rooms: lksdk.NewRoomServiceClient(cfg.URL, cfg.APIKey, cfg.APISecret),
	}, nil
}

func (l *LiveKit) CreateRoom(ctx context.Context, name string) (string, error) {
	room, err := l.rooms.CreateRoom(ctx, &livekit.CreateRoomRequest{
		Name:         name,
		EmptyTimeout: uint32(l.cfg.EmptyTimeout / time.Second),
	})
	if err != nil {
		return "", fmt.Errorf("livekit: create room %q: %w", name, err)
	}
	return room.GetName(), nil
}

func (l *LiveKit) Mint(g Grant) (string, error) {
	return mintToken(l.cfg.APIKey, l.cfg.APISecret, l.cfg.TokenTTL, g)
}

func mintToken(key, secret string, ttl time.Duration, g Grant) (string, error) {
	allow := true
	at := auth.NewAccessToken(key, secret)
	at.SetVideoGrant(&auth.VideoGrant{
		RoomJoin:       true,
		Room:           g.Room,
		CanPublish:     &allow,
		CanSubscribe:   &allow,
		CanPublishData: &allow,
	}).
		SetIdentity(g.Identity).
		SetName(g.Name).
		SetMetadata(g.Metadata).
		SetValidFor(ttl)

	token, err := at.ToJWT()
	if err != nil {
		return "", fmt.Errorf("livekit: sign token: %w", err)
	}
	return token, nil
}
