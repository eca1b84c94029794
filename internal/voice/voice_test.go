package voice

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/h1v3-io/frontdesk/pkg/protocol"
)

type fakeMinter struct {
	grants []Grant
	err    error
}

func (f *fakeMinter) Mint(g Grant) (string, error) {
	f.grants = append(f.grants, g)
	return "token-for-" + g.Identity, f.err
}

func TestConfigValidate(t *testing.T) {
	err := Config{URL: "wss://lk.example"}.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "LIVEKIT_API_KEY") || !strings.Contains(err.Error(), "LIVEKIT_API_SECRET") {
		t.Errorf("error should list every missing field: %v", err)
	}
	if err := (Config{URL: "u", APIKey: "k", APISecret: "s"}).Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

func TestNewLiveKit_FailsFast(t *testing.T) {
	if _, err := NewLiveKit(Config{}); err == nil {
		t.Fatal("expected missing credential error")
	}
}

func TestRoomNameAndIdentity(t *testing.T) {
	tid := "0f8fad5b-d9cb-469f-a165-70867728950e"
	if got := RoomName(tid); got != "help-"+tid {
		t.Errorf("room = %q", got)
	}
	if got := Identity(protocol.RoleCaller, tid); got != "caller-0f8fad5b" {
		t.Errorf("identity = %q", got)
	}
	if got := Identity(protocol.RoleSupervisor, "abc"); got != "supervisor-abc" {
		t.Errorf("short identity = %q", got)
	}
}

func TestBindingCredentials(t *testing.T) {
	m := &fakeMinter{}
	b := &Binding{URL: "wss://lk.example", Minter: m}

	creds, err := b.Credentials("help-abc", "abcdef123456", protocol.RoleSupervisor)
	if err != nil {
		t.Fatalf("credentials: %v", err)
	}
	if creds.URL != "wss://lk.example" || creds.Room != "help-abc" || creds.Identity != "supervisor-abcdef12" {
		t.Errorf("creds = %+v", creds)
	}
	if creds.Token != "token-for-supervisor-abcdef12" {
		t.Errorf("token = %q", creds.Token)
	}
	g := m.grants[0]
	if g.Name != "supervisor_supervisor-abcdef12" || g.Metadata != `{"role":"supervisor"}` {
		t.Errorf("grant = %+v", g)
	}
}

func TestBindingCredentials_Errors(t *testing.T) {
	var nilBinding *Binding
	if _, err := nilBinding.Credentials("r", "t", protocol.RoleCaller); !errors.Is(err, ErrUnavailable) {
		t.Errorf("nil binding err = %v", err)
	}
	b := &Binding{Minter: &fakeMinter{}}
	if _, err := b.Credentials("r", "t", "janitor"); err == nil {
		t.Error("expected unknown role error")
	}
	b = &Binding{Minter: &fakeMinter{err: errors.New("bad key")}}
	if _, err := b.Credentials("r", "t", protocol.RoleCaller); err == nil {
		t.Error("expected mint error")
	}
}

func TestMintToken_Claims(t *testing.T) {
	token, err := mintToken("APIkey", "a-very-long-secret-for-signing-tokens", time.Hour, Grant{
		Room:     "help-abc",
		Identity: "caller-abc",
		Name:     "caller_caller-abc",
		Metadata: `{"role":"caller"}`,
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("token is not a JWT: %q", token)
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	var claims struct {
		Issuer  string `json:"iss"`
		Subject string `json:"sub"`
		Video   struct {
			Room     string `json:"room"`
			RoomJoin bool   `json:"roomJoin"`
		} `json:"video"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		t.Fatalf("unmarshal claims: %v", err)
	}
	if claims.Issuer != "APIkey" || claims.Subject != "caller-abc" {
		t.Errorf("claims = %+v", claims)
	}
	if claims.Video.Room != "help-abc" || !claims.Video.RoomJoin {
		t.Errorf("video grant = %+v", claims.Video)
	}
}
