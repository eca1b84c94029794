package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/slack-go/slack"

	"github.com/h1v3-io/frontdesk/pkg/protocol"
)

func testRequest() *protocol.HelpRequest {
	return &protocol.HelpRequest{
		TicketID:  "tid-1",
		Caller:    "alice",
		Question:  "Do you sell shampoo?",
		State:     protocol.StatePending,
		CreatedAt: time.Now(),
	}
}

func TestMulti_JoinsErrors(t *testing.T) {
	var calls int
	ok := NotifierFunc(func(context.Context, Event) error { calls++; return nil })
	bad := NotifierFunc(func(context.Context, Event) error { calls++; return errors.New("boom") })

	err := Multi{ok, bad, nil, ok}.Notify(context.Background(), Event{Kind: KindCreated, Request: testRequest()})
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("err = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, every notifier should run", calls)
	}
}

func TestLog_WritesPerKind(t *testing.T) {
	var buf bytes.Buffer
	n := &Log{Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	hr := testRequest()
	n.Notify(context.Background(), Event{Kind: KindCreated, Request: hr})
	answer := "yes"
	hr.SupervisorAnswer = &answer
	n.Notify(context.Background(), Event{Kind: KindResolved, Request: hr})
	hr.ResolutionNote = protocol.TimeoutFollowUpMessage
	n.Notify(context.Background(), Event{Kind: KindTimedOut, Request: hr})

	out := buf.String()
	for _, want := range []string{"supervisor notified", "caller notified of resolution", "caller notified of timeout", "tid-1"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestSlack_Formats(t *testing.T) {
	var got []string
	s, err := NewSlack("https://hooks.slack.test/x")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	s.post = func(_ context.Context, url string, msg *slack.WebhookMessage) error {
		got = append(got, msg.Text)
		return nil
	}

	hr := testRequest()
	s.Notify(context.Background(), Event{Kind: KindCreated, Request: hr})
	s.Notify(context.Background(), Event{Kind: KindRoom, Request: hr})
	s.Notify(context.Background(), Event{Kind: KindTimedOut, Request: hr})

	if len(got) != 2 {
		t.Fatalf("expected 2 posts (room events skipped), got %d", len(got))
	}
	if !strings.Contains(got[0], "tid-1") || !strings.Contains(got[0], "shampoo") {
		t.Errorf("created text = %q", got[0])
	}
}

func TestSlack_RequiresURL(t *testing.T) {
	if _, err := NewSlack(""); err == nil {
		t.Fatal("expected error")
	}
}

func TestSlack_PostError(t *testing.T) {
	s, _ := NewSlack("https://hooks.slack.test/x")
	s.post = func(context.Context, string, *slack.WebhookMessage) error { return errors.New("503") }
	if err := s.Notify(context.Background(), Event{Kind: KindCreated, Request: testRequest()}); err == nil {
		t.Fatal("expected error")
	}
}

func TestHub_Broadcast(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	hub.Notify(context.Background(), Event{Kind: KindCreated, Request: testRequest(), Time: time.Now()})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.Kind != KindCreated || ev.Request.TicketID != "tid-1" {
		t.Errorf("event = %+v", ev)
	}
}

func TestHub_ClientDisconnect(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	conn.Close()

	deadline = time.Now().Add(2 * time.Second)
	for hub.Clients() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client not removed after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
