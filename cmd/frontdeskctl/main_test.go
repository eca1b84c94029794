package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Body   map[string]any
}

type recorder struct {
	mu   sync.Mutex
	reqs []recordedRequest
}

func (r *recorder) all() []recordedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedRequest(nil), r.reqs...)
}

// fakeDaemon answers with canned bodies keyed by "METHOD path".
func fakeDaemon(t *testing.T, responses map[string]string) (*httptest.Server, *recorder) {
	t.Helper()
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := recordedRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Auth: r.Header.Get("Authorization")}
		json.NewDecoder(r.Body).Decode(&req.Body)
		rec.mu.Lock()
		rec.reqs = append(rec.reqs, req)
		rec.mu.Unlock()

		body, ok := responses[r.Method+" "+r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"store: help request missing: not found","code":"not_found"}`))
			return
		}
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func run(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(append([]string{"--addr", srv.URL, "--key", "k"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestHealth(t *testing.T) {
	srv, reqs := fakeDaemon(t, map[string]string{"GET /api/health": `{"status":"ok"}`})
	out, err := run(t, srv, "health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if strings.TrimSpace(out) != `{"status":"ok"}` {
		t.Errorf("out = %q", out)
	}
	if reqs.all()[0].Auth != "Bearer k" {
		t.Errorf("auth = %q", reqs.all()[0].Auth)
	}
}

func TestAsk(t *testing.T) {
	srv, reqs := fakeDaemon(t, map[string]string{"POST /api/ask": `{"found":false,"ticket_id":"t-1","needs_supervisor":true}`})
	out, err := run(t, srv, "ask", "--caller", "alice", "do", "you", "have", "parking?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if !strings.Contains(out, "ticket t-1") {
		t.Errorf("out = %q", out)
	}
	body := reqs.all()[0].Body
	if body["caller"] != "alice" || body["question"] != "do you have parking?" {
		t.Errorf("body = %v", body)
	}
}

func TestTicketsList(t *testing.T) {
	srv, reqs := fakeDaemon(t, map[string]string{
		"GET /api/tickets": `[{"ticket_id":"t-1","caller":"alice","question":"wifi?","state":"PENDING"}]`,
	})
	out, err := run(t, srv, "tickets", "list", "--state", "pending", "--limit", "5")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "t-1") || !strings.Contains(out, "PENDING") || !strings.Contains(out, "wifi?") {
		t.Errorf("out = %q", out)
	}
	if q := reqs.all()[0].Query; q != "limit=5&state=pending" {
		t.Errorf("query = %q", q)
	}
}

func TestTicketsResolve(t *testing.T) {
	srv, reqs := fakeDaemon(t, map[string]string{
		"POST /api/tickets/t-1/resolve": `{"ticket_id":"t-1","state":"RESOLVED"}`,
	})
	out, err := run(t, srv, "tickets", "resolve", "t-1", "We", "open", "at", "9")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !strings.Contains(out, "t-1 resolved") {
		t.Errorf("out = %q", out)
	}
	if reqs.all()[0].Body["answer"] != "We open at 9" {
		t.Errorf("body = %v", reqs.all()[0].Body)
	}
}

func TestTicketsShow_NotFound(t *testing.T) {
	srv, _ := fakeDaemon(t, nil)
	_, err := run(t, srv, "tickets", "show", "missing")
	var apiErr *apiError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want apiError", err)
	}
	if apiErr.Status != http.StatusNotFound || apiErr.Code != "not_found" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestKB(t *testing.T) {
	srv, reqs := fakeDaemon(t, map[string]string{
		"GET /api/kb":      `[{"id":1,"question":"Opening hours","answer":"9am-7pm Tue-Sat"}]`,
		"POST /api/kb":     `{"id":2,"question":"Parking","answer":"Free"}`,
		"DELETE /api/kb/2": ``,
	})

	out, err := run(t, srv, "kb", "list")
	if err != nil || !strings.Contains(out, "Opening hours") {
		t.Fatalf("list: out = %q err = %v", out, err)
	}
	out, err = run(t, srv, "kb", "add", "Parking", "Free")
	if err != nil || !strings.Contains(out, "added entry 2") {
		t.Fatalf("add: out = %q err = %v", out, err)
	}
	out, err = run(t, srv, "kb", "delete", "2")
	if err != nil || !strings.Contains(out, "deleted entry 2") {
		t.Fatalf("delete: out = %q err = %v", out, err)
	}
	if _, err := run(t, srv, "kb", "delete", "two"); err == nil {
		t.Error("expected error for non-numeric id")
	}
	if n := len(reqs.all()); n != 3 {
		t.Errorf("requests = %d, want 3", n)
	}
}
