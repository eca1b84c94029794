package api

import (
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/h1v3-io/frontdesk/internal/desk"
	"github.com/h1v3-io/frontdesk/internal/logbuf"
	"github.com/h1v3-io/frontdesk/internal/store"
	"github.com/h1v3-io/frontdesk/pkg/protocol"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type askRequest struct {
	Caller   string `json:"caller"`
	Question string `json:"question"`
}

func (s *Server) handleAskVoice(w http.ResponseWriter, r *http.Request) {
	s.ask(w, r, desk.ChannelVoice)
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	s.ask(w, r, desk.ChannelAPI)
}

func (s *Server) ask(w http.ResponseWriter, r *http.Request, channel string) {
	var req askRequest
	if !decodeBody(w, r, s.logger, &req, func(f url.Values) {
		req.Caller, req.Question = f.Get("caller"), f.Get("question")
	}) {
		return
	}
	res, err := s.desk.Ask(r.Context(), req.Caller, req.Question, channel)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleJoinToken(w http.ResponseWriter, r *http.Request) {
	role := protocol.ParticipantRole(r.URL.Query().Get("role"))
	if role == "" {
		role = protocol.RoleCaller
	}
	creds, err := s.desk.JoinCredentials(r.Context(), r.PathValue("ticket_id"), role, true)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, creds)
}

func (s *Server) handleListTickets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f store.Filter
	if states := q.Get("state"); states != "" {
		for _, st := range strings.Split(states, ",") {
			rs := protocol.RequestState(strings.ToUpper(strings.TrimSpace(st)))
			if !rs.Valid() {
				writeError(w, s.logger, badRequest("unknown state "+st))
				return
			}
			f.States = append(f.States, rs)
		}
	}
	f.Caller = q.Get("caller")
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			writeError(w, s.logger, badRequest("limit must be a non-negative integer"))
			return
		}
		f.Limit = n
	}

	list, err := s.desk.ListTickets(r.Context(), f)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	if list == nil {
		list = []*protocol.HelpRequest{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetTicket(w http.ResponseWriter, r *http.Request) {
	hr, err := s.desk.GetTicket(r.Context(), r.PathValue("ticket_id"))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, hr)
}

func (s *Server) handleResolveTicket(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if !decodeBody(w, r, s.logger, &req, func(f url.Values) { req.Answer = f.Get("answer") }) {
		return
	}
	hr, err := s.desk.ResolveTicket(r.Context(), r.PathValue("ticket_id"), req.Answer)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, hr)
}

func (s *Server) handleListKB(w http.ResponseWriter, r *http.Request) {
	entries, err := s.desk.Entries(r.Context())
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	if entries == nil {
		entries = []*protocol.KBEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleAddKB(w http.ResponseWriter, r *http.Request) {
	var req kbAddRequest
	if !decodeBody(w, r, s.logger, &req, func(f url.Values) {
		req.Question, req.Answer = f.Get("question"), f.Get("answer")
	}) {
		return
	}
	e, err := s.desk.AddEntry(r.Context(), req.Question, req.Answer)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) handleDeleteKB(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, s.logger, badRequest("id must be a positive integer"))
		return
	}
	if err := s.desk.DeleteEntry(r.Context(), id); err != nil {
		writeError(w, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	if s.opts.Logs == nil {
		writeJSON(w, http.StatusOK, []logbuf.Entry{})
		return
	}
	q := r.URL.Query()

	f := logbuf.Filter{
		MinLevel:  slog.LevelDebug,
		Limit:     200,
		Ticket:    q.Get("ticket"),
		Component: q.Get("component"),
	}
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			f.Limit = n
		}
	}
	if lvl := q.Get("level"); lvl != "" {
		level, err := logbuf.ParseLevel(lvl)
		if err != nil {
			writeError(w, s.logger, badRequest(err.Error()))
			return
		}
		f.MinLevel = level
	}
	if since := q.Get("since"); since != "" {
		if ms, err := strconv.ParseInt(since, 10, 64); err == nil {
			f.Since = time.UnixMilli(ms)
		} else if t, err := time.Parse(time.RFC3339, since); err == nil {
			f.Since = t
		} else {
			writeError(w, s.logger, badRequest("since must be unix milliseconds or RFC 3339"))
			return
		}
	}

	entries := s.opts.Logs.Query(f)
	if entries == nil {
		entries = []logbuf.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
