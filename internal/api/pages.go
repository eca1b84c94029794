package api

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/h1v3-io/frontdesk/internal/desk"
	"github.com/h1v3-io/frontdesk/pkg/protocol"
)

//go:embed templates/*.html
var templateFS embed.FS

// Supervisor answers are rendered as Markdown. Raw HTML in the source is
// dropped by goldmark's default renderer.
var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

var pages = template.Must(template.New("").Funcs(template.FuncMap{
	"markdown": renderMarkdown,
	"deref":    func(s *string) string { return *s },
	"since": func(t time.Time) string {
		return time.Since(t).Truncate(time.Second).String()
	},
}).ParseFS(templateFS, "templates/*.html"))

func renderMarkdown(s string) template.HTML {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(s), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(s))
	}
	return template.HTML(buf.String())
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		s.logger.Error("render page", "page", name, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// wantsJSON reports whether the client posted JSON rather than a form.
func wantsJSON(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}

func (s *Server) handleCallerForm(w http.ResponseWriter, _ *http.Request) {
	s.render(w, http.StatusOK, "caller.html", nil)
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, s.logger, badRequest("invalid form"))
		return
	}
	res, err := s.desk.Ask(r.Context(), r.PostForm.Get("caller"), r.PostForm.Get("question"), desk.ChannelWeb)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	s.render(w, http.StatusOK, "reply.html", res)
}

func (s *Server) handleAdmin(w http.ResponseWriter, r *http.Request) {
	dash, err := s.desk.Dashboard(r.Context(), s.cfg.HistoryLimit)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	s.render(w, http.StatusOK, "admin.html", dash)
}

type resolveRequest struct {
	TicketID string `json:"ticket_id"`
	Answer   string `json:"answer"`
}

func (s *Server) handleAdminResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if !decodeBody(w, r, s.logger, &req, func(f url.Values) {
		req.TicketID, req.Answer = f.Get("ticket_id"), f.Get("answer")
	}) {
		return
	}
	if req.TicketID == "" {
		writeError(w, s.logger, badRequest("ticket_id is required"))
		return
	}
	hr, err := s.desk.ResolveTicket(r.Context(), req.TicketID, req.Answer)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	s.respond(w, r, http.StatusOK, hr)
}

type kbAddRequest struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

func (s *Server) handleAdminKBAdd(w http.ResponseWriter, r *http.Request) {
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
	s.respond(w, r, http.StatusCreated, e)
}

type kbDeleteRequest struct {
	ID int64 `json:"id"`
}

func (s *Server) handleAdminKBDelete(w http.ResponseWriter, r *http.Request) {
	var req kbDeleteRequest
	var parseErr error
	if !decodeBody(w, r, s.logger, &req, func(f url.Values) {
		req.ID, parseErr = strconv.ParseInt(f.Get("id"), 10, 64)
	}) {
		return
	}
	if parseErr != nil || req.ID <= 0 {
		writeError(w, s.logger, badRequest("id must be a positive integer"))
		return
	}
	if err := s.desk.DeleteEntry(r.Context(), req.ID); err != nil {
		writeError(w, s.logger, err)
		return
	}
	s.respond(w, r, http.StatusOK, map[string]any{"deleted": req.ID})
}

func (s *Server) handleAdminJoinCall(w http.ResponseWriter, r *http.Request) {
	creds, err := s.desk.JoinCredentials(r.Context(), r.PathValue("ticket_id"), protocol.RoleSupervisor, false)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, creds)
}

// respond answers JSON clients with v and browsers with a redirect back to
// the dashboard.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	if wantsJSON(r) {
		writeJSON(w, status, v)
		return
	}
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}
