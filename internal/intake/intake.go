// Package intake accepts caller questions from external front-ends such as
// telephony bridges or chat widgets over authenticated webhooks.
package intake

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/h1v3-io/frontdesk/internal/desk"
	"github.com/h1v3-io/frontdesk/pkg/protocol"
)

const maxBody = 1 << 20

// Config holds intake webhook configuration.
type Config struct {
	// Endpoints maps endpoint names to their auth settings,
	// e.g. {"twilio": {secret: "whsec_abc"}, "widget": {bearer_token: "xyz"}}.
	Endpoints map[string]EndpointConfig `json:"endpoints" mapstructure:"endpoints"`
}

// EndpointConfig holds per-endpoint auth. Secret enables HMAC-SHA256
// verification of the X-Signature-256 header; otherwise BearerToken is
// checked. With neither set the endpoint is open.
type EndpointConfig struct {
	Secret      string `json:"secret,omitempty" mapstructure:"secret"`
	BearerToken string `json:"bearer_token,omitempty" mapstructure:"bearer_token"`
}

// Payload is the expected JSON body.
type Payload struct {
	Caller   string         `json:"caller"`
	Question string         `json:"question"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Asker routes a question through the desk.
type Asker interface {
	Ask(ctx context.Context, caller, question, channel string) (*protocol.AskResult, error)
}

// Handler serves POST /api/intake/{name}.
type Handler struct {
	config Config
	asker  Asker
	logger *slog.Logger
}

// New creates a new intake handler.
func New(cfg Config, asker Asker, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{config: cfg, asker: asker, logger: logger}
}

// Endpoints returns the configured endpoint names.
func (h *Handler) Endpoints() []string {
	names := make([]string, 0, len(h.config.Endpoints))
	for name := range h.config.Endpoints {
		names = append(names, name)
	}
	return names
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	name := r.PathValue("name")
	if name == "" {
		name = extractName(r.URL.Path)
	}
	endpoint, ok := h.config.Endpoints[name]
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "unknown intake endpoint: "+name)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read body")
		return
	}
	if !authenticate(r, endpoint, body) {
		h.logger.Warn("intake auth failed", "endpoint", name, "remote", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
		return
	}

	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON payload")
		return
	}
	if strings.TrimSpace(p.Question) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "question is required")
		return
	}
	if p.Caller == "" {
		p.Caller = name
	}

	res, err := h.asker.Ask(r.Context(), p.Caller, p.Question, desk.ChannelIntake+":"+name)
	switch {
	case errors.Is(err, desk.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	case err != nil:
		h.logger.Error("intake ask failed", "endpoint", name, "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}

	h.logger.Info("intake question handled", "endpoint", name, "found", res.Found, "ticket", res.TicketID, "metadata", p.Metadata)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}

func authenticate(r *http.Request, endpoint EndpointConfig, body []byte) bool {
	if endpoint.Secret != "" {
		sig := r.Header.Get("X-Signature-256")
		if sig == "" {
			sig = r.Header.Get("X-Hub-Signature-256")
		}
		return verifyHMAC(body, endpoint.Secret, sig)
	}
	if endpoint.BearerToken != "" {
		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		return subtle.ConstantTimeCompare([]byte(got), []byte(endpoint.BearerToken)) == 1
	}
	return true
}

// verifyHMAC checks a "sha256=<hex>" signature.
func verifyHMAC(body []byte, secret, signature string) bool {
	if signature == "" {
		return false
	}
	expected, err := hex.DecodeString(strings.TrimPrefix(signature, "sha256="))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expected)
}

// extractName gets the last path segment from /api/intake/{name}.
func extractName(path string) string {
	path = strings.TrimSuffix(path, "/")
	return path[strings.LastIndex(path, "/")+1:]
}

// Sign computes the X-Signature-256 value for body, for clients and tests.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg, "code": code})
}
