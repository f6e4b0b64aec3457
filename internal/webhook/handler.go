// Package webhook is the relay's HTTP surface: the Twilio WhatsApp
// webhook, outbound send endpoint, and the info/health/stats endpoints.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/warelay-dev/warelay/internal/observability"
	"github.com/warelay-dev/warelay/internal/phone"
	"github.com/warelay-dev/warelay/internal/twilio"
	"github.com/warelay-dev/warelay/pkg/session"
)

// Fixed user-visible strings. On any failure during message processing
// the user sees the apology, never raw error text.
const (
	clearedReply = "Conversation cleared. Let's start fresh! How can I help you with data engineering?"
	apologyReply = "Sorry, I encountered an error. Please try again or type 'clear' to reset our conversation."
	tooFastReply = "You're sending messages too quickly. Please wait a moment and try again."
)

var clearCommands = map[string]bool{
	"clear":      true,
	"reset":      true,
	"start over": true,
}

// Generator produces a reply for a conversation window plus a new user
// message. Failures surface as a fallback string, not an error.
type Generator interface {
	Generate(ctx context.Context, history []session.Turn, userMessage string) string
}

// Sender delivers an outbound message and returns its SID.
type Sender interface {
	SendMessage(ctx context.Context, to, body string) (string, error)
}

// Info is static deployment information echoed by the stats endpoint.
type Info struct {
	MaxHistory     int
	TimeoutMinutes int
}

// Handler wires the webhook endpoints to the session manager and the
// completion client.
type Handler struct {
	manager   *session.Manager
	gen       Generator
	sender    Sender
	validator *twilio.Validator
	limiter   *senderLimiter
	info      Info
	log       zerolog.Logger
}

// NewHandler creates the HTTP handler set. ratePerMinute of 0 disables
// per-sender rate limiting.
func NewHandler(manager *session.Manager, gen Generator, sender Sender, validator *twilio.Validator, info Info, ratePerMinute int, log zerolog.Logger) *Handler {
	return &Handler{
		manager:   manager,
		gen:       gen,
		sender:    sender,
		validator: validator,
		limiter:   newSenderLimiter(ratePerMinute),
		info:      info,
		log:       log.With().Str("component", "webhook").Logger(),
	}
}

// Routes returns the relay's HTTP mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat/whatsapp", withMetrics("/chat/whatsapp", h.handleWhatsApp))
	mux.HandleFunc("POST /send-message", withMetrics("/send-message", h.handleSendMessage))
	mux.HandleFunc("GET /health", withMetrics("/health", h.handleHealth))
	mux.HandleFunc("GET /stats", withMetrics("/stats", h.handleStats))
	mux.HandleFunc("GET /{$}", withMetrics("/", h.handleRoot))
	return mux
}

// handleWhatsApp receives incoming WhatsApp messages from Twilio and
// responds with generated text as TwiML. Requests failing signature
// validation are rejected.
func (h *Handler) handleWhatsApp(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form data", http.StatusBadRequest)
		return
	}

	params := make(map[string]string, len(r.PostForm))
	for k, v := range r.PostForm {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}

	signature := r.Header.Get("X-Twilio-Signature")
	if !h.validator.Validate(requestURL(r), params, signature) {
		h.log.Warn().Str("remote", r.RemoteAddr).Msg("invalid twilio signature")
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	sender := r.PostForm.Get("From")
	body := r.PostForm.Get("Body")
	messageSID := r.PostForm.Get("MessageSid")
	profileName := r.PostForm.Get("ProfileName")

	if sender == "" {
		http.Error(w, "missing sender", http.StatusBadRequest)
		return
	}

	h.log.Info().
		Str("from", sender).
		Str("profile", profileName).
		Str("sid", messageSID).
		Int("chars", len(body)).
		Msg("received message")

	var reply string
	if h.limiter != nil && !h.limiter.Allow(sender) {
		observability.RecordRateLimited()
		reply = tooFastReply
	} else {
		reply = h.processMessage(r.Context(), body, sender, profileName)
	}

	twiml, err := twilio.MessagingResponse(reply)
	if err != nil {
		h.log.Error().Err(err).Msg("twiml rendering failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	_, _ = w.Write(twiml)
}

// processMessage runs the conversation sequence for one inbound message:
// history, completion, then the user and assistant turns in order. Any
// failure yields the fixed apology.
func (h *Handler) processMessage(ctx context.Context, message, sender, profileName string) string {
	if clearCommands[strings.ToLower(strings.TrimSpace(message))] {
		if err := h.manager.ClearSession(ctx, sender); err != nil {
			h.log.Error().Err(err).Str("from", sender).Msg("clear failed")
			return apologyReply
		}
		return clearedReply
	}

	history, err := h.manager.GetHistory(ctx, sender, profileName)
	if err != nil {
		h.log.Error().Err(err).Str("from", sender).Msg("history load failed")
		return apologyReply
	}

	reply := h.gen.Generate(ctx, history, message)

	if err := h.manager.AddMessage(ctx, sender, session.RoleUser, message, profileName); err != nil {
		h.log.Error().Err(err).Str("from", sender).Msg("store user turn failed")
		return apologyReply
	}
	observability.RecordMessageStored(string(session.RoleUser))

	if err := h.manager.AddMessage(ctx, sender, session.RoleAssistant, reply, profileName); err != nil {
		h.log.Error().Err(err).Str("from", sender).Msg("store assistant turn failed")
		return apologyReply
	}
	observability.RecordMessageStored(string(session.RoleAssistant))

	h.log.Info().Str("from", sender).Int("history", len(history)).Msg("responded")
	return reply
}

// handleSendMessage triggers an outbound WhatsApp message.
func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form data", http.StatusBadRequest)
		return
	}
	number := r.Form.Get("phone_number")
	message := r.Form.Get("message")
	if number == "" || message == "" {
		http.Error(w, "phone_number and message are required", http.StatusBadRequest)
		return
	}

	to, err := phone.ForTwilio(number)
	if err != nil {
		http.Error(w, "invalid phone number", http.StatusBadRequest)
		return
	}

	sid, err := h.sender.SendMessage(r.Context(), to, message)
	if err != nil {
		h.log.Error().Err(err).Str("to", to).Msg("outbound send failed")
		writeJSON(w, http.StatusOK, map[string]string{"status": "error", "message": err.Error()})
		return
	}
	h.log.Info().Str("to", to).Str("sid", sid).Msg("sent message")
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent", "sid": sid})
}

func (h *Handler) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "warelay WhatsApp LLM relay",
		"endpoints": map[string]string{
			"webhook": "/chat/whatsapp",
			"send":    "/send-message",
			"health":  "/health",
			"stats":   "/stats",
		},
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "healthy"})
}

// handleStats reports session counts. With ?phone_number= it returns
// per-user retained history totals, which only the persistent backend
// supports.
func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	if number := r.URL.Query().Get("phone_number"); number != "" {
		stats, err := h.manager.UserStats(r.Context(), number)
		switch {
		case errors.Is(err, session.ErrStatsUnsupported):
			http.Error(w, "user stats require the persistent backend", http.StatusNotImplemented)
		case err != nil:
			h.log.Error().Err(err).Msg("user stats failed")
			http.Error(w, "internal error", http.StatusInternalServerError)
		default:
			writeJSON(w, http.StatusOK, stats)
		}
		return
	}

	active, err := h.manager.ActiveSessions(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("active session count failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	observability.SetActiveSessions(active)
	writeJSON(w, http.StatusOK, map[string]int{
		"active_sessions":         active,
		"max_history":             h.info.MaxHistory,
		"session_timeout_minutes": h.info.TimeoutMinutes,
	})
}

// requestURL reconstructs the URL Twilio signed. The scheme honors the
// proxy header since the relay usually sits behind TLS termination.
func requestURL(r *http.Request) string {
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		if r.TLS != nil {
			scheme = "https"
		} else {
			scheme = "http"
		}
	}
	return scheme + "://" + r.Host + r.RequestURI
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
