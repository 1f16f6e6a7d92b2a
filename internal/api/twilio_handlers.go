package api

import (
	"log/slog"
	"net/http"

	"github.com/BTreeMap/PlatformAI/internal/models"
	"github.com/BTreeMap/PlatformAI/internal/render"
	"github.com/BTreeMap/PlatformAI/internal/twiliowhatsapp"
)

// SignatureHeader is where Twilio puts the request signature.
const SignatureHeader = "X-Twilio-Signature"

// emptyTwiML acknowledges a webhook without replying inline.
const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// twilioWebhookHandler acknowledges an inbound WhatsApp message at once and
// relays it in the background; the model may take longer than Twilio waits.
func (s *Server) twilioWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := r.ParseForm(); err != nil {
		slog.Warn("Server.twilioWebhookHandler: failed to parse form", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid form body"))
		return
	}

	if s.validator != nil {
		if !s.validator.ValidateSignature(s.webhookURLFor(r), r.PostForm, r.Header.Get(SignatureHeader)) {
			slog.Warn("Server.twilioWebhookHandler: invalid signature", "remote", r.RemoteAddr)
			writeJSONResponse(w, http.StatusForbidden, models.Error("Invalid signature"))
			return
		}
	}

	msg, err := twiliowhatsapp.ParseInbound(r.PostForm)
	if err != nil {
		slog.Warn("Server.twilioWebhookHandler: malformed webhook", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	fresh, err := s.st.RecordInbound(msg.MessageSID)
	if err != nil {
		slog.Error("Server.twilioWebhookHandler: dedup check failed", "sid", msg.MessageSID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error(MsgInternalError))
		return
	}
	if fresh {
		s.inflight.Add(1)
		go s.replyWhatsApp(msg)
	} else {
		slog.Info("Server.twilioWebhookHandler: duplicate delivery ignored", "sid", msg.MessageSID)
	}

	writeTwiML(w, emptyTwiML)
}

// replyWhatsApp relays msg and sends the rendered answer back to the sender.
func (s *Server) replyWhatsApp(msg twiliowhatsapp.InboundMessage) {
	defer s.inflight.Done()

	res := s.relay.Handle(s.workCtx, msg.Body, models.ChannelWhatsApp)
	body := backendMessage(res.Kind)
	if res.OK() {
		body = render.Text(res.Response)
	}
	if err := s.sender.SendMessage(s.workCtx, msg.From, body); err != nil {
		slog.Error("Server.replyWhatsApp: failed to send reply", "id", res.ID, "sid", msg.MessageSID, "error", err)
		return
	}
	if err := s.st.MarkProcessed(msg.MessageSID); err != nil {
		slog.Warn("Server.replyWhatsApp: failed to mark message processed", "sid", msg.MessageSID, "error", err)
	}
	slog.Info("Server.replyWhatsApp: reply sent", "id", res.ID, "sid", msg.MessageSID, "outcome", res.Kind)
}

// webhookURLFor returns the URL Twilio signed: the configured public URL, or
// one rebuilt from the request and proxy headers.
func (s *Server) webhookURLFor(r *http.Request) string {
	if s.webhookURL != "" {
		return s.webhookURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		scheme = p
	}
	host := r.Host
	if h := r.Header.Get("X-Forwarded-Host"); h != "" {
		host = h
	}
	return scheme + "://" + host + r.URL.RequestURI()
}
