package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/BTreeMap/PlatformAI/internal/genai"
	"github.com/BTreeMap/PlatformAI/internal/models"
	"github.com/BTreeMap/PlatformAI/internal/schema"
)

// Client-facing messages of the chat endpoint.
const (
	MsgInvalidMessageField = `Missing or invalid "message" field`
	MsgEmptyMessage        = "Message cannot be empty"
	MsgBackendUnavailable  = "Ollama is not running. Please start Ollama first."
	HintBackendUnavailable = "Run: ollama serve"
	MsgBackendTimeout      = "The AI model took too long to respond."
	HintBackendTimeout     = "Try a shorter or simpler question."
	MsgInvalidResponse     = "Invalid response from AI"
	HintInvalidResponse    = "The AI model may have returned an unexpected format. Try rephrasing your question."
	MsgInternalError       = "Internal server error"
)

// Receipt listing bounds.
const (
	DefaultReceiptLimit = 100
	MaxReceiptLimit     = 1000
)

// MaxRawLength bounds a string diagnostic returned to the client.
const MaxRawLength = 500

// RequestIDHeader carries the exchange ID on chat responses.
const RequestIDHeader = "X-Request-ID"

func (s *Server) chatHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		slog.Warn("Server.chatHandler: method not allowed", "method", r.Method)
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var req models.ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes)).Decode(&req); err != nil || req.Message == nil || *req.Message == "" {
		slog.Warn("Server.chatHandler: invalid request body", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(MsgInvalidMessageField))
		return
	}

	res := s.relay.Handle(r.Context(), *req.Message, models.ChannelHTTP)
	w.Header().Set(RequestIDHeader, res.ID)

	switch res.Kind {
	case models.OutcomeOK:
		writeJSONResponse(w, http.StatusOK, models.Success(res.Response))
	case models.OutcomeInputError:
		writeJSONResponse(w, http.StatusBadRequest, models.Error(MsgEmptyMessage))
	case models.OutcomeBackendUnavailable:
		writeJSONResponse(w, http.StatusServiceUnavailable, models.ErrorWithHint(MsgBackendUnavailable, HintBackendUnavailable))
	case models.OutcomeBackendTimeout:
		writeJSONResponse(w, http.StatusGatewayTimeout, models.ErrorWithHint(MsgBackendTimeout, HintBackendTimeout))
	case models.OutcomeInvalid:
		msg := res.Error
		if msg == "" {
			msg = MsgInvalidResponse
		}
		writeJSONResponse(w, http.StatusInternalServerError, models.NewChatResponseBuilder().
			WithError(msg).
			WithRaw(truncateRaw(res.Raw)).
			WithHint(HintInvalidResponse).
			Build())
	default:
		msg := MsgInternalError
		if res.Err != nil {
			msg = res.Err.Error()
		}
		writeJSONResponse(w, http.StatusInternalServerError, models.Error(msg))
	}
}

// truncateRaw cuts string diagnostics to MaxRawLength characters. Other values pass through.
func truncateRaw(raw any) any {
	s, ok := raw.(string)
	if !ok {
		return raw
	}
	runes := []rune(s)
	if len(runes) > MaxRawLength {
		return string(runes[:MaxRawLength])
	}
	return s
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	status := models.ModelStatus{}
	if s.models == nil {
		status.Error = "model backend not configured"
	} else if names, err := s.models.ListModels(r.Context()); err != nil {
		slog.Warn("Server.healthHandler: backend not reachable", "error", err)
		status.Error = err.Error()
	} else {
		status.Connected = true
		status.Models = names
	}
	writeJSONResponse(w, http.StatusOK, models.HealthResponse{Status: "ok", Ollama: status})
}

func (s *Server) rootHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Not found"))
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	endpoints := map[string]string{
		"chat":     "POST /api/chat",
		"health":   "GET /health",
		"schema":   "GET /api/schema",
		"receipts": "GET /api/receipts",
	}
	if s.sender != nil {
		endpoints["whatsapp"] = "POST /twilio/webhook"
	}
	writeJSONResponse(w, http.StatusOK, models.ServiceInfo{
		Name:      ServiceName,
		Version:   s.version,
		Endpoints: endpoints,
	})
}

func (s *Server) schemaHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	w.Header().Set("Content-Type", "application/schema+json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(schema.Document()); err != nil {
		slog.Error("Server.schemaHandler: failed to write schema", "error", err)
	}
}

func (s *Server) receiptsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	limit := DefaultReceiptLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("limit must be a positive integer"))
			return
		}
		limit = min(n, MaxReceiptLimit)
	}
	receipts, err := s.st.GetReceipts(limit)
	if err != nil {
		slog.Error("Server.receiptsHandler: failed to load receipts", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load receipts"))
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{"receipts": receipts})
}

// backendMessage is the WhatsApp reply for a failed exchange.
func backendMessage(kind models.Outcome) string {
	switch kind {
	case models.OutcomeInputError:
		return "Please send a text message."
	case models.OutcomeBackendUnavailable:
		return "PlatformAI is offline right now. Please try again later."
	case models.OutcomeBackendTimeout:
		return MsgBackendTimeout + " " + HintBackendTimeout
	default:
		return "Sorry, I couldn't process that. Try rephrasing your question."
	}
}

var _ ModelLister = (*genai.Client)(nil)
