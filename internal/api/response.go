package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/PlatformAI/internal/models"
)

// internalErrorBody is sent when a response cannot be encoded. It must equal
// the encoding of models.Error(MsgInternalError).
var internalErrorBody = []byte(`{"success":false,"error":"Internal server error"}`)

// writeJSONResponse encodes response and writes it with statusCode. An
// encoding failure turns into a 500 with internalErrorBody.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	body, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to marshal JSON response", "status", statusCode, "error", err)
		body = internalErrorBody
		statusCode = http.StatusInternalServerError
	}
	writeBody(w, statusCode, "application/json", body)
}

// writeTwiML answers a Twilio webhook.
func writeTwiML(w http.ResponseWriter, twiml string) {
	writeBody(w, http.StatusOK, "text/xml", []byte(twiml))
}

func writeBody(w http.ResponseWriter, statusCode int, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(statusCode)
	if _, err := w.Write(body); err != nil {
		slog.Error("Server.writeBody: failed to write response", "content_type", contentType, "error", err)
	}
}

// methodNotAllowed answers with 405 and the Allow header.
func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	for _, m := range allowed {
		w.Header().Add("Allow", m)
	}
	writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
}
