package models

// Outcome classifies how a chat exchange ended.
type Outcome string

const (
	// OutcomeOK indicates a structured response was returned.
	OutcomeOK Outcome = "ok"
	// OutcomeInputError indicates the request was rejected before the backend was called.
	OutcomeInputError Outcome = "input_error"
	// OutcomeBackendUnavailable indicates the model backend refused the connection.
	OutcomeBackendUnavailable Outcome = "backend_unavailable"
	// OutcomeBackendTimeout indicates the backend call exceeded its deadline.
	OutcomeBackendTimeout Outcome = "backend_timeout"
	// OutcomeBackendError indicates any other backend failure.
	OutcomeBackendError Outcome = "backend_error"
	// OutcomeInvalid indicates every repair attempt was exhausted.
	OutcomeInvalid Outcome = "invalid"
)

// Channel names the surface a request arrived on.
type Channel string

const (
	ChannelHTTP     Channel = "http"
	ChannelWhatsApp Channel = "whatsapp"
)

// Receipt records the metadata of one chat exchange. It never holds message
// text or model output.
type Receipt struct {
	ID        string  `json:"id"`
	Channel   Channel `json:"channel"`
	Outcome   Outcome `json:"outcome"`
	Mode      Mode    `json:"mode,omitempty"`
	Attempt   string  `json:"attempt,omitempty"` // repair attempt that produced the response
	LatencyMS int64   `json:"latency_ms"`
	Time      int64   `json:"time"`
}
