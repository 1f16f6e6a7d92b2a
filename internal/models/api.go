package models

// ChatRequest is the inbound body of POST /api/chat. Message is a pointer so a
// missing field can be told apart from an empty one.
type ChatRequest struct {
	Message *string `json:"message"`
}

// API Response types for consistent JSON responses

// ChatResponse is the envelope every chat endpoint answers with.
type ChatResponse struct {
	Success bool                `json:"success"`
	Data    *StructuredResponse `json:"data,omitempty"`  // set on success only
	Error   string              `json:"error,omitempty"` // human readable failure reason
	Raw     interface{}         `json:"raw,omitempty"`   // best available diagnostic after failed repair
	Hint    string              `json:"hint,omitempty"`  // suggested next step for the user or operator
}

// ChatResponseBuilder provides a fluent interface for building chat responses.
type ChatResponseBuilder struct {
	response ChatResponse
}

// NewChatResponseBuilder creates a new ChatResponseBuilder instance.
func NewChatResponseBuilder() *ChatResponseBuilder {
	return &ChatResponseBuilder{}
}

// WithData marks the response successful and attaches the structured response.
func (b *ChatResponseBuilder) WithData(data StructuredResponse) *ChatResponseBuilder {
	b.response.Success = true
	b.response.Data = &data
	return b
}

// WithError marks the response failed with the given message.
func (b *ChatResponseBuilder) WithError(message string) *ChatResponseBuilder {
	b.response.Success = false
	b.response.Data = nil
	b.response.Error = message
	return b
}

// WithRaw attaches a diagnostic value.
func (b *ChatResponseBuilder) WithRaw(raw interface{}) *ChatResponseBuilder {
	b.response.Raw = raw
	return b
}

// WithHint attaches a hint.
func (b *ChatResponseBuilder) WithHint(hint string) *ChatResponseBuilder {
	b.response.Hint = hint
	return b
}

// Build constructs and returns the final ChatResponse.
func (b *ChatResponseBuilder) Build() ChatResponse {
	return b.response
}

// Convenience functions for common response patterns

// Success creates a successful chat response.
func Success(data StructuredResponse) ChatResponse {
	return NewChatResponseBuilder().WithData(data).Build()
}

// Error creates a failed chat response with a message.
func Error(message string) ChatResponse {
	return NewChatResponseBuilder().WithError(message).Build()
}

// ErrorWithHint creates a failed chat response with a message and a hint.
func ErrorWithHint(message, hint string) ChatResponse {
	return NewChatResponseBuilder().WithError(message).WithHint(hint).Build()
}

// ModelStatus reports backend reachability for the health endpoint.
type ModelStatus struct {
	Connected bool     `json:"connected"`
	Models    []string `json:"models,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string      `json:"status"`
	Ollama ModelStatus `json:"ollama"`
}

// ServiceInfo is the body of GET /.
type ServiceInfo struct {
	Name      string            `json:"name"`
	Version   string            `json:"version"`
	Endpoints map[string]string `json:"endpoints"`
}
