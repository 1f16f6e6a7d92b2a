// Package genai provides the model backend client for PlatformAI.
//
// It talks to any OpenAI-compatible chat completions endpoint, by default the
// one a local Ollama server exposes under /v1.
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// Default configuration constants
const (
	// DefaultBaseURL is where a local Ollama server listens.
	DefaultBaseURL = "http://127.0.0.1:11434"
	// DefaultModel is the model requested when none is configured.
	DefaultModel = "gemma3:4b"
	// DefaultAPIKey is sent when no key is configured. Ollama ignores it.
	DefaultAPIKey = "ollama"
	// DefaultTemperature is the sampling temperature for completions.
	DefaultTemperature = 0.7
	// DefaultTimeout bounds a single completion call.
	DefaultTimeout = 60 * time.Second
	// HealthTimeout bounds a model listing call.
	HealthTimeout = 5 * time.Second
)

// Error variables for better error handling and testability
var (
	ErrNoChoicesReturned  = errors.New("no choices returned")
	ErrBackendUnavailable = errors.New("model backend unavailable")
	ErrBackendTimeout     = errors.New("model backend timed out")
	ErrInvalidBaseURL     = errors.New("invalid backend base URL")
)

// chatService defines minimal interface for chat completions.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

// modelService defines minimal interface for listing served models.
type modelService interface {
	List(ctx context.Context) ([]string, error)
}

// completionsAdapter exposes the SDK completion service as a chatService.
type completionsAdapter struct {
	svc *openai.ChatCompletionService
}

func (a completionsAdapter) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := a.svc.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// modelsAdapter exposes the SDK model service as a modelService.
type modelsAdapter struct {
	svc *openai.ModelService
}

func (a modelsAdapter) List(ctx context.Context) ([]string, error) {
	page, err := a.svc.List(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		names = append(names, m.ID)
	}
	return names, nil
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	Timeout     time.Duration
	DebugMode   bool
	StateDir    string
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the API key sent to the backend.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithBaseURL sets the backend host, e.g. http://127.0.0.1:11434.
func WithBaseURL(u string) Option {
	return func(o *Opts) { o.BaseURL = u }
}

// WithModel sets the model name.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(temp float64) Option {
	return func(o *Opts) { o.Temperature = temp }
}

// WithTimeout sets the deadline of a single completion call.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// WithDebugMode enables writing every call to <state-dir>/debug.
func WithDebugMode(enabled bool) Option {
	return func(o *Opts) { o.DebugMode = enabled }
}

// WithStateDir sets the directory debug logs are written under.
func WithStateDir(dir string) Option {
	return func(o *Opts) { o.StateDir = dir }
}

// Client wraps the chat completion and model listing services.
type Client struct {
	chat        chatService
	models      modelService
	model       string
	temperature float64
	timeout     time.Duration
	debugMode   bool
	stateDir    string
}

// NewClient creates a GenAI client. Unset options fall back to the Default constants.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{Temperature: DefaultTemperature}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.APIKey == "" {
		cfg.APIKey = DefaultAPIKey
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	endpoint, err := apiEndpoint(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	slog.Debug("GenAI client config loaded",
		"endpoint", endpoint,
		"model", cfg.Model,
		"temperature", cfg.Temperature,
		"timeout", cfg.Timeout,
		"debug", cfg.DebugMode)

	cli := openai.NewClient(
		option.WithBaseURL(endpoint),
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	)
	return &Client{
		chat:        completionsAdapter{svc: &cli.Chat.Completions},
		models:      modelsAdapter{svc: &cli.Models},
		model:       cfg.Model,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		debugMode:   cfg.DebugMode,
		stateDir:    cfg.StateDir,
	}, nil
}

// apiEndpoint turns a host URL into the OpenAI-compatible API root.
func apiEndpoint(base string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidBaseURL, base)
	}
	path := strings.TrimRight(u.Path, "/")
	if !strings.HasSuffix(path, "/v1") {
		path += "/v1"
	}
	u.Path = path + "/"
	return u.String(), nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// GeneratePromptWithContext sends one system and one user message and returns
// the text of the first choice. The backend is asked for a JSON object, but
// nothing about the returned text is guaranteed. The call is bounded by the
// configured timeout; a result arriving after the deadline is discarded.
func (c *Client) GeneratePromptWithContext(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Temperature: openai.Float(c.temperature),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	}

	start := time.Now()
	resp, err := c.chat.Create(callCtx, params)
	if ctxErr := callCtx.Err(); ctxErr != nil {
		slog.Warn("Client.GeneratePromptWithContext: backend call did not finish in time", "elapsed", time.Since(start), "timeout", c.timeout, "error", ctxErr)
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w after %s", ErrBackendTimeout, c.timeout)
		}
		return "", fmt.Errorf("backend call cancelled: %w", ctxErr)
	}
	if err != nil {
		slog.Error("Client.GeneratePromptWithContext: backend call failed", "error", err)
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		slog.Error("Client.GeneratePromptWithContext: no choices returned")
		return "", ErrNoChoicesReturned
	}

	content := resp.Choices[0].Message.Content
	slog.Debug("Client.GeneratePromptWithContext: completion received", "elapsed", time.Since(start), "length", len(content))
	if c.debugMode {
		c.writeDebugLog("GeneratePromptWithContext", params, resp)
	}
	return content, nil
}

// ListModels returns the names of the models the backend serves.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, HealthTimeout)
	defer cancel()
	names, err := c.models.List(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return names, nil
}

// classify maps transport failures onto the backend sentinel errors.
func classify(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrBackendTimeout, err)
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("backend returned status %d: %w", apiErr.StatusCode, err)
	}
	return fmt.Errorf("backend error: %w", err)
}

// debugLogEntry is the JSON document written per call in debug mode.
type debugLogEntry struct {
	Timestamp string      `json:"timestamp"`
	Method    string      `json:"method"`
	Model     string      `json:"model"`
	Params    interface{} `json:"params"`
	Response  interface{} `json:"response"`
}

// writeDebugLog records a call under <state-dir>/debug. Failures are logged and ignored.
func (c *Client) writeDebugLog(method string, params, response interface{}) {
	if c.stateDir == "" {
		slog.Warn("Client.writeDebugLog: debug mode enabled without a state directory")
		return
	}
	dir := filepath.Join(c.stateDir, "debug")
	if err := os.MkdirAll(dir, 0755); err != nil {
		slog.Error("Client.writeDebugLog: failed to create debug directory", "error", err, "dir", dir)
		return
	}
	now := time.Now().UTC()
	entry := debugLogEntry{
		Timestamp: now.Format(time.RFC3339Nano),
		Method:    method,
		Model:     c.model,
		Params:    params,
		Response:  response,
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		slog.Error("Client.writeDebugLog: failed to marshal debug entry", "error", err)
		return
	}
	name := fmt.Sprintf("%s_%s.json", now.Format("20060102T150405.000000000"), method)
	if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
		slog.Error("Client.writeDebugLog: failed to write debug entry", "error", err)
	}
}
