// Package relay runs one chat exchange: a single backend call followed by the
// repair pipeline, with a receipt recorded for every request.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/PlatformAI/internal/genai"
	"github.com/BTreeMap/PlatformAI/internal/models"
	"github.com/BTreeMap/PlatformAI/internal/prompt"
	"github.com/BTreeMap/PlatformAI/internal/repair"
	"github.com/BTreeMap/PlatformAI/internal/store"
)

// ErrEmptyMessage is returned for a message that is blank after trimming.
var ErrEmptyMessage = errors.New("message cannot be empty")

// logPreview bounds model output written to debug logs.
const logPreview = 200

// Generator is the backend call the relay depends on.
type Generator interface {
	GeneratePromptWithContext(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Result describes how one exchange ended.
type Result struct {
	ID       string
	Kind     models.Outcome
	Response models.StructuredResponse // set when Kind is OutcomeOK
	Attempt  string                    // repair attempt that produced Response
	Error    string                    // validation diagnostic when Kind is OutcomeInvalid
	Raw      any                       // diagnostic value when Kind is OutcomeInvalid
	Err      error                     // input or backend error
}

// OK reports whether a structured response was produced.
func (r Result) OK() bool { return r.Kind == models.OutcomeOK }

// Opts holds configuration options for the relay service.
type Opts struct {
	SystemPrompt string
	Receipts     store.ReceiptRepo
	Pipeline     *repair.Pipeline
}

// Option defines a configuration option for the relay service.
type Option func(*Opts)

// WithSystemPrompt replaces the built-in system prompt.
func WithSystemPrompt(p string) Option {
	return func(o *Opts) { o.SystemPrompt = p }
}

// WithReceipts records a receipt per exchange in repo.
func WithReceipts(repo store.ReceiptRepo) Option {
	return func(o *Opts) { o.Receipts = repo }
}

// WithPipeline overrides the repair pipeline.
func WithPipeline(p *repair.Pipeline) Option {
	return func(o *Opts) { o.Pipeline = p }
}

// Service relays messages to the backend. It holds no per-request state and
// is safe for concurrent use.
type Service struct {
	gen          Generator
	pipeline     *repair.Pipeline
	systemPrompt string
	receipts     store.ReceiptRepo
}

// NewService creates a relay service over gen.
func NewService(gen Generator, opts ...Option) *Service {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = prompt.System()
	}
	if cfg.Pipeline == nil {
		cfg.Pipeline = repair.New()
	}
	return &Service{
		gen:          gen,
		pipeline:     cfg.Pipeline,
		systemPrompt: cfg.SystemPrompt,
		receipts:     cfg.Receipts,
	}
}

// Handle relays message and returns the outcome. The backend is called at
// most once; nothing about a previous exchange is reused.
func (s *Service) Handle(ctx context.Context, message string, channel models.Channel) Result {
	start := time.Now()
	res := Result{ID: uuid.NewString()}
	defer func() { s.record(res, channel, start) }()

	if strings.TrimSpace(message) == "" {
		res.Kind = models.OutcomeInputError
		res.Err = ErrEmptyMessage
		return res
	}

	output, err := s.gen.GeneratePromptWithContext(ctx, s.systemPrompt, message)
	if errors.Is(err, genai.ErrNoChoicesReturned) {
		output, err = "", nil
	}
	if err != nil {
		res.Kind = backendOutcome(err)
		res.Err = err
		slog.Error("Service.Handle: backend call failed", "id", res.ID, "outcome", res.Kind, "error", err)
		return res
	}
	slog.Debug("Service.Handle: backend output", "id", res.ID, "output", preview(output))

	out := s.pipeline.Run(repair.Input{Message: message, Output: output})
	if !out.OK {
		res.Kind = models.OutcomeInvalid
		res.Error = out.Error
		res.Raw = out.Raw
		slog.Warn("Service.Handle: model output could not be repaired", "id", res.ID, "error", out.Error)
		return res
	}

	res.Kind = models.OutcomeOK
	res.Response = out.Response
	res.Attempt = out.Attempt
	slog.Info("Service.Handle: exchange completed", "id", res.ID, "mode", out.Response.Mode, "attempt", out.Attempt, "elapsed", time.Since(start))
	return res
}

// backendOutcome classifies a backend error.
func backendOutcome(err error) models.Outcome {
	switch {
	case errors.Is(err, genai.ErrBackendUnavailable):
		return models.OutcomeBackendUnavailable
	case errors.Is(err, genai.ErrBackendTimeout):
		return models.OutcomeBackendTimeout
	default:
		return models.OutcomeBackendError
	}
}

func (s *Service) record(res Result, channel models.Channel, start time.Time) {
	if s.receipts == nil {
		return
	}
	r := models.Receipt{
		ID:        res.ID,
		Channel:   channel,
		Outcome:   res.Kind,
		Attempt:   res.Attempt,
		LatencyMS: time.Since(start).Milliseconds(),
		Time:      start.Unix(),
	}
	if res.OK() {
		r.Mode = res.Response.Mode
	}
	if err := s.receipts.AddReceipt(r); err != nil {
		slog.Error("Service.record: failed to store receipt", "id", res.ID, "error", err)
	}
}

func preview(s string) string {
	runes := []rune(s)
	if len(runes) <= logPreview {
		return s
	}
	return string(runes[:logPreview]) + repair.TruncationMarker
}
