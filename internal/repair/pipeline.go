// Package repair turns raw model output into a structured response. It runs
// an ordered list of attempts, each re-checked by the schema package, and the
// first one that yields a conforming response wins.
package repair

import (
	"log/slog"
	"strings"

	"github.com/BTreeMap/PlatformAI/internal/models"
	"github.com/BTreeMap/PlatformAI/internal/schema"
)

// Attempt names, in the order they run.
const (
	AttemptGreeting      = "greeting"
	AttemptValidate      = "validate"
	AttemptModeRepair    = "mode-repair"
	AttemptPlainText     = "plain-text"
	AttemptFinalFallback = "final-fallback"
)

// Input is everything the pipeline looks at for one request.
type Input struct {
	Message string // the user's original message
	Output  string // the model's raw completion
}

// Outcome is the pipeline result. When OK is false every attempt failed and
// Error and Raw carry the diagnostic of the initial validation.
type Outcome struct {
	OK       bool
	Response models.StructuredResponse
	Attempt  string
	Error    string
	Raw      any
}

// state is shared by the attempts of a single run.
type state struct {
	input   Input
	text    string
	first   schema.Result
	checked bool
}

// initial validates the trimmed output once and caches the result.
func (s *state) initial() schema.Result {
	if !s.checked {
		s.first = schema.Validate(s.text)
		s.checked = true
	}
	return s.first
}

type attempt struct {
	name string
	run  func(*state) (models.StructuredResponse, bool)
}

// Pipeline runs the repair attempts in order. It holds no per-request state
// and is safe for concurrent use.
type Pipeline struct {
	attempts []attempt
}

// New returns the pipeline with the standard attempt order.
func New() *Pipeline {
	return &Pipeline{attempts: []attempt{
		{AttemptGreeting, greetingShortcut},
		{AttemptValidate, validateAsIs},
		{AttemptModeRepair, repairMode},
		{AttemptPlainText, wrapPlainText},
		{AttemptFinalFallback, finalFallback},
	}}
}

// Attempts lists the attempt names in execution order.
func (p *Pipeline) Attempts() []string {
	names := make([]string, len(p.attempts))
	for i, a := range p.attempts {
		names[i] = a.name
	}
	return names
}

// Run executes the attempts until one produces a response that conforms to
// the published schema.
func (p *Pipeline) Run(in Input) Outcome {
	s := &state{input: in, text: strings.TrimSpace(in.Output)}

	for _, a := range p.attempts {
		resp, ok := a.run(s)
		if !ok {
			continue
		}
		if err := schema.Conforms(resp); err != nil {
			slog.Warn("Pipeline.Run: attempt produced a non-conforming response", "attempt", a.name, "mode", resp.Mode, "error", err)
			continue
		}
		if a.name != AttemptValidate {
			slog.Info("Pipeline.Run: model output repaired", "attempt", a.name, "mode", resp.Mode)
		}
		return Outcome{OK: true, Response: resp, Attempt: a.name}
	}

	first := s.initial()
	slog.Warn("Pipeline.Run: all repair attempts exhausted", "error", first.Error)
	return Outcome{Error: first.Error, Raw: first.Raw}
}
