package repair

import (
	"log/slog"

	"github.com/BTreeMap/PlatformAI/internal/intent"
	"github.com/BTreeMap/PlatformAI/internal/models"
	"github.com/BTreeMap/PlatformAI/internal/schema"
)

// Plain-text answers longer than MaxPlainTextAnswer characters are cut and
// suffixed with TruncationMarker.
const (
	MaxPlainTextAnswer = 500
	TruncationMarker   = "…"
)

// Fixed texts used by synthesized responses.
const (
	GreetingAnswer    = "Hello! I'm PlatformAI. Ask me about automations, workflows, or how to create campaigns."
	PlaceholderAnswer = "I understand your question. Let me help you with that."
	ApologyAnswer     = "I apologize, but I encountered an issue processing your request. Could you please rephrase your question?"
	UntitledWorkflow  = "Untitled"
)

// answerKeys are searched at the top level of a parsed object when a QNA
// answer is missing from its data.
var answerKeys = append([]string{"answer"}, schema.AnswerAliases...)

// GreetingResponse is returned when the model says nothing to a bare greeting.
func GreetingResponse() models.StructuredResponse {
	return models.NewStructuredResponse(models.QNAData{
		Answer:              GreetingAnswer,
		RelatedFeatures:     []string{"automations", "workflows", "campaigns"},
		FollowUpSuggestions: []string{"What is an automation?", "Create onboarding workflow", "Setup email campaign"},
	})
}

// greetingShortcut pre-empts parsing when the model returned nothing and the
// user only said hello.
func greetingShortcut(s *state) (models.StructuredResponse, bool) {
	if s.text != "" || !intent.IsGreeting(s.input.Message) {
		return models.StructuredResponse{}, false
	}
	return GreetingResponse(), true
}

func validateAsIs(s *state) (models.StructuredResponse, bool) {
	res := s.initial()
	return res.Response, res.Valid
}

// repairMode fixes JSON objects that parsed but failed the schema. The mode
// comes from the object's own label or, failing that, from the user's
// message. Fields the model left at the top level are moved into data, and a
// QNA answer is synthesized as a last resort.
func repairMode(s *state) (models.StructuredResponse, bool) {
	parsed, ok := s.initial().RawObject()
	if !ok {
		return models.StructuredResponse{}, false
	}

	mode, ok := schema.ModeOf(parsed)
	if !ok {
		mode = intent.Detect(s.input.Message)
		slog.Info("repairMode: mode detected from message", "mode", mode, "label", parsed["mode"])
	}

	data := make(map[string]any)
	if existing, ok := parsed["data"].(map[string]any); ok {
		for k, v := range existing {
			data[k] = v
		}
	}
	for k, v := range parsed {
		if k == "mode" || k == "data" {
			continue
		}
		if _, exists := data[k]; !exists {
			data[k] = v
		}
	}

	if mode == models.ModeQNA {
		if _, found := schema.FindString(data, answerKeys...); !found {
			slog.Info("repairMode: no answer found, using placeholder")
			data["answer"] = PlaceholderAnswer
		}
	}

	res := schema.ValidateObject(map[string]any{"mode": string(mode), "data": data})
	if !res.Valid {
		slog.Debug("repairMode: repaired object still invalid", "mode", mode, "error", res.Error)
	}
	return res.Response, res.Valid
}

// wrapPlainText treats prose (anything that is not a JSON object) as the
// answer. The mode still comes from the user's message, so prose in reply to
// a workflow request does not validate.
func wrapPlainText(s *state) (models.StructuredResponse, bool) {
	if _, isObject := s.initial().RawObject(); isObject || s.text == "" {
		return models.StructuredResponse{}, false
	}
	mode := intent.Detect(s.input.Message)
	res := schema.ValidateObject(map[string]any{
		"mode": string(mode),
		"data": map[string]any{
			"answer":                TruncateAnswer(s.text),
			"related_features":      []any{},
			"follow_up_suggestions": []any{},
		},
	})
	if !res.Valid {
		slog.Debug("wrapPlainText: wrapped text does not fit detected mode", "mode", mode, "error", res.Error)
	}
	return res.Response, res.Valid
}

// finalFallback builds an apology for questions and an empty workflow shell
// for everything else. The shell has no nodes and is rejected by the
// conformance gate, which surfaces the request as unrecoverable.
func finalFallback(s *state) (models.StructuredResponse, bool) {
	mode := intent.Detect(s.input.Message)
	slog.Info("finalFallback: synthesizing response", "mode", mode)
	if mode == models.ModeQNA {
		return models.NewStructuredResponse(models.QNAData{
			Answer:              ApologyAnswer,
			RelatedFeatures:     []string{},
			FollowUpSuggestions: []string{},
		}), true
	}
	return models.NewStructuredResponse(models.WorkflowData{
		WorkflowName: UntitledWorkflow,
		Nodes:        []models.Node{},
		Edges:        []models.Edge{},
	}), true
}

// TruncateAnswer limits text to MaxPlainTextAnswer characters.
func TruncateAnswer(text string) string {
	runes := []rune(text)
	if len(runes) <= MaxPlainTextAnswer {
		return text
	}
	return string(runes[:MaxPlainTextAnswer]) + TruncationMarker
}
