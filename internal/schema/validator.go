// Package schema validates untrusted model output against the three response
// shapes (QNA, WORKFLOW, TASK) and normalizes it into a StructuredResponse.
package schema

import (
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/BTreeMap/PlatformAI/internal/models"
)

// Validation failure messages.
const (
	MsgInvalidJSON = "Invalid JSON response from AI"
	MsgInvalidData = "Invalid data object (must be an object, not array or primitive)"
)

// MsgInvalidMode names the allowed mode set.
var MsgInvalidMode = "Invalid mode. Expected one of: " + validModesList()

// Result is the outcome of validating one candidate.
type Result struct {
	Valid    bool
	Response models.StructuredResponse
	// Error and Raw are set when Valid is false. Raw holds the original text when
	// the candidate is not JSON, and the decoded value otherwise.
	Error string
	Raw   any
}

// RawObject returns Raw as a decoded JSON object, if it is one.
func (r Result) RawObject() (map[string]any, bool) {
	obj, ok := r.Raw.(map[string]any)
	return obj, ok
}

// RawText returns Raw as text, if it is the original undecodable string.
func (r Result) RawText() (string, bool) {
	s, ok := r.Raw.(string)
	return s, ok
}

// Decode parses text as a single JSON value. Numbers decode as json.Number.
func Decode(text string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after JSON value")
	}
	return v, nil
}

// Validate parses raw model text and checks it against the rules of its mode.
func Validate(text string) Result {
	parsed, err := Decode(text)
	if err != nil {
		return Result{Error: MsgInvalidJSON, Raw: text}
	}
	obj, ok := parsed.(map[string]any)
	if !ok {
		return Result{Error: MsgInvalidMode, Raw: parsed}
	}
	return ValidateObject(obj)
}

// ValidateObject checks an already decoded object. The mode field is
// canonicalized in place, and a missing data field is replaced by an empty
// object, so Raw on failure reflects those fixes.
func ValidateObject(obj map[string]any) Result {
	mode, ok := ModeOf(obj)
	if !ok {
		return Result{Error: MsgInvalidMode, Raw: obj}
	}
	obj["mode"] = string(mode)

	if obj["data"] == nil {
		obj["data"] = map[string]any{}
	}
	data, ok := obj["data"].(map[string]any)
	if !ok {
		return Result{Error: MsgInvalidData, Raw: obj}
	}

	modeData, err := Check(mode, data)
	if err != nil {
		return Result{Error: err.Error(), Raw: obj}
	}
	return Result{Valid: true, Response: models.StructuredResponse{Mode: mode, Data: modeData}}
}

// ValidateResponse re-validates an already typed response by round-tripping it
// through JSON. A valid response comes back unchanged.
func ValidateResponse(resp models.StructuredResponse) Result {
	b, err := json.Marshal(resp)
	if err != nil {
		return Result{Error: err.Error(), Raw: nil}
	}
	return Validate(string(b))
}
