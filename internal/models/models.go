// Package models defines the core data structures for PlatformAI.
//
// It includes the structured response envelope returned to the chat UI, the
// per-mode payloads, and the exchange receipts shared across modules.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Mode selects which of the three response schemas applies.
type Mode string

const (
	// ModeQNA answers a question about the platform.
	ModeQNA Mode = "QNA"
	// ModeWorkflow describes an automation workflow as nodes and edges.
	ModeWorkflow Mode = "WORKFLOW"
	// ModeTask describes a one-off task as ordered steps.
	ModeTask Mode = "TASK"
)

// ValidModes lists the canonical modes in their documented order.
var ValidModes = []Mode{ModeQNA, ModeWorkflow, ModeTask}

// Error variables for better error handling and testability
var (
	ErrInvalidMode     = errors.New("invalid mode")
	ErrModeDataMissing = errors.New("mode data is required")
	ErrModeMismatch    = errors.New("mode does not match data")
)

// IsValidMode checks if the given mode is one of the canonical modes.
func IsValidMode(m Mode) bool {
	switch m {
	case ModeQNA, ModeWorkflow, ModeTask:
		return true
	default:
		return false
	}
}

// ModeData is implemented by the three per-mode payloads.
type ModeData interface {
	Mode() Mode
}

// QNAData is the payload of a question-answer response.
type QNAData struct {
	Answer              string   `json:"answer"`
	RelatedFeatures     []string `json:"related_features"`
	FollowUpSuggestions []string `json:"follow_up_suggestions"`
}

// Mode implements ModeData.
func (QNAData) Mode() Mode { return ModeQNA }

// WorkflowData is the payload of a workflow-definition response.
type WorkflowData struct {
	WorkflowName string `json:"workflow_name"`
	Description  string `json:"description,omitempty"`
	Nodes        []Node `json:"nodes"`
	Edges        []Edge `json:"edges"`
}

// Mode implements ModeData.
func (WorkflowData) Mode() Mode { return ModeWorkflow }

// Node is a single workflow step. Type is usually one of the NodeType constants
// but any non-empty string is accepted.
type Node struct {
	ID     int              `json:"id"`
	Type   string           `json:"type"`
	Name   string           `json:"name"`
	Config map[string]Value `json:"config,omitempty"`
}

// Recommended node types.
const (
	NodeTypeTrigger   = "trigger"
	NodeTypeCondition = "condition"
	NodeTypeAction    = "action"
	NodeTypeDelay     = "delay"
	NodeTypeBranch    = "branch"
	NodeTypeEnd       = "end"
)

// Edge connects two nodes by id. The ids are not checked against the node list.
type Edge struct {
	From      int    `json:"from"`
	To        int    `json:"to"`
	Condition string `json:"condition,omitempty"`
}

// TaskData is the payload of a task-definition response.
type TaskData struct {
	TaskType    string           `json:"task_type"`
	TaskName    string           `json:"task_name"`
	Description string           `json:"description,omitempty"`
	Inputs      map[string]Value `json:"inputs,omitempty"`
	Steps       []Step           `json:"steps"`
}

// Mode implements ModeData.
func (TaskData) Mode() Mode { return ModeTask }

// Step is one action of a task. Step is the optional ordinal, zero when absent.
type Step struct {
	Step   int              `json:"step,omitempty"`
	Action string           `json:"action"`
	Config map[string]Value `json:"config,omitempty"`
}

// StructuredResponse is the canonical output unit. The shape of Data is always
// determined by Mode.
type StructuredResponse struct {
	Mode Mode     `json:"mode"`
	Data ModeData `json:"data"`
}

// NewStructuredResponse pairs data with its own mode.
func NewStructuredResponse(data ModeData) StructuredResponse {
	return StructuredResponse{Mode: data.Mode(), Data: data}
}

// MarshalJSON rejects responses whose data does not belong to their mode.
func (r StructuredResponse) MarshalJSON() ([]byte, error) {
	if r.Data == nil {
		return nil, ErrModeDataMissing
	}
	if r.Data.Mode() != r.Mode {
		return nil, fmt.Errorf("%w: mode %s carries %s data", ErrModeMismatch, r.Mode, r.Data.Mode())
	}
	type wire struct {
		Mode Mode     `json:"mode"`
		Data ModeData `json:"data"`
	}
	return json.Marshal(wire{Mode: r.Mode, Data: r.Data})
}

// UnmarshalJSON decodes data into the payload type selected by mode. It does no
// repair; use the schema package for untrusted input.
func (r *StructuredResponse) UnmarshalJSON(b []byte) error {
	var wire struct {
		Mode Mode            `json:"mode"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	if len(wire.Data) == 0 || string(wire.Data) == "null" {
		return ErrModeDataMissing
	}

	var data ModeData
	switch wire.Mode {
	case ModeQNA:
		var d QNAData
		if err := json.Unmarshal(wire.Data, &d); err != nil {
			return err
		}
		data = d
	case ModeWorkflow:
		var d WorkflowData
		if err := json.Unmarshal(wire.Data, &d); err != nil {
			return err
		}
		data = d
	case ModeTask:
		var d TaskData
		if err := json.Unmarshal(wire.Data, &d); err != nil {
			return err
		}
		data = d
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMode, wire.Mode)
	}

	r.Mode = wire.Mode
	r.Data = data
	return nil
}
