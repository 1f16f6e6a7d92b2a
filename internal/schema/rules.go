package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"github.com/BTreeMap/PlatformAI/internal/models"
)

// AnswerAliases are the keys a model sometimes uses instead of "answer".
var AnswerAliases = []string{"response", "text", "content", "message", "reply"}

// Rule violations. Only missing or malformed required scalars are reported;
// array fields are defaulted instead.
var (
	ErrAnswerRequired       = errors.New(`QNA response must have an "answer" string`)
	ErrWorkflowNameRequired = errors.New(`WORKFLOW must have a "workflow_name" string`)
	ErrNodesRequired        = errors.New(`WORKFLOW must have a non-empty "nodes" array`)
	ErrNodeNotObject        = errors.New("each node must be an object")
	ErrNodeID               = errors.New(`each node must have a numeric "id"`)
	ErrNodeType             = errors.New(`each node must have a "type" string`)
	ErrDuplicateNodeID      = errors.New("node ids must be unique")
	ErrTaskTypeRequired     = errors.New(`TASK must have a "task_type" string`)
	ErrTaskNameRequired     = errors.New(`TASK must have a "task_name" string`)
)

// Check applies the rules of mode to a decoded data object.
func Check(mode models.Mode, data map[string]any) (models.ModeData, error) {
	switch mode {
	case models.ModeQNA:
		return CheckQNA(data)
	case models.ModeWorkflow:
		return CheckWorkflow(data)
	case models.ModeTask:
		return CheckTask(data)
	default:
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidMode, mode)
	}
}

// CheckQNA requires a non-empty answer, taken from "answer" or, failing that,
// from the first alias key inside data holding one.
func CheckQNA(data map[string]any) (models.QNAData, error) {
	answer, ok := nonEmptyString(data["answer"])
	if !ok {
		answer, ok = FindString(data, AnswerAliases...)
	}
	if !ok {
		return models.QNAData{}, ErrAnswerRequired
	}
	return models.QNAData{
		Answer:              answer,
		RelatedFeatures:     stringList(data["related_features"]),
		FollowUpSuggestions: stringList(data["follow_up_suggestions"]),
	}, nil
}

// CheckWorkflow requires a name and at least one node with an integer id and a type.
func CheckWorkflow(data map[string]any) (models.WorkflowData, error) {
	name, ok := nonEmptyString(data["workflow_name"])
	if !ok {
		return models.WorkflowData{}, ErrWorkflowNameRequired
	}
	rawNodes, ok := data["nodes"].([]any)
	if !ok || len(rawNodes) == 0 {
		return models.WorkflowData{}, ErrNodesRequired
	}

	nodes := make([]models.Node, 0, len(rawNodes))
	seen := make(map[int]struct{}, len(rawNodes))
	for i, raw := range rawNodes {
		obj, ok := raw.(map[string]any)
		if !ok {
			return models.WorkflowData{}, fmt.Errorf("%w (node %d)", ErrNodeNotObject, i)
		}
		id, ok := intOf(obj["id"])
		if !ok {
			return models.WorkflowData{}, fmt.Errorf("%w (node %d)", ErrNodeID, i)
		}
		nodeType, ok := nonEmptyString(obj["type"])
		if !ok {
			return models.WorkflowData{}, fmt.Errorf("%w (node %d)", ErrNodeType, i)
		}
		if _, dup := seen[id]; dup {
			return models.WorkflowData{}, fmt.Errorf("%w (id %d)", ErrDuplicateNodeID, id)
		}
		seen[id] = struct{}{}

		nodeName, _ := obj["name"].(string)
		nodes = append(nodes, models.Node{
			ID:     id,
			Type:   nodeType,
			Name:   nodeName,
			Config: configOf(obj["config"]),
		})
	}

	description, _ := data["description"].(string)
	return models.WorkflowData{
		WorkflowName: name,
		Description:  description,
		Nodes:        nodes,
		Edges:        edgeList(data["edges"]),
	}, nil
}

// CheckTask requires a task type and a task name.
func CheckTask(data map[string]any) (models.TaskData, error) {
	taskType, ok := nonEmptyString(data["task_type"])
	if !ok {
		return models.TaskData{}, ErrTaskTypeRequired
	}
	taskName, ok := nonEmptyString(data["task_name"])
	if !ok {
		return models.TaskData{}, ErrTaskNameRequired
	}
	description, _ := data["description"].(string)
	return models.TaskData{
		TaskType:    taskType,
		TaskName:    taskName,
		Description: description,
		Inputs:      configOf(data["inputs"]),
		Steps:       stepList(data["steps"]),
	}, nil
}

// FindString returns the first non-empty string stored under one of keys.
func FindString(obj map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		if s, ok := nonEmptyString(obj[k]); ok {
			return s, true
		}
	}
	return "", false
}

func nonEmptyString(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// stringList keeps strings, stringifies numbers and booleans, and drops
// everything else. Non-arrays yield an empty list.
func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		switch t := item.(type) {
		case string:
			out = append(out, t)
		case json.Number:
			out = append(out, t.String())
		case float64:
			out = append(out, strconv.FormatFloat(t, 'f', -1, 64))
		case bool:
			out = append(out, strconv.FormatBool(t))
		}
	}
	return out
}

// edgeList keeps edges with integer endpoints and drops malformed ones.
func edgeList(v any) []models.Edge {
	items, ok := v.([]any)
	if !ok {
		return []models.Edge{}
	}
	out := make([]models.Edge, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			slog.Debug("schema.edgeList: dropping non-object edge", "index", i)
			continue
		}
		from, okFrom := intOf(obj["from"])
		to, okTo := intOf(obj["to"])
		if !okFrom || !okTo {
			slog.Debug("schema.edgeList: dropping edge without integer endpoints", "index", i)
			continue
		}
		condition, _ := obj["condition"].(string)
		out = append(out, models.Edge{From: from, To: to, Condition: condition})
	}
	return out
}

// stepList accepts step objects and bare strings, which become the action.
func stepList(v any) []models.Step {
	items, ok := v.([]any)
	if !ok {
		return []models.Step{}
	}
	out := make([]models.Step, 0, len(items))
	for _, item := range items {
		switch t := item.(type) {
		case string:
			out = append(out, models.Step{Action: t})
		case map[string]any:
			ordinal, _ := intOf(t["step"])
			action, _ := t["action"].(string)
			out = append(out, models.Step{Step: ordinal, Action: action, Config: configOf(t["config"])})
		}
	}
	return out
}

func configOf(v any) map[string]models.Value {
	obj, ok := v.(map[string]any)
	if !ok || len(obj) == 0 {
		return nil
	}
	m, err := models.ValueMapOf(obj)
	if err != nil {
		slog.Debug("schema.configOf: dropping unconvertible config", "error", err)
		return nil
	}
	return m
}

// intOf accepts integral JSON numbers.
func intOf(v any) (int, bool) {
	var f float64
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return int(i), true
		}
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case float64:
		f = t
	case int:
		return t, true
	default:
		return 0, false
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}
	return int(f), true
}
