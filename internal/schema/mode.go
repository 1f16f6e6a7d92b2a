package schema

import (
	"fmt"
	"strings"

	"github.com/BTreeMap/PlatformAI/internal/models"
)

// NormalizeMode maps a loosely formatted mode label such as "qna", "Q&A" or
// "Workflow_Create" onto a canonical mode. The rules are ordered: a label
// containing both "TASK" and "WORKFLOW" resolves to WORKFLOW.
func NormalizeMode(label string) (models.Mode, bool) {
	upper := strings.ToUpper(strings.TrimSpace(label))
	switch {
	case upper == "":
		return "", false
	case strings.Contains(upper, "QNA") || upper == "Q&A" || upper == "QA":
		return models.ModeQNA, true
	case strings.Contains(upper, "WORKFLOW") || strings.Contains(upper, "AUTOMATION"):
		return models.ModeWorkflow, true
	case strings.Contains(upper, "TASK") || strings.Contains(upper, "ACTION"):
		return models.ModeTask, true
	case models.IsValidMode(models.Mode(upper)):
		return models.Mode(upper), true
	default:
		return "", false
	}
}

// modeLabel stringifies a decoded "mode" field. Absent, null and empty values
// yield "".
func modeLabel(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if !t {
			return ""
		}
		return "true"
	default:
		return fmt.Sprint(t)
	}
}

// ModeOf normalizes the "mode" field of a decoded object.
func ModeOf(obj map[string]any) (models.Mode, bool) {
	return NormalizeMode(modeLabel(obj["mode"]))
}

func validModesList() string {
	names := make([]string, len(models.ValidModes))
	for i, m := range models.ValidModes {
		names[i] = string(m)
	}
	return strings.Join(names, ", ")
}
