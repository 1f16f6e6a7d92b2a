// Package intent guesses which response mode a user most likely wanted from
// the text of their message. It is a keyword heuristic used only when the
// model's own mode signal cannot be recovered.
package intent

import (
	"regexp"
	"strings"

	"github.com/BTreeMap/PlatformAI/internal/models"
)

// Keyword tables, checked in this order. The first table with a match wins.
var (
	workflowKeywords = []string{"create", "build", "design", "workflow", "automation"}
	taskKeywords     = []string{"task", "setup", "perform"}
	questionKeywords = []string{"what", "how", "which", "why", "when", "where", "?", "explain", "tell me"}
)

var greetingPattern = regexp.MustCompile(`(?i)^(hi|hello|hey|hiya|yo)\s*[!.]?$`)

// Detect returns the mode the message most likely asks for. It never fails;
// messages matching no keyword are treated as questions.
func Detect(message string) models.Mode {
	lower := strings.ToLower(message)
	switch {
	case containsAny(lower, workflowKeywords):
		return models.ModeWorkflow
	case containsAny(lower, taskKeywords):
		return models.ModeTask
	case containsAny(lower, questionKeywords):
		return models.ModeQNA
	default:
		return models.ModeQNA
	}
}

// IsGreeting reports whether the message is a bare greeting such as "hi" or "Hello!".
func IsGreeting(message string) bool {
	return greetingPattern.MatchString(strings.TrimSpace(message))
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
