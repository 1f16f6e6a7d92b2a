// Package render formats structured responses as plain text for channels
// that cannot show the web UI's cards, such as WhatsApp.
package render

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BTreeMap/PlatformAI/internal/models"
)

// Text renders resp the way the web UI lays it out, one section per block.
func Text(resp models.StructuredResponse) string {
	var b strings.Builder
	switch d := resp.Data.(type) {
	case models.QNAData:
		qna(&b, d)
	case models.WorkflowData:
		workflow(&b, d)
	case models.TaskData:
		task(&b, d)
	default:
		return ""
	}
	return strings.TrimRight(b.String(), "\n")
}

func qna(b *strings.Builder, d models.QNAData) {
	b.WriteString(d.Answer)
	b.WriteString("\n")
	if len(d.RelatedFeatures) > 0 {
		fmt.Fprintf(b, "\nRelated features: %s\n", strings.Join(d.RelatedFeatures, ", "))
	}
	if len(d.FollowUpSuggestions) > 0 {
		b.WriteString("\nFollow-up suggestions:\n")
		for _, s := range d.FollowUpSuggestions {
			fmt.Fprintf(b, "- %s\n", s)
		}
	}
}

func workflow(b *strings.Builder, d models.WorkflowData) {
	fmt.Fprintf(b, "Workflow: %s\n", d.WorkflowName)
	if d.Description != "" {
		fmt.Fprintf(b, "%s\n", d.Description)
	}
	b.WriteString("\nNodes:\n")
	for _, n := range d.Nodes {
		fmt.Fprintf(b, "%d. %s (%s)", n.ID, nodeName(n), n.Type)
		if c := config(n.Config); c != "" {
			fmt.Fprintf(b, " [%s]", c)
		}
		b.WriteString("\n")
	}
	if len(d.Edges) > 0 {
		b.WriteString("\nConnections:\n")
		for _, e := range d.Edges {
			fmt.Fprintf(b, "- Node %d -> Node %d", e.From, e.To)
			if e.Condition != "" {
				fmt.Fprintf(b, " (%s)", e.Condition)
			}
			b.WriteString("\n")
		}
	}
}

func task(b *strings.Builder, d models.TaskData) {
	fmt.Fprintf(b, "Task: %s [%s]\n", d.TaskName, d.TaskType)
	if d.Description != "" {
		fmt.Fprintf(b, "%s\n", d.Description)
	}
	if len(d.Inputs) > 0 {
		b.WriteString("\nInputs:\n")
		for _, k := range sortedKeys(d.Inputs) {
			fmt.Fprintf(b, "- %s: %s\n", k, d.Inputs[k].String())
		}
	}
	if len(d.Steps) > 0 {
		b.WriteString("\nExecution steps:\n")
		for i, s := range d.Steps {
			num := s.Step
			if num == 0 {
				num = i + 1
			}
			fmt.Fprintf(b, "%d. %s", num, s.Action)
			if c := config(s.Config); c != "" {
				fmt.Fprintf(b, " (%s)", c)
			}
			b.WriteString("\n")
		}
	}
}

// nodeName falls back to the node type when the model gave no name.
func nodeName(n models.Node) string {
	if n.Name != "" {
		return n.Name
	}
	return n.Type
}

func config(c map[string]models.Value) string {
	if len(c) == 0 {
		return ""
	}
	parts := make([]string, 0, len(c))
	for _, k := range sortedKeys(c) {
		parts = append(parts, k+": "+c[k].String())
	}
	return strings.Join(parts, ", ")
}

func sortedKeys(m map[string]models.Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
