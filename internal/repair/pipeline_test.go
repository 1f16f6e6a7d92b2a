package repair

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/PlatformAI/internal/models"
	"github.com/BTreeMap/PlatformAI/internal/schema"
)

func qna(t *testing.T, out Outcome) models.QNAData {
	t.Helper()
	require.True(t, out.OK, "expected success, got error %q", out.Error)
	require.Equal(t, models.ModeQNA, out.Response.Mode)
	data, ok := out.Response.Data.(models.QNAData)
	require.True(t, ok, "expected QNA data, got %T", out.Response.Data)
	return data
}

func TestAttemptOrder(t *testing.T) {
	assert.Equal(t,
		[]string{AttemptGreeting, AttemptValidate, AttemptModeRepair, AttemptPlainText, AttemptFinalFallback},
		New().Attempts())
}

func TestRun_ValidOutputPassesThrough(t *testing.T) {
	out := New().Run(Input{
		Message: "What is an automation?",
		Output:  `  {"mode":"QNA","data":{"answer":"A rule that runs by itself."}}  `,
	})
	data := qna(t, out)
	assert.Equal(t, AttemptValidate, out.Attempt)
	assert.Equal(t, "A rule that runs by itself.", data.Answer)
}

func TestRun_GreetingShortcut(t *testing.T) {
	out := New().Run(Input{Message: "hello", Output: "   "})
	data := qna(t, out)
	assert.Equal(t, AttemptGreeting, out.Attempt)
	assert.Equal(t, GreetingResponse().Data, data)
}

func TestRun_GreetingShortcutOnlyForEmptyOutput(t *testing.T) {
	out := New().Run(Input{Message: "hi", Output: `{"mode":"QNA","data":{"answer":"Hey!"}}`})
	data := qna(t, out)
	assert.Equal(t, AttemptValidate, out.Attempt)
	assert.Equal(t, "Hey!", data.Answer)
}

func TestRun_TopLevelAliasRecoveredByModeRepair(t *testing.T) {
	out := New().Run(Input{Message: "pricing?", Output: `{"mode":"QNA","data":{},"response":"hi"}`})
	data := qna(t, out)
	assert.Equal(t, AttemptModeRepair, out.Attempt)
	assert.Equal(t, "hi", data.Answer)
	assert.Equal(t, []string{}, data.RelatedFeatures)
	assert.Equal(t, []string{}, data.FollowUpSuggestions)
}

func TestRun_ModeRepairKeepsTopLevelLists(t *testing.T) {
	out := New().Run(Input{
		Message: "tell me about billing",
		Output:  `{"mode":"Q&A","answer":"Billing is monthly.","related_features":["billing"]}`,
	})
	data := qna(t, out)
	assert.Equal(t, AttemptModeRepair, out.Attempt)
	assert.Equal(t, "Billing is monthly.", data.Answer)
	assert.Equal(t, []string{"billing"}, data.RelatedFeatures)
}

func TestRun_ModeRepairUsesIntentForUnknownLabel(t *testing.T) {
	out := New().Run(Input{
		Message: "Create onboarding workflow",
		Output:  `{"mode":"plan","data":{"workflow_name":"Onboarding","nodes":[{"id":1,"type":"trigger","name":"Signup"}]}}`,
	})
	require.True(t, out.OK, out.Error)
	assert.Equal(t, AttemptModeRepair, out.Attempt)
	assert.Equal(t, models.ModeWorkflow, out.Response.Mode)
}

func TestRun_ModeRepairHoistsMissingData(t *testing.T) {
	out := New().Run(Input{
		Message: "Setup email campaign",
		Output:  `{"task_type":"email","task_name":"Campaign","steps":[{"step":1,"action":"pick list"}]}`,
	})
	require.True(t, out.OK, out.Error)
	assert.Equal(t, AttemptModeRepair, out.Attempt)
	data, ok := out.Response.Data.(models.TaskData)
	require.True(t, ok)
	assert.Equal(t, "Campaign", data.TaskName)
	assert.Len(t, data.Steps, 1)
}

func TestRun_ModeRepairPlaceholderAnswer(t *testing.T) {
	out := New().Run(Input{Message: "what now", Output: `{"mode":"qna","data":[1,2,3]}`})
	data := qna(t, out)
	assert.Equal(t, AttemptModeRepair, out.Attempt)
	assert.Equal(t, PlaceholderAnswer, data.Answer)
}

func TestRun_PlainTextFallback(t *testing.T) {
	out := New().Run(Input{Message: "How do I do X?", Output: "I think you should try X"})
	data := qna(t, out)
	assert.Equal(t, AttemptPlainText, out.Attempt)
	assert.Equal(t, "I think you should try X", data.Answer)
}

func TestRun_PlainTextForNonObjectJSON(t *testing.T) {
	out := New().Run(Input{Message: "why", Output: `"quoted prose"`})
	data := qna(t, out)
	assert.Equal(t, AttemptPlainText, out.Attempt)
	assert.Equal(t, `"quoted prose"`, data.Answer)
}

func TestRun_PlainTextTruncationBoundary(t *testing.T) {
	exact := strings.Repeat("a", MaxPlainTextAnswer)
	out := New().Run(Input{Message: "how?", Output: exact})
	assert.Equal(t, exact, qna(t, out).Answer)

	over := strings.Repeat("b", MaxPlainTextAnswer+1)
	out = New().Run(Input{Message: "how?", Output: over})
	assert.Equal(t, strings.Repeat("b", MaxPlainTextAnswer)+TruncationMarker, qna(t, out).Answer)
}

func TestTruncateAnswer_CountsCharacters(t *testing.T) {
	text := strings.Repeat("é", MaxPlainTextAnswer)
	assert.Equal(t, text, TruncateAnswer(text))
	assert.Equal(t, text+TruncationMarker, TruncateAnswer(text+"é"))
}

func TestRun_FinalFallbackApologyForQuestions(t *testing.T) {
	out := New().Run(Input{
		Message: "tell me about pricing",
		Output:  `{"mode":"WORKFLOW","data":{"workflow_name":"W","nodes":[]}}`,
	})
	data := qna(t, out)
	assert.Equal(t, AttemptFinalFallback, out.Attempt)
	assert.Equal(t, ApologyAnswer, data.Answer)
}

func TestRun_EmptyOutputNonGreeting(t *testing.T) {
	out := New().Run(Input{Message: "pricing", Output: ""})
	data := qna(t, out)
	assert.Equal(t, AttemptFinalFallback, out.Attempt)
	assert.Equal(t, ApologyAnswer, data.Answer)
}

func TestRun_UnrecoverableWorkflowShell(t *testing.T) {
	out := New().Run(Input{Message: "Create onboarding workflow", Output: "Sure, here is your workflow!"})
	assert.False(t, out.OK)
	assert.Equal(t, schema.MsgInvalidJSON, out.Error)
	assert.Equal(t, "Sure, here is your workflow!", out.Raw)
}

func TestRun_UnrecoverableKeepsInitialDiagnostic(t *testing.T) {
	out := New().Run(Input{
		Message: "build an automation",
		Output:  `{"mode":"WORKFLOW","data":{"nodes":[{"id":1,"type":"trigger"}]}}`,
	})
	assert.False(t, out.OK)
	assert.Equal(t, schema.ErrWorkflowNameRequired.Error(), out.Error)
	raw, ok := out.Raw.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "WORKFLOW", raw["mode"])
}

func TestRun_ConcurrentRequestsAreIndependent(t *testing.T) {
	p := New()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			answer := fmt.Sprintf("answer %d", i)
			out := p.Run(Input{Message: "how?", Output: answer})
			if !out.OK || out.Response.Data.(models.QNAData).Answer != answer {
				t.Errorf("request %d: unexpected outcome %+v", i, out)
			}
		}(i)
	}
	wg.Wait()
}
