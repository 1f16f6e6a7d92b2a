package render

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/BTreeMap/PlatformAI/internal/models"
)

func TestText(t *testing.T) {
	tests := []struct {
		name string
		resp models.StructuredResponse
		want string
	}{
		{
			name: "qna with lists",
			resp: models.NewStructuredResponse(models.QNAData{
				Answer:              "Automations run on their own.",
				RelatedFeatures:     []string{"automations", "workflows"},
				FollowUpSuggestions: []string{"Create onboarding workflow", "Setup email campaign"},
			}),
			want: "Automations run on their own.\n" +
				"\nRelated features: automations, workflows\n" +
				"\nFollow-up suggestions:\n" +
				"- Create onboarding workflow\n" +
				"- Setup email campaign",
		},
		{
			name: "qna answer only",
			resp: models.NewStructuredResponse(models.QNAData{Answer: "Yes.", RelatedFeatures: []string{}, FollowUpSuggestions: []string{}}),
			want: "Yes.",
		},
		{
			name: "workflow",
			resp: models.NewStructuredResponse(models.WorkflowData{
				WorkflowName: "Onboarding",
				Description:  "Welcome new users",
				Nodes: []models.Node{
					{ID: 1, Type: models.NodeTypeTrigger, Name: "Signup"},
					{ID: 2, Type: models.NodeTypeDelay, Config: map[string]models.Value{
						"unit":  models.StringValue("days"),
						"delay": models.IntValue(1),
					}},
					{ID: 3, Type: models.NodeTypeAction, Name: "Send email", Config: map[string]models.Value{
						"to": models.ArrayValue([]models.Value{models.StringValue("user")}),
					}},
				},
				Edges: []models.Edge{{From: 1, To: 2}, {From: 2, To: 3, Condition: "verified"}},
			}),
			want: "Workflow: Onboarding\n" +
				"Welcome new users\n" +
				"\nNodes:\n" +
				"1. Signup (trigger)\n" +
				"2. delay (delay) [delay: 1, unit: days]\n" +
				"3. Send email (action) [to: [\"user\"]]\n" +
				"\nConnections:\n" +
				"- Node 1 -> Node 2\n" +
				"- Node 2 -> Node 3 (verified)",
		},
		{
			name: "task",
			resp: models.NewStructuredResponse(models.TaskData{
				TaskType: "email_campaign",
				TaskName: "Spring sale",
				Inputs: map[string]models.Value{
					"list":     models.StringValue("customers"),
					"discount": models.NumberValue("0.2"),
					"dry_run":  models.BoolValue(true),
				},
				Steps: []models.Step{
					{Action: "Pick list"},
					{Step: 5, Action: "Send", Config: map[string]models.Value{"at": models.StringValue("9am")}},
				},
			}),
			want: "Task: Spring sale [email_campaign]\n" +
				"\nInputs:\n" +
				"- discount: 0.2\n" +
				"- dry_run: true\n" +
				"- list: customers\n" +
				"\nExecution steps:\n" +
				"1. Pick list\n" +
				"5. Send (at: 9am)",
		},
		{
			name: "missing data",
			resp: models.StructuredResponse{Mode: models.ModeQNA},
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Text(tt.resp)); diff != "" {
				t.Errorf("Text() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
