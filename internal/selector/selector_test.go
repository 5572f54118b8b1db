package selector_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"manity/internal/planner"
	"manity/internal/selector"
	"manity/internal/tools"
)

func call(name tools.Name, input map[string]any) planner.ToolCall {
	return planner.ToolCall{ToolName: name, Input: input}
}

var (
	email   = call(tools.SendEmail, map[string]any{"recipients": []any{"a@b.c"}, "subject": "s", "body": "b"})
	comment = call(tools.Comment, map[string]any{"projectName": "Apollo", "note": "n"})
)

func onePlan(steps ...planner.Step) *planner.Plan {
	return &planner.Plan{Steps: steps, Status: planner.StatusPending}
}

func TestSelectNextStep(t *testing.T) {
	catalog := tools.NewDefaultCatalog()
	permissive := selector.DefaultConstraints()
	strict := selector.AgentConstraints{MaxSteps: 10}

	cases := []struct {
		name        string
		plan        *planner.Plan
		constraints selector.AgentConstraints
		wantReason  selector.StopReason
		wantTool    tools.Name
	}{
		{"past end", onePlan(), permissive, selector.StopCompleted, ""},
		{"confirmation step", onePlan(planner.Step{RequiresConfirmation: true, ToolCandidates: []planner.ToolCall{comment}}),
			selector.AgentConstraints{AllowSideEffects: true, RequireConfirmation: true}, selector.StopBlocked, ""},
		{"confirmation flag ignored when not required", onePlan(planner.Step{RequiresConfirmation: true, ToolCandidates: []planner.ToolCall{comment}}),
			permissive, "", tools.Comment},
		{"no candidates", onePlan(planner.Step{}), permissive, selector.StopNoCandidates, ""},
		{"no-op plan", planner.NoOpPlan("bad output"), permissive, selector.StopNoCandidates, ""},
		{"first eligible", onePlan(planner.Step{ToolCandidates: []planner.ToolCall{comment, email}}), permissive, "", tools.Comment},
		{"soft skip falls through", onePlan(planner.Step{ToolCandidates: []planner.ToolCall{
			call("archive_project", nil),
			call(tools.Comment, map[string]any{"note": "missing project"}),
			call(tools.AddTask, map[string]any{"projectName": "Apollo"}),
			comment,
		}}), permissive, "", tools.Comment},
		{"excluded tool", onePlan(planner.Step{ToolCandidates: []planner.ToolCall{comment}}),
			selector.AgentConstraints{AllowSideEffects: true, ExcludeTools: []tools.Name{tools.Comment}}, selector.StopBlocked, ""},
		{"side effects forbidden halts", onePlan(planner.Step{ToolCandidates: []planner.ToolCall{email, comment}}), strict, selector.StopSafety, ""},
		{"confirmation required halts", onePlan(planner.Step{ToolCandidates: []planner.ToolCall{email, comment}}),
			selector.AgentConstraints{AllowSideEffects: true, RequireConfirmation: true}, selector.StopSafety, ""},
		{"portfolio tools need no project", onePlan(planner.Step{ToolCandidates: []planner.ToolCall{call(tools.QueryPortfolio, nil)}}),
			strict, "", tools.QueryPortfolio},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sel := selector.SelectNextStep(catalog, tc.plan, 0, tc.constraints)
			if tc.wantReason != "" {
				assert.True(t, sel.Stop)
				assert.Equal(t, tc.wantReason, sel.Reason)
				assert.NotEmpty(t, sel.Detail)
				assert.Nil(t, sel.Call)
				return
			}
			require.False(t, sel.Stop, sel.Detail)
			require.NotNil(t, sel.Call)
			assert.Equal(t, tc.wantTool, sel.Call.ToolName)
			assert.Equal(t, tc.wantTool, sel.Definition.Name)
			assert.Equal(t, tc.wantTool, sel.Input.Tool())
		})
	}
}

func TestSelectNoOpPlanReportsReason(t *testing.T) {
	sel := selector.SelectNextStep(tools.NewDefaultCatalog(), planner.NoOpPlan("step 1: unknown tool"), 0, selector.DefaultConstraints())
	assert.Contains(t, sel.Detail, "step 1: unknown tool")
}

func TestSelectBlockedListsEveryCandidate(t *testing.T) {
	plan := onePlan(planner.Step{ToolCandidates: []planner.ToolCall{call("archive_project", nil), call(tools.Comment, map[string]any{"note": "x"})}})
	sel := selector.SelectNextStep(tools.NewDefaultCatalog(), plan, 0, selector.DefaultConstraints())
	assert.Equal(t, selector.StopBlocked, sel.Reason)
	assert.Contains(t, sel.Detail, `unknown tool "archive_project"`)
	assert.Contains(t, sel.Detail, "comment: projectId or projectName is required")
}
