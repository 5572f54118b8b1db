package undo_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"manity/internal/engine"
	"manity/internal/planner"
	"manity/internal/selector"
	"manity/internal/tools"
	"manity/internal/undo"
)

func runLaunch(t *testing.T) engine.AgentResult {
	t.Helper()
	n := 0
	cfg := engine.RunConfig{
		Constraints: selector.DefaultConstraints(),
		IDs: func(kind string) string {
			n++
			return fmt.Sprintf("%s-%d", kind, n)
		},
	}
	plan := &planner.Plan{Steps: []planner.Step{
		{ToolCandidates: []planner.ToolCall{{ToolName: tools.CreateProject, Input: map[string]any{"name": "Launch"}}}},
		{ToolCandidates: []planner.ToolCall{{ToolName: tools.AddTask, Input: map[string]any{"projectName": "Launch", "title": "Kickoff"}}}},
		{ToolCandidates: []planner.ToolCall{{ToolName: tools.AddSubtask, Input: map[string]any{"projectName": "Launch", "taskTitle": "Kickoff", "title": "Invite"}}}},
		{ToolCandidates: []planner.ToolCall{{ToolName: tools.Comment, Input: map[string]any{"projectName": "Launch", "note": "Kickoff scheduled"}}}},
	}}
	res := engine.New(tools.NewDefaultCatalog(), nil).RunPlan(context.Background(), plan, planner.AgentContext{}, nil, cfg)
	require.Equal(t, engine.StopSuccess, res.StopReason)
	return res
}

func TestUndoActionIsIdempotent(t *testing.T) {
	res := runLaunch(t)
	m := undo.Manager{}

	once, undone, err := m.UndoAction(res.Projects, res.Actions, 3)
	require.NoError(t, err)
	assert.True(t, undone)
	assert.True(t, res.Actions[3].Undone)
	assert.Empty(t, once[0].RecentActivity)
	assert.Equal(t, "", once[0].LastUpdate)

	twice, undone, err := m.UndoAction(once, res.Actions, 3)
	require.NoError(t, err)
	assert.False(t, undone)
	assert.True(t, res.Actions[3].Undone)
	assert.Equal(t, once, twice)

	// the run's own snapshot is untouched
	assert.Len(t, res.Projects[0].RecentActivity, 1)
}

func TestUndoActionOutOfRange(t *testing.T) {
	res := runLaunch(t)
	_, _, err := undo.Manager{}.UndoAction(res.Projects, res.Actions, 9)
	assert.ErrorIs(t, err, undo.ErrNoSuchAction)
	_, _, err = undo.Manager{}.UndoAction(res.Projects, res.Actions, -1)
	assert.ErrorIs(t, err, undo.ErrNoSuchAction)
}

func TestUndoLogFromStep(t *testing.T) {
	res := runLaunch(t)
	m := undo.Manager{}

	// steps 2 and later: subtask and comment go, project and task stay
	out := m.UndoLog(res.Projects, res.Log, 2)
	require.Len(t, out, 1)
	require.Len(t, out[0].Plan, 1)
	assert.Empty(t, out[0].Plan[0].Subtasks)
	assert.Empty(t, out[0].RecentActivity)

	assert.Empty(t, m.UndoLog(res.Projects, res.Log, 0))
}

func TestUndoEvent(t *testing.T) {
	res := runLaunch(t)
	out := undo.Manager{}.UndoEvent(res.Projects, res.Log.Events[1])
	require.Len(t, out, 1)
	assert.Empty(t, out[0].Plan)
	assert.Len(t, res.Projects[0].Plan, 1)
}
