package delta_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"manity/internal/delta"
	"manity/internal/domain"
	"manity/internal/resolve"
)

func seed() []domain.Project {
	p := domain.Project{
		ID:       "p1",
		Name:     "Apollo",
		Status:   domain.ProjectActive,
		Priority: domain.PriorityMedium,
		Progress: 40,
		Plan: []domain.Task{{
			ID:       "t1",
			Title:    "Design",
			Status:   domain.TaskTodo,
			Assignee: nil,
			Subtasks: []domain.Subtask{{ID: "s1", Title: "Sketch", Status: domain.TaskTodo}},
		}},
		Stakeholders: []domain.Stakeholder{{Name: "Ada"}},
		RecentActivity: []domain.Activity{
			{ID: "a1", Date: "2024-01-01T00:00:00Z", Note: "started"},
		},
		LastUpdate: "started",
	}
	p.Normalize()
	return []domain.Project{p}
}

func TestApplyRemovals(t *testing.T) {
	projects := seed()
	projects[0].Plan = append(projects[0].Plan, domain.Task{ID: "t2", Title: "Build", Subtasks: []domain.Subtask{}})
	projects[0].Plan[0].Subtasks = append(projects[0].Plan[0].Subtasks, domain.Subtask{ID: "s2"})
	resolve.SyncProjectActivity(&projects[0], domain.Activity{ID: "a2", Date: "2024-02-01T00:00:00Z", Note: "newer"})
	require.Equal(t, "newer", projects[0].LastUpdate)

	projects = delta.Apply(projects, delta.RemoveActivity{ProjectID: "p1", ActivityID: "a2"})
	projects = delta.Apply(projects, delta.RemoveSubtask{ProjectID: "p1", TaskID: "t1", SubtaskID: "s2"})
	projects = delta.Apply(projects, delta.RemoveTask{ProjectID: "p1", TaskID: "t2"})
	assert.Equal(t, seed(), projects)

	projects = delta.Apply(projects, delta.RemoveProject{ProjectID: "p1"})
	assert.Empty(t, projects)
}

func TestApplyRestoresOnlyRecordedFields(t *testing.T) {
	projects := seed()
	p := &projects[0]
	p.Name = "Apollo 2"
	p.Progress = 90
	p.Description = "kept"

	projects = delta.Apply(projects, delta.RestoreProject{ProjectID: "p1", Previous: delta.ProjectFields{
		Name: delta.Ptr("Apollo"),
	}})
	assert.Equal(t, "Apollo", projects[0].Name)
	assert.Equal(t, 90, projects[0].Progress)
	assert.Equal(t, "kept", projects[0].Description)
}

func TestApplyRestoreTaskAssignee(t *testing.T) {
	projects := seed()
	projects[0].Plan[0].Assignee = &domain.Assignee{Name: "Ada"}
	projects[0].Plan[0].Status = domain.TaskCompleted
	projects[0].Plan[0].CompletedDate = "2024-03-01"

	projects = delta.Apply(projects, delta.RestoreTask{ProjectID: "p1", TaskID: "t1", Previous: delta.TaskFields{
		Status:        delta.Ptr(domain.TaskTodo),
		CompletedDate: delta.Ptr(""),
		Assignee:      &delta.AssigneeValue{},
	}})
	assert.Equal(t, seed(), projects)
}

func TestApplyUnknownIsNoop(t *testing.T) {
	projects := seed()
	projects = delta.Apply(projects, delta.Unknown{Type: "archive_project"})
	projects = delta.Apply(projects, nil)
	assert.Equal(t, seed(), projects)
}

func TestApplyMissingTargetsAreNoops(t *testing.T) {
	projects := seed()
	projects = delta.Apply(projects, delta.RemoveTask{ProjectID: "nope", TaskID: "t1"})
	projects = delta.Apply(projects, delta.RestoreSubtask{ProjectID: "p1", TaskID: "t1", SubtaskID: "missing",
		Previous: delta.TaskFields{Title: delta.Ptr("x")}})
	assert.Equal(t, seed(), projects)
}

func TestRollbackDoesNotMutateInput(t *testing.T) {
	projects := seed()
	out := delta.Rollback(projects, []delta.Delta{delta.RemoveTask{ProjectID: "p1", TaskID: "t1"}})
	assert.Empty(t, out[0].Plan)
	assert.Len(t, projects[0].Plan, 1)
}

// Two successive updates of the same field only invert correctly when the
// later delta is undone first.
func TestRollbackRequiresReverseOrder(t *testing.T) {
	s0 := seed()
	deltas := []delta.Delta{
		delta.RestoreTask{ProjectID: "p1", TaskID: "t1", Previous: delta.TaskFields{Status: delta.Ptr(domain.TaskTodo)}},
		delta.RestoreTask{ProjectID: "p1", TaskID: "t1", Previous: delta.TaskFields{Status: delta.Ptr(domain.TaskInProgress)}},
	}
	sn := seed()
	sn[0].Plan[0].Status = domain.TaskCompleted

	forward := resolve.CloneProjects(sn)
	for _, d := range deltas {
		forward = delta.Apply(forward, d)
	}
	assert.NotEqual(t, s0, forward)
	assert.Equal(t, s0, delta.Rollback(sn, deltas))
}

// create project -> add task -> add subtask: the reverse walk removes the
// subtask while its task still exists. Forward order happens to give the same
// result here, since removing the project first turns the later deltas into
// no-ops; TestRollbackRequiresReverseOrder covers the case where order matters.
func TestRollbackNestedAdditions(t *testing.T) {
	s0 := seed()
	sn := seed()
	launch := domain.Project{ID: "p2", Name: "Launch"}
	launch.Normalize()
	launch.Plan = append(launch.Plan, domain.Task{ID: "t9", Title: "Kickoff", Subtasks: []domain.Subtask{{ID: "s9", Title: "Invite"}}})
	sn = append(sn, launch)
	deltas := []delta.Delta{
		delta.RemoveProject{ProjectID: "p2"},
		delta.RemoveTask{ProjectID: "p2", TaskID: "t9"},
		delta.RemoveSubtask{ProjectID: "p2", TaskID: "t9", SubtaskID: "s9"},
	}
	assert.Equal(t, s0, delta.Rollback(sn, deltas))

	// Undoing only the last two leaves the freshly created project empty.
	partial := delta.Rollback(sn, deltas[1:])
	require.Len(t, partial, 2)
	assert.Empty(t, partial[1].Plan)
}

func TestApplyIgnoresUnhandledVariant(t *testing.T) {
	// embedding satisfies the sealed interface without being a known variant
	d := struct{ delta.RemoveProject }{delta.RemoveProject{ProjectID: "p1"}}
	var out []domain.Project
	require.NotPanics(t, func() { out = delta.Apply(seed(), d) })
	assert.Equal(t, seed(), out)
}

func TestCodecRoundTripKeepsVariants(t *testing.T) {
	in := []delta.Delta{
		delta.RemoveProject{ProjectID: "p2"},
		delta.RestoreTask{ProjectID: "p1", TaskID: "t1", Previous: delta.TaskFields{
			Status:   delta.Ptr(domain.TaskTodo),
			Assignee: &delta.AssigneeValue{},
		}},
		delta.RestoreProject{ProjectID: "p1", Previous: delta.ProjectFields{
			Stakeholders: delta.Ptr([]domain.Stakeholder{{Name: "Ada"}}),
			Progress:     delta.Ptr(0),
		}},
	}
	data, err := delta.MarshalList(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"restore_task"`)

	out, err := delta.UnmarshalList(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestCodecUnknownType(t *testing.T) {
	out, err := delta.UnmarshalList([]byte(`[{"type":"archive_project","projectId":"p1"}]`))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, delta.Kind("archive_project"), out[0].Kind())

	_, err = delta.UnmarshalList([]byte(`{"type":"x"}`))
	assert.Error(t, err)
}
