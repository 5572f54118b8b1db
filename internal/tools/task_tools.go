package tools

import (
	"context"
	"fmt"
	"strings"

	"manity/internal/delta"
	"manity/internal/domain"
	"manity/internal/resolve"
)

// taskPatch is the update shared by tasks and subtasks.
type taskPatch struct {
	Title, Status, DueDate, CompletedDate, AssigneeName *string
}

// taskRefs points at the mutable fields of a task or subtask.
type taskRefs struct {
	title     *string
	status    *domain.TaskStatus
	due       *string
	completed *string
	assignee  **domain.Assignee
}

// apply writes patch through refs and returns the prior values of every
// field it changed. The completion date is stamped the first time a task is
// completed and left alone when it is already set.
func (tc *Context) apply(refs taskRefs, patch taskPatch) (delta.TaskFields, []string) {
	var prev delta.TaskFields
	var changed []string
	patchString(refs.title, patch.Title, &prev.Title, "title", &changed)
	patchString(refs.due, patch.DueDate, &prev.DueDate, "due date", &changed)
	patchString(refs.completed, patch.CompletedDate, &prev.CompletedDate, "completed date", &changed)
	if patch.Status != nil && domain.TaskStatus(*patch.Status) != *refs.status {
		prev.Status = delta.Ptr(*refs.status)
		*refs.status = domain.TaskStatus(*patch.Status)
		changed = append(changed, "status")
		if *refs.status == domain.TaskCompleted && *refs.completed == "" {
			if prev.CompletedDate == nil {
				prev.CompletedDate = delta.Ptr("")
			}
			*refs.completed = tc.Today()
		}
	}
	if patch.AssigneeName != nil {
		next := tc.assigneeFor(strings.TrimSpace(*patch.AssigneeName))
		if !sameAssignee(*refs.assignee, next) {
			prev.Assignee = &delta.AssigneeValue{Value: *refs.assignee}
			*refs.assignee = next
			changed = append(changed, "assignee")
		}
	}
	return prev, changed
}

func sameAssignee(a, b *domain.Assignee) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func newStatus(s string) domain.TaskStatus {
	if s == "" {
		return domain.TaskTodo
	}
	return domain.TaskStatus(s)
}

func addTaskTool() Definition {
	return define(AddTask,
		"Add a task to a project's plan.",
		Metadata{MutatesState: true, ReadsState: true, Tags: []string{TagProjectScoped, TagTasks}},
		func(_ context.Context, tc *Context, in *AddTaskInput) Result {
			const label = "Add task"
			p, ok := tc.ResolveProject(in.ProjectTarget())
			if !ok {
				return skipped(label, notFound("project", in.ProjectTarget()))
			}
			t := domain.Task{
				ID:       tc.NewID("task"),
				Title:    strings.TrimSpace(in.Title),
				Status:   newStatus(in.Status),
				DueDate:  in.DueDate,
				Assignee: tc.assigneeFor(strings.TrimSpace(in.AssigneeName)),
				Subtasks: []domain.Subtask{},
			}
			if t.Status == domain.TaskCompleted {
				t.CompletedDate = tc.Today()
			}
			p.Plan = append(p.Plan, t)
			res := success(label, fmt.Sprintf("Added %q to %s", t.Title, p.Name), p.ID, t.ID)
			res.Deltas = []delta.Delta{delta.RemoveTask{ProjectID: p.ID, TaskID: t.ID}}
			return res
		})
}

func updateTaskTool() Definition {
	return define(UpdateTask,
		"Change a task's title, status, due date or assignee.",
		Metadata{MutatesState: true, ReadsState: true, Tags: []string{TagProjectScoped, TagTasks}},
		func(_ context.Context, tc *Context, in *UpdateTaskInput) Result {
			const label = "Update task"
			p, t, miss := tc.resolveTask(in.ProjectRef, in.TaskRef)
			if miss != "" {
				return skipped(label, miss)
			}
			prev, changed := tc.apply(taskRefs{&t.Title, &t.Status, &t.DueDate, &t.CompletedDate, &t.Assignee}, taskPatch{
				Title: in.Title, Status: in.Status, DueDate: in.DueDate, CompletedDate: in.CompletedDate, AssigneeName: in.AssigneeName,
			})
			if prev.IsEmpty() {
				return skipped(label, fmt.Sprintf("%q already up to date", t.Title))
			}
			res := success(label, fmt.Sprintf("Updated %q in %s: %s", t.Title, p.Name, strings.Join(changed, ", ")), p.ID, t.ID)
			res.Deltas = []delta.Delta{delta.RestoreTask{ProjectID: p.ID, TaskID: t.ID, Previous: prev}}
			return res
		})
}

func addSubtaskTool() Definition {
	return define(AddSubtask,
		"Add a subtask under an existing task.",
		Metadata{MutatesState: true, ReadsState: true, Tags: []string{TagProjectScoped, TagTasks}},
		func(_ context.Context, tc *Context, in *AddSubtaskInput) Result {
			const label = "Add subtask"
			p, t, miss := tc.resolveTask(in.ProjectRef, in.TaskRef)
			if miss != "" {
				return skipped(label, miss)
			}
			s := domain.Subtask{
				ID:       tc.NewID("subtask"),
				Title:    strings.TrimSpace(in.Title),
				Status:   newStatus(in.Status),
				DueDate:  in.DueDate,
				Assignee: tc.assigneeFor(strings.TrimSpace(in.AssigneeName)),
			}
			if s.Status == domain.TaskCompleted {
				s.CompletedDate = tc.Today()
			}
			t.Subtasks = append(t.Subtasks, s)
			res := success(label, fmt.Sprintf("Added %q under %q", s.Title, t.Title), p.ID, t.ID, s.ID)
			res.Deltas = []delta.Delta{delta.RemoveSubtask{ProjectID: p.ID, TaskID: t.ID, SubtaskID: s.ID}}
			return res
		})
}

func updateSubtaskTool() Definition {
	return define(UpdateSubtask,
		"Change a subtask's title, status, due date or assignee.",
		Metadata{MutatesState: true, ReadsState: true, Tags: []string{TagProjectScoped, TagTasks}},
		func(_ context.Context, tc *Context, in *UpdateSubtaskInput) Result {
			const label = "Update subtask"
			p, t, miss := tc.resolveTask(in.ProjectRef, in.TaskRef)
			if miss != "" {
				return skipped(label, miss)
			}
			j, ok := resolve.ResolveSubtask(t, in.SubtaskTarget())
			if !ok {
				return skipped(label, notFound("subtask", in.SubtaskTarget()))
			}
			s := &t.Subtasks[j]
			prev, changed := tc.apply(taskRefs{&s.Title, &s.Status, &s.DueDate, &s.CompletedDate, &s.Assignee}, taskPatch{
				Title: in.Title, Status: in.Status, DueDate: in.DueDate, CompletedDate: in.CompletedDate, AssigneeName: in.AssigneeName,
			})
			if prev.IsEmpty() {
				return skipped(label, fmt.Sprintf("%q already up to date", s.Title))
			}
			res := success(label, fmt.Sprintf("Updated %q under %q: %s", s.Title, t.Title, strings.Join(changed, ", ")), p.ID, t.ID, s.ID)
			res.Deltas = []delta.Delta{delta.RestoreSubtask{ProjectID: p.ID, TaskID: t.ID, SubtaskID: s.ID, Previous: prev}}
			return res
		})
}

// resolveTask finds the project and task named by the refs. miss describes
// the first lookup that failed.
func (tc *Context) resolveTask(pr ProjectRef, tr TaskRef) (*domain.Project, *domain.Task, string) {
	p, ok := tc.ResolveProject(pr.ProjectTarget())
	if !ok {
		return nil, nil, notFound("project", pr.ProjectTarget())
	}
	i, ok := resolve.ResolveTask(p, tr.TaskTarget())
	if !ok {
		return nil, nil, notFound("task", tr.TaskTarget())
	}
	return p, &p.Plan[i], ""
}
