package delta

import (
	"fmt"
	"log/slog"

	"manity/internal/domain"
	"manity/internal/resolve"
)

// Apply inverts a single delta against projects and returns the updated
// list. Projects are modified in place where possible; callers wanting to
// keep their input intact should use Rollback. Unknown deltas are ignored.
func Apply(projects []domain.Project, d Delta) []domain.Project {
	out, ok := apply(projects, d)
	if !ok {
		slog.Default().Warn("delta: ignoring unhandled variant", "kind", d.Kind(), "type", fmt.Sprintf("%T", d))
	}
	return out
}

// apply reports false for a variant it has no inverse for.
func apply(projects []domain.Project, d Delta) ([]domain.Project, bool) {
	switch d := d.(type) {
	case RemoveProject:
		return removeProject(projects, d.ProjectID), true
	case RemoveActivity:
		if p := findProject(projects, d.ProjectID); p != nil {
			p.RecentActivity = filter(p.RecentActivity, func(a domain.Activity) bool { return a.ID != d.ActivityID })
			resolve.SyncProjectActivity(p)
		}
	case RemoveTask:
		if p := findProject(projects, d.ProjectID); p != nil {
			p.Plan = filter(p.Plan, func(t domain.Task) bool { return t.ID != d.TaskID })
		}
	case RestoreTask:
		if t := findTask(projects, d.ProjectID, d.TaskID); t != nil {
			restoreTaskFields(&t.Title, &t.Status, &t.DueDate, &t.CompletedDate, &t.Assignee, d.Previous)
		}
	case RemoveSubtask:
		if t := findTask(projects, d.ProjectID, d.TaskID); t != nil {
			t.Subtasks = filter(t.Subtasks, func(s domain.Subtask) bool { return s.ID != d.SubtaskID })
		}
	case RestoreSubtask:
		if t := findTask(projects, d.ProjectID, d.TaskID); t != nil {
			for i := range t.Subtasks {
				s := &t.Subtasks[i]
				if s.ID == d.SubtaskID {
					restoreTaskFields(&s.Title, &s.Status, &s.DueDate, &s.CompletedDate, &s.Assignee, d.Previous)
					break
				}
			}
		}
	case RestoreProject:
		if p := findProject(projects, d.ProjectID); p != nil {
			restoreProjectFields(p, d.Previous)
		}
	case Unknown, nil:
	default:
		return projects, false
	}
	return projects, true
}

// Rollback deep-clones projects and applies deltas last-applied-first, so
// effects that depend on earlier ones are peeled back before them.
func Rollback(projects []domain.Project, deltas []Delta) []domain.Project {
	out := resolve.CloneProjects(projects)
	for i := len(deltas) - 1; i >= 0; i-- {
		out = Apply(out, deltas[i])
	}
	return out
}

func removeProject(projects []domain.Project, id string) []domain.Project {
	return filter(projects, func(p domain.Project) bool { return p.ID != id })
}

func findProject(projects []domain.Project, id string) *domain.Project {
	for i := range projects {
		if projects[i].ID == id {
			return &projects[i]
		}
	}
	return nil
}

func findTask(projects []domain.Project, projectID, taskID string) *domain.Task {
	p := findProject(projects, projectID)
	if p == nil {
		return nil
	}
	for i := range p.Plan {
		if p.Plan[i].ID == taskID {
			return &p.Plan[i]
		}
	}
	return nil
}

func restoreTaskFields(title *string, status *domain.TaskStatus, due, completed *string, assignee **domain.Assignee, prev TaskFields) {
	if prev.Title != nil {
		*title = *prev.Title
	}
	if prev.Status != nil {
		*status = *prev.Status
	}
	if prev.DueDate != nil {
		*due = *prev.DueDate
	}
	if prev.CompletedDate != nil {
		*completed = *prev.CompletedDate
	}
	if prev.Assignee != nil {
		if prev.Assignee.Value == nil {
			*assignee = nil
		} else {
			a := *prev.Assignee.Value
			*assignee = &a
		}
	}
}

func restoreProjectFields(p *domain.Project, prev ProjectFields) {
	if prev.Name != nil {
		p.Name = *prev.Name
	}
	if prev.Description != nil {
		p.Description = *prev.Description
	}
	if prev.ExecutiveUpdate != nil {
		p.ExecutiveUpdate = *prev.ExecutiveUpdate
	}
	if prev.Status != nil {
		p.Status = *prev.Status
	}
	if prev.Priority != nil {
		p.Priority = *prev.Priority
	}
	if prev.Progress != nil {
		p.Progress = *prev.Progress
	}
	if prev.TargetDate != nil {
		p.TargetDate = *prev.TargetDate
	}
	if prev.StartDate != nil {
		p.StartDate = *prev.StartDate
	}
	if prev.LastUpdate != nil {
		p.LastUpdate = *prev.LastUpdate
	}
	if prev.Stakeholders != nil {
		if *prev.Stakeholders == nil {
			p.Stakeholders = nil
		} else {
			p.Stakeholders = append([]domain.Stakeholder{}, (*prev.Stakeholders)...)
		}
	}
}

// filter keeps the elements for which keep returns true. It preserves a nil
// input as nil and an empty result as an empty, non-nil slice.
func filter[T any](in []T, keep func(T) bool) []T {
	if in == nil {
		return nil
	}
	out := make([]T, 0, len(in))
	for _, v := range in {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}
