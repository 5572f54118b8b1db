package resolve

import "manity/internal/domain"

// CloneProject returns a structural copy of p; mutating the copy never
// touches p. Nil slices stay nil and empty slices stay empty.
func CloneProject(p domain.Project) domain.Project {
	out := p
	out.Stakeholders = cloneSlice(p.Stakeholders)
	out.RecentActivity = cloneSlice(p.RecentActivity)
	if p.Plan != nil {
		out.Plan = make([]domain.Task, len(p.Plan))
		for i, t := range p.Plan {
			out.Plan[i] = CloneTask(t)
		}
	}
	return out
}

func CloneTask(t domain.Task) domain.Task {
	out := t
	out.Assignee = cloneAssignee(t.Assignee)
	if t.Subtasks != nil {
		out.Subtasks = make([]domain.Subtask, len(t.Subtasks))
		for i, s := range t.Subtasks {
			out.Subtasks[i] = CloneSubtask(s)
		}
	}
	return out
}

func CloneSubtask(s domain.Subtask) domain.Subtask {
	out := s
	out.Assignee = cloneAssignee(s.Assignee)
	return out
}

func CloneProjects(projects []domain.Project) []domain.Project {
	if projects == nil {
		return nil
	}
	out := make([]domain.Project, len(projects))
	for i, p := range projects {
		out[i] = CloneProject(p)
	}
	return out
}

func ClonePeople(people []domain.Person) []domain.Person {
	return cloneSlice(people)
}

func cloneAssignee(a *domain.Assignee) *domain.Assignee {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}

func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}
