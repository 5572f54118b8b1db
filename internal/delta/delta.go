// Package delta records reversible effects of agent tools and inverts them.
//
// A Delta carries the minimum information needed to undo the action that
// produced it: either the id of something that was added, or the prior field
// values of something that was updated. Applying a run's deltas in reverse
// chronological order restores the portfolio as it was before the run.
package delta

import (
	"manity/internal/domain"
)

type Kind string

const (
	KindRemoveProject  Kind = "remove_project"
	KindRemoveActivity Kind = "remove_activity"
	KindRemoveTask     Kind = "remove_task"
	KindRestoreTask    Kind = "restore_task"
	KindRemoveSubtask  Kind = "remove_subtask"
	KindRestoreSubtask Kind = "restore_subtask"
	KindRestoreProject Kind = "restore_project"
)

// Delta is a sealed sum type; the only implementations live in this package.
type Delta interface {
	Kind() Kind
	sealed()
}

// RemoveProject undoes create_project.
type RemoveProject struct {
	ProjectID string `json:"projectId"`
}

// RemoveActivity undoes comment.
type RemoveActivity struct {
	ProjectID  string `json:"projectId"`
	ActivityID string `json:"activityId"`
}

// RemoveTask undoes add_task.
type RemoveTask struct {
	ProjectID string `json:"projectId"`
	TaskID    string `json:"taskId"`
}

// RestoreTask undoes update_task.
type RestoreTask struct {
	ProjectID string     `json:"projectId"`
	TaskID    string     `json:"taskId"`
	Previous  TaskFields `json:"previous"`
}

// RemoveSubtask undoes add_subtask.
type RemoveSubtask struct {
	ProjectID string `json:"projectId"`
	TaskID    string `json:"taskId"`
	SubtaskID string `json:"subtaskId"`
}

// RestoreSubtask undoes update_subtask.
type RestoreSubtask struct {
	ProjectID string     `json:"projectId"`
	TaskID    string     `json:"taskId"`
	SubtaskID string     `json:"subtaskId"`
	Previous  TaskFields `json:"previous"`
}

// RestoreProject undoes update_project and add_stakeholders.
type RestoreProject struct {
	ProjectID string        `json:"projectId"`
	Previous  ProjectFields `json:"previous"`
}

// Unknown keeps a delta whose type this build does not know. It applies as a
// no-op.
type Unknown struct {
	Type string `json:"type"`
}

func (RemoveProject) Kind() Kind  { return KindRemoveProject }
func (RemoveActivity) Kind() Kind { return KindRemoveActivity }
func (RemoveTask) Kind() Kind     { return KindRemoveTask }
func (RestoreTask) Kind() Kind    { return KindRestoreTask }
func (RemoveSubtask) Kind() Kind  { return KindRemoveSubtask }
func (RestoreSubtask) Kind() Kind { return KindRestoreSubtask }
func (RestoreProject) Kind() Kind { return KindRestoreProject }
func (u Unknown) Kind() Kind      { return Kind(u.Type) }

func (RemoveProject) sealed()  {}
func (RemoveActivity) sealed() {}
func (RemoveTask) sealed()     {}
func (RestoreTask) sealed()    {}
func (RemoveSubtask) sealed()  {}
func (RestoreSubtask) sealed() {}
func (RestoreProject) sealed() {}
func (Unknown) sealed()        {}

// AssigneeValue wraps an assignee so a restore can distinguish "was
// unassigned" (Value nil) from "not recorded" (field nil).
type AssigneeValue struct {
	Value *domain.Assignee `json:"value"`
}

// TaskFields holds prior task or subtask values; only non-nil fields are
// restored.
type TaskFields struct {
	Title         *string            `json:"title,omitempty"`
	Status        *domain.TaskStatus `json:"status,omitempty"`
	DueDate       *string            `json:"dueDate,omitempty"`
	CompletedDate *string            `json:"completedDate,omitempty"`
	Assignee      *AssigneeValue     `json:"assignee,omitempty"`
}

// IsEmpty reports whether no field was recorded.
func (f TaskFields) IsEmpty() bool {
	return f.Title == nil && f.Status == nil && f.DueDate == nil && f.CompletedDate == nil && f.Assignee == nil
}

// ProjectFields holds prior project values; only non-nil fields are restored.
type ProjectFields struct {
	Name            *string               `json:"name,omitempty"`
	Description     *string               `json:"description,omitempty"`
	ExecutiveUpdate *string               `json:"executiveUpdate,omitempty"`
	Status          *domain.ProjectStatus `json:"status,omitempty"`
	Priority        *domain.Priority      `json:"priority,omitempty"`
	Progress        *int                  `json:"progress,omitempty"`
	TargetDate      *string               `json:"targetDate,omitempty"`
	StartDate       *string               `json:"startDate,omitempty"`
	LastUpdate      *string               `json:"lastUpdate,omitempty"`
	Stakeholders    *[]domain.Stakeholder `json:"stakeholders,omitempty"`
}

func (f ProjectFields) IsEmpty() bool {
	return f.Name == nil && f.Description == nil && f.ExecutiveUpdate == nil && f.Status == nil &&
		f.Priority == nil && f.Progress == nil && f.TargetDate == nil && f.StartDate == nil &&
		f.LastUpdate == nil && f.Stakeholders == nil
}

// Ptr returns a pointer to a copy of v.
func Ptr[T any](v T) *T {
	return &v
}
