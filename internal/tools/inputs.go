package tools

import "strings"

// ProjectRef names the project a tool operates on, by id or by name.
type ProjectRef struct {
	ProjectID   string `json:"projectId,omitempty" desc:"project id"`
	ProjectName string `json:"projectName,omitempty" desc:"project name, matched case-insensitively"`
}

// ProjectTarget returns the id when set, otherwise the name.
func (r ProjectRef) ProjectTarget() string {
	if id := strings.TrimSpace(r.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(r.ProjectName)
}

// TaskRef names a task inside a project.
type TaskRef struct {
	TaskID    string `json:"taskId,omitempty"`
	TaskTitle string `json:"taskTitle,omitempty" validate:"required_without=TaskID"`
}

func (r TaskRef) TaskTarget() string {
	if id := strings.TrimSpace(r.TaskID); id != "" {
		return id
	}
	return strings.TrimSpace(r.TaskTitle)
}

type StakeholderInput struct {
	Name  string `json:"name" validate:"required"`
	Team  string `json:"team,omitempty"`
	Email string `json:"email,omitempty" validate:"omitempty,email"`
}

type CommentInput struct {
	ProjectRef
	Note   string `json:"note" validate:"required"`
	Author string `json:"author,omitempty"`
}

type CreateProjectInput struct {
	Name            string             `json:"name" validate:"required"`
	Description     string             `json:"description,omitempty"`
	Status          string             `json:"status,omitempty" validate:"omitempty,oneof=planning active on-hold cancelled completed"`
	Priority        string             `json:"priority,omitempty" validate:"omitempty,oneof=high medium low"`
	Progress        *int               `json:"progress,omitempty" validate:"omitempty,min=0,max=100"`
	ExecutiveUpdate string             `json:"executiveUpdate,omitempty"`
	StartDate       string             `json:"startDate,omitempty"`
	TargetDate      string             `json:"targetDate,omitempty"`
	Stakeholders    []StakeholderInput `json:"stakeholders,omitempty" validate:"omitempty,dive"`
}

type AddTaskInput struct {
	ProjectRef
	Title        string `json:"title" validate:"required"`
	Status       string `json:"status,omitempty" validate:"omitempty,oneof=todo in-progress completed"`
	DueDate      string `json:"dueDate,omitempty"`
	AssigneeName string `json:"assigneeName,omitempty"`
}

type UpdateTaskInput struct {
	ProjectRef
	TaskRef
	Title         *string `json:"title,omitempty"`
	Status        *string `json:"status,omitempty" validate:"omitempty,oneof=todo in-progress completed"`
	DueDate       *string `json:"dueDate,omitempty"`
	CompletedDate *string `json:"completedDate,omitempty"`
	AssigneeName  *string `json:"assigneeName,omitempty"`
}

type AddSubtaskInput struct {
	ProjectRef
	TaskRef
	Title        string `json:"title" validate:"required"`
	Status       string `json:"status,omitempty" validate:"omitempty,oneof=todo in-progress completed"`
	DueDate      string `json:"dueDate,omitempty"`
	AssigneeName string `json:"assigneeName,omitempty"`
}

type UpdateSubtaskInput struct {
	ProjectRef
	TaskRef
	SubtaskID     string  `json:"subtaskId,omitempty"`
	SubtaskTitle  string  `json:"subtaskTitle,omitempty" validate:"required_without=SubtaskID"`
	Title         *string `json:"title,omitempty"`
	Status        *string `json:"status,omitempty" validate:"omitempty,oneof=todo in-progress completed"`
	DueDate       *string `json:"dueDate,omitempty"`
	CompletedDate *string `json:"completedDate,omitempty"`
	AssigneeName  *string `json:"assigneeName,omitempty"`
}

func (in UpdateSubtaskInput) SubtaskTarget() string {
	if id := strings.TrimSpace(in.SubtaskID); id != "" {
		return id
	}
	return strings.TrimSpace(in.SubtaskTitle)
}

type UpdateProjectInput struct {
	ProjectRef
	Name            *string `json:"name,omitempty"`
	Description     *string `json:"description,omitempty"`
	ExecutiveUpdate *string `json:"executiveUpdate,omitempty"`
	Status          *string `json:"status,omitempty" validate:"omitempty,oneof=planning active on-hold cancelled completed"`
	Priority        *string `json:"priority,omitempty" validate:"omitempty,oneof=high medium low"`
	Progress        *int    `json:"progress,omitempty" validate:"omitempty,min=0,max=100"`
	TargetDate      *string `json:"targetDate,omitempty"`
	StartDate       *string `json:"startDate,omitempty"`
}

type AddStakeholdersInput struct {
	ProjectRef
	Stakeholders []StakeholderInput `json:"stakeholders" validate:"required,min=1,dive"`
}

type AddPersonInput struct {
	Name  string `json:"name" validate:"required"`
	Team  string `json:"team,omitempty"`
	Email string `json:"email,omitempty" validate:"omitempty,email"`
}

type QueryPortfolioInput struct {
	ProjectRef
	Query  string `json:"query,omitempty"`
	Status string `json:"status,omitempty" validate:"omitempty,oneof=planning active on-hold cancelled completed"`
}

type SendEmailInput struct {
	ProjectRef
	Recipients []string `json:"recipients" validate:"required,min=1,dive,required"`
	Subject    string   `json:"subject" validate:"required"`
	Body       string   `json:"body" validate:"required"`
}

func (*CommentInput) Tool() Name         { return Comment }
func (*CreateProjectInput) Tool() Name   { return CreateProject }
func (*AddTaskInput) Tool() Name         { return AddTask }
func (*UpdateTaskInput) Tool() Name      { return UpdateTask }
func (*AddSubtaskInput) Tool() Name      { return AddSubtask }
func (*UpdateSubtaskInput) Tool() Name   { return UpdateSubtask }
func (*UpdateProjectInput) Tool() Name   { return UpdateProject }
func (*AddStakeholdersInput) Tool() Name { return AddStakeholders }
func (*AddPersonInput) Tool() Name       { return AddPerson }
func (*QueryPortfolioInput) Tool() Name  { return QueryPortfolio }
func (*SendEmailInput) Tool() Name       { return SendEmail }

// NewInput returns an empty input for name. Every name in AllNames must have
// a case here.
func NewInput(name Name) (Input, bool) {
	switch name {
	case Comment:
		return &CommentInput{}, true
	case CreateProject:
		return &CreateProjectInput{}, true
	case AddTask:
		return &AddTaskInput{}, true
	case UpdateTask:
		return &UpdateTaskInput{}, true
	case AddSubtask:
		return &AddSubtaskInput{}, true
	case UpdateSubtask:
		return &UpdateSubtaskInput{}, true
	case UpdateProject:
		return &UpdateProjectInput{}, true
	case AddStakeholders:
		return &AddStakeholdersInput{}, true
	case AddPerson:
		return &AddPersonInput{}, true
	case QueryPortfolio:
		return &QueryPortfolioInput{}, true
	case SendEmail:
		return &SendEmailInput{}, true
	}
	return nil, false
}

// projectTargeter is satisfied by every input embedding ProjectRef.
type projectTargeter interface {
	ProjectTarget() string
}

// ProjectTargetOf returns the project reference carried by in, if any.
func ProjectTargetOf(in Input) (string, bool) {
	pt, ok := in.(projectTargeter)
	if !ok {
		return "", false
	}
	target := pt.ProjectTarget()
	return target, target != ""
}
