package domain

import "encoding/json"

type ProjectStatus string

const (
	ProjectPlanning  ProjectStatus = "planning"
	ProjectActive    ProjectStatus = "active"
	ProjectOnHold    ProjectStatus = "on-hold"
	ProjectCancelled ProjectStatus = "cancelled"
	ProjectCompleted ProjectStatus = "completed"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

type TaskStatus string

const (
	TaskTodo       TaskStatus = "todo"
	TaskInProgress TaskStatus = "in-progress"
	TaskCompleted  TaskStatus = "completed"
)

// ProjectStatuses lists the accepted project status values in display order.
var ProjectStatuses = []ProjectStatus{ProjectPlanning, ProjectActive, ProjectOnHold, ProjectCancelled, ProjectCompleted}

var Priorities = []Priority{PriorityHigh, PriorityMedium, PriorityLow}

var TaskStatuses = []TaskStatus{TaskTodo, TaskInProgress, TaskCompleted}

type Project struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	Status          ProjectStatus `json:"status" enum:"planning,active,on-hold,cancelled,completed"`
	Priority        Priority      `json:"priority" enum:"high,medium,low"`
	Progress        int           `json:"progress" minimum:"0" maximum:"100"`
	Description     string        `json:"description,omitempty"`
	ExecutiveUpdate string        `json:"executiveUpdate,omitempty"`
	StartDate       string        `json:"startDate,omitempty"`
	TargetDate      string        `json:"targetDate,omitempty"`
	LastUpdate      string        `json:"lastUpdate,omitempty"`
	Stakeholders    []Stakeholder `json:"stakeholders"`
	Plan            []Task        `json:"plan"`
	RecentActivity  []Activity    `json:"recentActivity"`
}

type Stakeholder struct {
	Name  string `json:"name"`
	Team  string `json:"team,omitempty"`
	Email string `json:"email,omitempty"`
}

type Assignee struct {
	Name string `json:"name"`
	Team string `json:"team,omitempty"`
}

type Task struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Status        TaskStatus `json:"status" enum:"todo,in-progress,completed"`
	DueDate       string     `json:"dueDate,omitempty"`
	CompletedDate string     `json:"completedDate,omitempty"`
	Assignee      *Assignee  `json:"assignee"`
	Subtasks      []Subtask  `json:"subtasks"`
}

type Subtask struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Status        TaskStatus `json:"status" enum:"todo,in-progress,completed"`
	DueDate       string     `json:"dueDate,omitempty"`
	CompletedDate string     `json:"completedDate,omitempty"`
	Assignee      *Assignee  `json:"assignee"`
}

type Activity struct {
	ID     string `json:"id"`
	Date   string `json:"date" format:"date-time"`
	Author string `json:"author,omitempty"`
	Note   string `json:"note"`
}

type Person struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Team  string `json:"team,omitempty"`
	Email string `json:"email,omitempty"`
}

// PortfolioSummary is the read-only projection handed to query tools.
type PortfolioSummary struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	Status         ProjectStatus `json:"status"`
	Priority       Priority      `json:"priority"`
	Progress       int           `json:"progress"`
	TargetDate     string        `json:"targetDate,omitempty"`
	LastUpdate     string        `json:"lastUpdate,omitempty"`
	OpenTasks      int           `json:"openTasks"`
	CompletedTasks int           `json:"completedTasks"`
	OverdueTasks   int           `json:"overdueTasks"`
	Stakeholders   []string      `json:"stakeholders,omitempty"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

const (
	EmailQueued = "queued"
	EmailSent   = "sent"
	EmailFailed = "failed"
)

// Email is an outbound message queued by the send_email tool.
type Email struct {
	ID         string   `json:"id,omitempty"`
	Recipients []string `json:"recipients"`
	Subject    string   `json:"subject"`
	Body       string   `json:"body"`
	Status     string   `json:"status,omitempty" enum:"queued,sent,failed"`
	Attempts   int      `json:"attempts,omitempty"`
	LastError  string   `json:"last_error,omitempty"`
	CreatedAt  string   `json:"created_at,omitempty" format:"date-time"`
	SentAt     string   `json:"sent_at,omitempty" format:"date-time"`
}

const (
	RunKindTurn    = "turn"
	RunKindActions = "actions"
)

// Run is a persisted assistant turn. Plan and Log keep the engine's JSON
// form so older runs stay readable when those types grow.
type Run struct {
	ID               string          `json:"id"`
	Kind             string          `json:"kind" enum:"turn,actions"`
	ActorID          string          `json:"actor_id"`
	Response         string          `json:"response,omitempty"`
	StopReason       string          `json:"stop_reason"`
	Status           string          `json:"status"`
	Plan             json.RawMessage `json:"plan"`
	Log              json.RawMessage `json:"log"`
	UpdatedEntityIDs []string        `json:"updated_entity_ids"`
	CreatedAt        string          `json:"created_at" format:"date-time"`
	Actions          []RunAction     `json:"actions,omitempty"`
}

// RunAction is one undoable entry of a run. Deltas holds the encoded
// rollback records.
type RunAction struct {
	Index     int             `json:"index"`
	Type      string          `json:"type"`
	Label     string          `json:"label"`
	Detail    string          `json:"detail"`
	Status    string          `json:"status"`
	StepIndex int             `json:"step_index"`
	Undone    bool            `json:"undone"`
	UndoneAt  string          `json:"undone_at,omitempty" format:"date-time"`
	Deltas    json.RawMessage `json:"-"`
}

// Normalize replaces nil collections with empty ones so a project reads the
// same whether it came from JSON, storage or a tool.
func (p *Project) Normalize() {
	if p.Stakeholders == nil {
		p.Stakeholders = []Stakeholder{}
	}
	if p.Plan == nil {
		p.Plan = []Task{}
	}
	if p.RecentActivity == nil {
		p.RecentActivity = []Activity{}
	}
	for i := range p.Plan {
		if p.Plan[i].Subtasks == nil {
			p.Plan[i].Subtasks = []Subtask{}
		}
	}
}
