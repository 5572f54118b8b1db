// Package tools holds the catalog of operations the assistant may invoke on
// a portfolio, their typed inputs, and the built-in implementations.
package tools

import (
	"context"
	"fmt"
	"slices"

	"manity/internal/delta"
)

// Name is the closed set of tool names.
type Name string

const (
	Comment         Name = "comment"
	CreateProject   Name = "create_project"
	AddTask         Name = "add_task"
	UpdateTask      Name = "update_task"
	AddSubtask      Name = "add_subtask"
	UpdateSubtask   Name = "update_subtask"
	UpdateProject   Name = "update_project"
	AddStakeholders Name = "add_stakeholders"
	AddPerson       Name = "add_person"
	QueryPortfolio  Name = "query_portfolio"
	SendEmail       Name = "send_email"
)

// AllNames lists every tool name in catalog order.
var AllNames = []Name{
	Comment, CreateProject, AddTask, UpdateTask, AddSubtask, UpdateSubtask,
	UpdateProject, AddStakeholders, AddPerson, QueryPortfolio, SendEmail,
}

// Known reports whether s names a tool in the closed set.
func Known(s string) bool {
	return slices.Contains(AllNames, Name(s))
}

const (
	TagProjectScoped = "project-scoped"
	TagPortfolio     = "portfolio"
	TagTasks         = "tasks"
	TagPeople        = "people"
	TagCommunication = "communication"
)

type Metadata struct {
	MutatesState         bool     `json:"mutatesState"`
	ReadsState           bool     `json:"readsState"`
	SideEffecting        bool     `json:"sideEffecting"`
	RequiresConfirmation bool     `json:"requiresConfirmation"`
	Tags                 []string `json:"tags,omitempty"`
}

func (m Metadata) HasTag(tag string) bool {
	return slices.Contains(m.Tags, tag)
}

type Status string

const (
	StatusSuccess Status = "success"
	StatusSkipped Status = "skipped"
	StatusError   Status = "error"
)

// Result is what a tool reports back to the execution loop.
type Result struct {
	Label            string        `json:"label"`
	Detail           string        `json:"detail"`
	Deltas           []delta.Delta `json:"-"`
	UpdatedEntityIDs []string      `json:"updatedEntityIds,omitempty"`
	Observations     string        `json:"observations,omitempty"`
	Status           Status        `json:"status"`
	Error            string        `json:"error,omitempty"`
}

func success(label, detail string, ids ...string) Result {
	return Result{Label: label, Detail: detail, Status: StatusSuccess, UpdatedEntityIDs: ids}
}

func skipped(label, detail string) Result {
	return Result{Label: label, Detail: detail, Status: StatusSkipped}
}

// Failure builds an error result from err.
func Failure(label string, err error) Result {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Result{Label: label, Detail: msg, Status: StatusError, Error: msg}
}

// Input is implemented by the typed input struct of each tool.
type Input interface {
	Tool() Name
}

// Definition describes one tool.
type Definition struct {
	Name        Name
	Description string
	Metadata    Metadata
	// NewInput returns a zero input value to decode raw arguments into.
	NewInput func() Input
	Execute  func(ctx context.Context, tc *Context, in Input) Result
}

// define ties a typed run function to a Definition, checking the input type
// once at the boundary.
func define[T any, PT interface {
	*T
	Input
}](name Name, description string, meta Metadata, run func(context.Context, *Context, PT) Result) Definition {
	return Definition{
		Name:        name,
		Description: description,
		Metadata:    meta,
		NewInput:    func() Input { return PT(new(T)) },
		Execute: func(ctx context.Context, tc *Context, in Input) Result {
			typed, ok := in.(PT)
			if !ok {
				return Failure(string(name), fmt.Errorf("unexpected input type %T for %s", in, name))
			}
			return run(ctx, tc, typed)
		},
	}
}
