// Package planner turns structured model output into validated plans of tool
// calls.
package planner

import "manity/internal/tools"

type Status string

const (
	StatusPending   Status = "pending"
	StatusExecuting Status = "executing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusBlocked   Status = "blocked"
)

// StopAlways in a step's StopIf halts the run before the step is attempted.
const StopAlways = "always"

type ToolCall struct {
	ToolName tools.Name     `json:"toolName"`
	Input    map[string]any `json:"input"`
}

type Step struct {
	Rationale            string     `json:"rationale"`
	ToolCandidates       []ToolCall `json:"toolCandidates"`
	RequiresConfirmation bool       `json:"requiresConfirmation,omitempty"`
	StopIf               []string   `json:"stopIf,omitempty"`
}

// Plan is an ordered list of steps. The engine updates Status in place.
type Plan struct {
	Goal   string `json:"goal,omitempty"`
	Steps  []Step `json:"steps"`
	Status Status `json:"status"`
	// Reason explains why a plan was replaced by a no-op plan.
	Reason string `json:"reason,omitempty"`
}

// Action is a legacy direct-action call: {"type": "<tool>", ...fields}.
type Action map[string]any

// Type returns the tool named by the action.
func (a Action) Type() tools.Name {
	s, _ := a["type"].(string)
	return tools.Name(s)
}

// Input returns the action's fields without the type key.
func (a Action) Input() map[string]any {
	out := make(map[string]any, len(a))
	for k, v := range a {
		if k != "type" {
			out[k] = v
		}
	}
	return out
}

// NoOpPlan returns a blocked single-step plan that halts before any tool runs.
func NoOpPlan(reason string) *Plan {
	return &Plan{
		Goal:   "No action",
		Status: StatusBlocked,
		Reason: reason,
		Steps: []Step{{
			Rationale:      reason,
			ToolCandidates: []ToolCall{},
			StopIf:         []string{StopAlways},
		}},
	}
}
