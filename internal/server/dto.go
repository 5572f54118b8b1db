package server

import (
	"manity/internal/domain"
	"manity/internal/engine"
	"manity/internal/planner"
	"manity/internal/selector"
	"manity/internal/tools"
)

// Request payloads

// ConstraintsRequest overrides the workspace agent constraints field by field.
type ConstraintsRequest struct {
	MaxSteps            *int     `json:"max_steps,omitempty" minimum:"1"`
	AllowSideEffects    *bool    `json:"allow_side_effects,omitempty"`
	RequireConfirmation *bool    `json:"require_confirmation,omitempty"`
	ExcludeTools        []string `json:"exclude_tools,omitempty"`
}

func (c *ConstraintsRequest) apply(base selector.AgentConstraints) selector.AgentConstraints {
	if c == nil {
		return base
	}
	if c.MaxSteps != nil {
		base.MaxSteps = *c.MaxSteps
	}
	if c.AllowSideEffects != nil {
		base.AllowSideEffects = *c.AllowSideEffects
	}
	if c.RequireConfirmation != nil {
		base.RequireConfirmation = *c.RequireConfirmation
	}
	if c.ExcludeTools != nil {
		base.ExcludeTools = nil
		for _, n := range c.ExcludeTools {
			base.ExcludeTools = append(base.ExcludeTools, tools.Name(n))
		}
	}
	return base
}

type TurnRequest struct {
	Content     string              `json:"content" minLength:"1" doc:"raw model output: a JSON plan, optionally fenced"`
	Author      string              `json:"author,omitempty"`
	Constraints *ConstraintsRequest `json:"constraints,omitempty"`
}

type ActionsRequest struct {
	Actions     []map[string]any    `json:"actions" minItems:"1" doc:"legacy actions, each with a type field naming the tool"`
	Author      string              `json:"author,omitempty"`
	Constraints *ConstraintsRequest `json:"constraints,omitempty"`
}

type PersonRequest struct {
	Name  string `json:"name" minLength:"1"`
	Team  string `json:"team,omitempty"`
	Email string `json:"email,omitempty" format:"email"`
}

type ReplaceProjectsRequest struct {
	Projects []map[string]any `json:"projects" doc:"full portfolio; projects without id get one"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id" minLength:"1"`
}

// Response payloads

type DevLoginResponse struct {
	Token string `json:"token"`
}

type ActionResponse struct {
	Index     int    `json:"index"`
	Type      string `json:"type"`
	Label     string `json:"label"`
	Detail    string `json:"detail"`
	Status    string `json:"status"`
	StepIndex int    `json:"step_index"`
	Undone    bool   `json:"undone"`
	UndoneAt  string `json:"undone_at,omitempty"`
}

type TurnResponse struct {
	RunID            string              `json:"run_id"`
	Response         string              `json:"response,omitempty"`
	StopReason       string              `json:"stop_reason"`
	Plan             *planner.Plan       `json:"plan"`
	Log              engine.ExecutionLog `json:"log"`
	Actions          []ActionResponse    `json:"actions"`
	UpdatedEntityIDs []string            `json:"updated_entity_ids"`
	Projects         []domain.Project    `json:"projects"`
}

type RunResponse struct {
	ID               string               `json:"id"`
	Kind             string               `json:"kind"`
	ActorID          string               `json:"actor_id"`
	Response         string               `json:"response,omitempty"`
	StopReason       string               `json:"stop_reason"`
	Status           string               `json:"status"`
	CreatedAt        string               `json:"created_at"`
	UpdatedEntityIDs []string             `json:"updated_entity_ids"`
	Plan             *planner.Plan        `json:"plan,omitempty"`
	Log              *engine.ExecutionLog `json:"log,omitempty"`
	Actions          []ActionResponse     `json:"actions,omitempty"`
}

type UndoResponse struct {
	RunID    string           `json:"run_id"`
	Undone   bool             `json:"undone" doc:"false when the action had already been undone"`
	Action   ActionResponse   `json:"action"`
	Projects []domain.Project `json:"projects"`
}

type PromptResponse struct {
	Prompt string `json:"prompt"`
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type paginatedRuns struct {
	Items      []RunResponse `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

type HealthResponse struct {
	Status        string `json:"status"`
	SchemaVersion int    `json:"schema_version"`
}

func actionResponses(actions []domain.RunAction) []ActionResponse {
	out := make([]ActionResponse, 0, len(actions))
	for _, a := range actions {
		out = append(out, actionResponse(a))
	}
	return out
}

func actionResponse(a domain.RunAction) ActionResponse {
	return ActionResponse{
		Index:     a.Index,
		Type:      a.Type,
		Label:     a.Label,
		Detail:    a.Detail,
		Status:    a.Status,
		StepIndex: a.StepIndex,
		Undone:    a.Undone,
		UndoneAt:  a.UndoneAt,
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		ProjectID:  e.ProjectID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    e.Payload,
	}
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
