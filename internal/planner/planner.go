package planner

import (
	"encoding/json"
	"fmt"
	"strings"

	"manity/internal/tools"
)

// FallbackResponse is shown when the model output cannot be used.
const FallbackResponse = "Sorry, I couldn't work out what to do with that request. Could you rephrase it?"

type Planner struct {
	Catalog *tools.Catalog
}

func New(catalog *tools.Catalog) *Planner {
	return &Planner{Catalog: catalog}
}

// Parsed is the outcome of Parse: a plan safe to execute and the text to
// show the user.
type Parsed struct {
	Plan     *Plan
	Response string
}

type payload struct {
	Response *string  `json:"response"`
	Goal     string   `json:"goal"`
	Steps    []Step   `json:"steps"`
	Actions  []Action `json:"actions"`
}

// Parse reads model output in either the step or the legacy action shape.
// Output that fails to parse, lacks a response, or names invalid tool calls
// yields a blocked no-op plan.
func (pl *Planner) Parse(content string) Parsed {
	var p payload
	if err := json.Unmarshal([]byte(stripFence(content)), &p); err != nil {
		return Parsed{Plan: NoOpPlan("could not parse model output: " + err.Error()), Response: FallbackResponse}
	}
	if p.Response == nil || strings.TrimSpace(*p.Response) == "" {
		return Parsed{Plan: NoOpPlan("model output has no response text"), Response: FallbackResponse}
	}
	response := strings.TrimSpace(*p.Response)

	var plan *Plan
	switch {
	case p.Steps != nil:
		plan = &Plan{Goal: p.Goal, Steps: p.Steps, Status: StatusPending}
	case p.Actions != nil:
		plan = pl.ConvertLegacyActions(p.Actions)
		if p.Goal != "" {
			plan.Goal = p.Goal
		}
	default:
		plan = &Plan{Goal: p.Goal, Steps: []Step{}, Status: StatusPending}
	}
	if msgs := pl.Validate(plan); len(msgs) > 0 {
		return Parsed{Plan: NoOpPlan(strings.Join(msgs, "; ")), Response: response}
	}
	return Parsed{Plan: plan, Response: response}
}

// stripFence removes a surrounding markdown code fence, if any.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

// ConvertLegacyActions lifts each action into its own step. A step requires
// confirmation exactly when its tool is side-effecting.
func (pl *Planner) ConvertLegacyActions(actions []Action) *Plan {
	plan := &Plan{
		Goal:   fmt.Sprintf("Run %d action(s)", len(actions)),
		Steps:  make([]Step, 0, len(actions)),
		Status: StatusPending,
	}
	for _, a := range actions {
		name := a.Type()
		def, ok := pl.Catalog.Get(name)
		plan.Steps = append(plan.Steps, Step{
			Rationale:            fmt.Sprintf("Run %s", name),
			ToolCandidates:       []ToolCall{{ToolName: name, Input: a.Input()}},
			RequiresConfirmation: ok && def.Metadata.SideEffecting,
		})
	}
	return plan
}

// Validate checks every candidate of every step and returns all problems.
func (pl *Planner) Validate(plan *Plan) []string {
	if plan == nil {
		return []string{"plan is missing"}
	}
	var msgs []string
	for i, step := range plan.Steps {
		for j, call := range step.ToolCandidates {
			if call.ToolName == "" {
				msgs = append(msgs, fmt.Sprintf("step %d candidate %d: tool name is required", i+1, j+1))
				continue
			}
			for _, m := range pl.Catalog.ValidateInput(call.ToolName, call.Input) {
				msgs = append(msgs, fmt.Sprintf("step %d: %s", i+1, m))
			}
		}
	}
	return msgs
}
