// Package selector decides which tool call, if any, a plan step may run under
// the run's constraints.
package selector

import (
	"fmt"
	"slices"
	"strings"

	"manity/internal/planner"
	"manity/internal/tools"
)

// AgentConstraints is the policy a run executes under.
type AgentConstraints struct {
	MaxSteps            int          `json:"maxSteps" yaml:"max_steps"`
	AllowSideEffects    bool         `json:"allowSideEffects" yaml:"allow_side_effects"`
	RequireConfirmation bool         `json:"requireConfirmation" yaml:"require_confirmation"`
	ExcludeTools        []tools.Name `json:"excludeTools,omitempty" yaml:"exclude_tools"`
}

// DefaultConstraints allows side effects without confirmation and runs at
// most 10 steps.
func DefaultConstraints() AgentConstraints {
	return AgentConstraints{MaxSteps: 10, AllowSideEffects: true}
}

type StopReason string

const (
	StopCompleted    StopReason = "completed"
	StopBlocked      StopReason = "blocked"
	StopNoCandidates StopReason = "no_candidates"
	StopSafety       StopReason = "safety"
)

// Selection is the outcome for one step. Either Call is set or Stop is true.
type Selection struct {
	Call       *planner.ToolCall
	Definition tools.Definition
	Input      tools.Input
	Stop       bool
	Reason     StopReason
	Detail     string
}

func stop(reason StopReason, format string, args ...any) Selection {
	return Selection{Stop: true, Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

type verdict int

const (
	eligible verdict = iota
	soft
	safety
)

// SelectNextStep picks the first eligible candidate of step stepIndex.
// Candidates are tried in order; a candidate that fails a safety gate halts
// the run even if a later one would have been eligible.
func SelectNextStep(catalog *tools.Catalog, plan *planner.Plan, stepIndex int, constraints AgentConstraints) Selection {
	if plan == nil || stepIndex >= len(plan.Steps) {
		return stop(StopCompleted, "all steps completed")
	}
	step := plan.Steps[stepIndex]
	if step.RequiresConfirmation && constraints.RequireConfirmation {
		return stop(StopBlocked, "step %d needs confirmation before it can run", stepIndex+1)
	}
	if slices.Contains(step.StopIf, planner.StopAlways) {
		reason := step.Rationale
		if plan.Reason != "" {
			reason = plan.Reason
		}
		return stop(StopNoCandidates, "stopped: %s", reason)
	}
	if len(step.ToolCandidates) == 0 {
		return stop(StopNoCandidates, "step %d has no tool candidates", stepIndex+1)
	}

	var skippedWhy []string
	for i := range step.ToolCandidates {
		call := &step.ToolCandidates[i]
		v, sel, why := evaluate(catalog, call, constraints)
		switch v {
		case eligible:
			return sel
		case safety:
			return stop(StopSafety, "%s", why)
		default:
			skippedWhy = append(skippedWhy, why)
		}
	}
	return stop(StopBlocked, "no eligible tool for step %d: %s", stepIndex+1, strings.Join(skippedWhy, "; "))
}

func evaluate(catalog *tools.Catalog, call *planner.ToolCall, c AgentConstraints) (verdict, Selection, string) {
	def, ok := catalog.Get(call.ToolName)
	if !ok {
		return soft, Selection{}, fmt.Sprintf("unknown tool %q", call.ToolName)
	}
	if slices.Contains(c.ExcludeTools, call.ToolName) {
		return soft, Selection{}, fmt.Sprintf("%s is excluded", call.ToolName)
	}
	if def.Metadata.SideEffecting && !c.AllowSideEffects {
		return safety, Selection{}, fmt.Sprintf("%s has side effects, which are not allowed in this run", call.ToolName)
	}
	if def.Metadata.RequiresConfirmation && c.RequireConfirmation {
		return safety, Selection{}, fmt.Sprintf("%s requires confirmation", call.ToolName)
	}
	in, err := catalog.DecodeInput(call.ToolName, call.Input)
	if err != nil {
		return soft, Selection{}, err.Error()
	}
	if def.Metadata.HasTag(tools.TagProjectScoped) {
		if _, ok := tools.ProjectTargetOf(in); !ok {
			return soft, Selection{}, fmt.Sprintf("%s: projectId or projectName is required", call.ToolName)
		}
	}
	return eligible, Selection{Call: call, Definition: def, Input: in}, ""
}
