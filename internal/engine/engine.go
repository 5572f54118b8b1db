// Package engine executes plans step by step against a private copy of the
// portfolio and records every change as an invertible delta.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"manity/internal/delta"
	"manity/internal/domain"
	"manity/internal/planner"
	"manity/internal/resolve"
	"manity/internal/selector"
	"manity/internal/tools"
)

type StopReason string

const (
	StopSuccess      StopReason = "success"
	StopBlocked      StopReason = "blocked"
	StopNoCandidates StopReason = "no_candidates"
	StopSafety       StopReason = "safety"
	StopError        StopReason = "error"
	StopMaxSteps     StopReason = "max_steps"
	StopCancelled    StopReason = "cancelled"
)

type EventStatus string

const (
	EventSuccess EventStatus = "success"
	EventFailure EventStatus = "failure"
	EventSkipped EventStatus = "skipped"
	EventBlocked EventStatus = "blocked"
)

// ExecutionEvent records one executed or blocked step.
type ExecutionEvent struct {
	StepIndex        int            `json:"stepIndex"`
	ToolName         tools.Name     `json:"toolName,omitempty"`
	Input            map[string]any `json:"input,omitempty"`
	Timestamp        string         `json:"timestamp"`
	Label            string         `json:"label"`
	Detail           string         `json:"detail"`
	Deltas           []delta.Delta  `json:"-"`
	Status           EventStatus    `json:"status"`
	UpdatedEntityIDs []string       `json:"updatedEntityIds,omitempty"`
	Error            string         `json:"error,omitempty"`
}

type ExecutionLog struct {
	Events      []ExecutionEvent `json:"events"`
	Status      planner.Status   `json:"status"`
	StopReason  StopReason       `json:"stopReason"`
	StartedAt   string           `json:"startedAt"`
	CompletedAt string           `json:"completedAt,omitempty"`
}

// ActionResult is the per-step summary shown to the user. Undone is set once
// the action has been reverted.
type ActionResult struct {
	Type      tools.Name    `json:"type"`
	Label     string        `json:"label"`
	Detail    string        `json:"detail"`
	Deltas    []delta.Delta `json:"-"`
	Status    tools.Status  `json:"status"`
	StepIndex int           `json:"stepIndex"`
	Undone    bool          `json:"undone,omitempty"`
}

// AgentResult bundles everything a run produced. Response is left for the
// caller to fill in.
type AgentResult struct {
	Plan             *planner.Plan    `json:"plan"`
	Log              ExecutionLog     `json:"log"`
	Deltas           []delta.Delta    `json:"-"`
	UpdatedEntityIDs []string         `json:"updatedEntityIds"`
	Actions          []ActionResult   `json:"actions"`
	Projects         []domain.Project `json:"-"`
	People           []domain.Person  `json:"-"`
	StopReason       StopReason       `json:"stopReason"`
	Response         string           `json:"response,omitempty"`
}

// RunConfig carries per-run policy and callbacks.
type RunConfig struct {
	Constraints  selector.AgentConstraints
	OnEvent      func(ExecutionEvent)
	OnPlanUpdate func(*planner.Plan)
	// IDs overrides identifier generation for new entities.
	IDs func(kind string) string
}

// Metrics receives step and run observations.
type Metrics interface {
	ObserveStep(tool, status string, elapsed time.Duration)
	ObserveRun(reason string, steps int, elapsed time.Duration)
}

type Engine struct {
	Catalog *tools.Catalog
	Logger  *slog.Logger
	Metrics Metrics
	Now     func() time.Time
}

func New(catalog *tools.Catalog, logger *slog.Logger) Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return Engine{
		Catalog: catalog,
		Logger:  logger.With("component", "engine"),
		Now:     time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e Engine) stamp() string {
	return e.now().Format(time.RFC3339Nano)
}

// RunPlan executes plan against a copy of ac. The plan's status is updated in
// place; ac is never modified. A MaxSteps of zero or less uses the default
// budget. The working copy starts normalized: a nil portfolio becomes empty
// and nil collections inside projects become empty slices, so rolling back
// AgentResult.Deltas from AgentResult.Projects yields that normalized copy.
func (e Engine) RunPlan(ctx context.Context, plan *planner.Plan, ac planner.AgentContext, services tools.Services, cfg RunConfig) AgentResult {
	started := time.Now()
	if plan == nil {
		plan = planner.NoOpPlan("no plan to run")
	}
	constraints := cfg.Constraints
	if constraints.MaxSteps <= 0 {
		constraints.MaxSteps = selector.DefaultConstraints().MaxSteps
	}

	tc := tools.NewContext(workingCopy(ac.Projects), resolve.ClonePeople(ac.People), services)
	tc.Author = ac.Author
	tc.Clock = e.now
	tc.IDs = cfg.IDs

	log := ExecutionLog{Events: []ExecutionEvent{}, StartedAt: e.stamp()}
	result := AgentResult{Plan: plan, UpdatedEntityIDs: []string{}, Actions: []ActionResult{}}
	seen := map[string]bool{}

	plan.Status = planner.StatusExecuting
	if cfg.OnPlanUpdate != nil {
		cfg.OnPlanUpdate(plan)
	}
	record := func(ev ExecutionEvent) {
		log.Events = append(log.Events, ev)
		if cfg.OnEvent != nil {
			cfg.OnEvent(ev)
		}
	}

	logger := e.logger()
	stop := StopSuccess
	step := 0
	for step < len(plan.Steps) && step < constraints.MaxSteps {
		if err := ctx.Err(); err != nil {
			record(ExecutionEvent{StepIndex: step, Timestamp: e.stamp(), Label: "Run cancelled", Detail: err.Error(), Status: EventBlocked})
			stop = StopCancelled
			break
		}

		sel := selector.SelectNextStep(e.Catalog, plan, step, constraints)
		if sel.Stop {
			record(ExecutionEvent{StepIndex: step, Timestamp: e.stamp(), Label: blockedLabel(sel.Reason), Detail: sel.Detail, Status: EventBlocked})
			stop = StopReason(sel.Reason)
			logger.Info("run stopped", "step", step, "reason", stop, "detail", sel.Detail)
			break
		}
		if sel.Call == nil {
			step++
			continue
		}

		tc.RefreshIndex()
		logger.Debug("step start", "step", step, "tool", sel.Call.ToolName)
		stepStarted := time.Now()
		res := e.invoke(ctx, sel, tc)
		status := eventStatus(res.Status)
		if e.Metrics != nil {
			e.Metrics.ObserveStep(string(sel.Call.ToolName), string(status), time.Since(stepStarted))
		}
		logger.Debug("step finished", "step", step, "tool", sel.Call.ToolName, "status", status)

		record(ExecutionEvent{
			StepIndex:        step,
			ToolName:         sel.Call.ToolName,
			Input:            sel.Call.Input,
			Timestamp:        e.stamp(),
			Label:            res.Label,
			Detail:           res.Detail,
			Deltas:           res.Deltas,
			Status:           status,
			UpdatedEntityIDs: res.UpdatedEntityIDs,
			Error:            res.Error,
		})
		result.Deltas = append(result.Deltas, res.Deltas...)
		for _, id := range res.UpdatedEntityIDs {
			if !seen[id] {
				seen[id] = true
				result.UpdatedEntityIDs = append(result.UpdatedEntityIDs, id)
			}
		}
		result.Actions = append(result.Actions, ActionResult{
			Type:      sel.Call.ToolName,
			Label:     res.Label,
			Detail:    res.Detail,
			Deltas:    res.Deltas,
			Status:    res.Status,
			StepIndex: step,
		})

		if status == EventFailure {
			logger.Warn("tool failed", "step", step, "tool", sel.Call.ToolName, "error", res.Error)
			stop = StopError
			break
		}
		step++
	}
	if stop == StopSuccess && step >= constraints.MaxSteps && step < len(plan.Steps) {
		stop = StopMaxSteps
	}

	final := planner.StatusFailed
	if stop == StopSuccess {
		final = planner.StatusCompleted
	}
	log.Status = final
	log.StopReason = stop
	log.CompletedAt = e.stamp()
	plan.Status = final
	if cfg.OnPlanUpdate != nil {
		cfg.OnPlanUpdate(plan)
	}
	if e.Metrics != nil {
		e.Metrics.ObserveRun(string(stop), len(result.Actions), time.Since(started))
	}
	logger.Info("run finished", "reason", stop, "steps", len(result.Actions), "deltas", len(result.Deltas))

	result.Log = log
	result.StopReason = stop
	result.Projects = tc.Projects
	result.People = tc.People
	return result
}

// workingCopy clones projects and normalizes the clone.
func workingCopy(projects []domain.Project) []domain.Project {
	out := resolve.CloneProjects(projects)
	if out == nil {
		return []domain.Project{}
	}
	for i := range out {
		out[i].Normalize()
	}
	return out
}

// ExecuteAction runs a single legacy action as a one-step plan.
func (e Engine) ExecuteAction(ctx context.Context, action planner.Action, ac planner.AgentContext, services tools.Services, cfg RunConfig) AgentResult {
	return e.ExecuteActions(ctx, []planner.Action{action}, ac, services, cfg)
}

// ExecuteActions runs legacy actions in order, one step per action.
func (e Engine) ExecuteActions(ctx context.Context, actions []planner.Action, ac planner.AgentContext, services tools.Services, cfg RunConfig) AgentResult {
	plan := planner.New(e.Catalog).ConvertLegacyActions(actions)
	return e.RunPlan(ctx, plan, ac, services, cfg)
}

// invoke runs the selected tool, turning a panic into an error result.
func (e Engine) invoke(ctx context.Context, sel selector.Selection, tc *tools.Context) (res tools.Result) {
	name := sel.Call.ToolName
	defer func() {
		if r := recover(); r != nil {
			e.logger().Error("tool panicked", "tool", name, "panic", r)
			res = tools.Failure(string(name), fmt.Errorf("%s panicked: %v", name, r))
		}
	}()
	res = sel.Definition.Execute(ctx, tc, sel.Input)
	if res.Label == "" {
		res.Label = string(name)
	}
	if res.Detail == "" {
		res.Detail = firstNonEmpty(res.Error, res.Label)
	}
	if res.Status != tools.StatusSuccess && res.Status != tools.StatusSkipped {
		res.Status = tools.StatusError
	}
	if res.Status == tools.StatusError && res.Error == "" {
		res.Error = res.Detail
	}
	return res
}

func eventStatus(s tools.Status) EventStatus {
	switch s {
	case tools.StatusSuccess:
		return EventSuccess
	case tools.StatusSkipped:
		return EventSkipped
	default:
		return EventFailure
	}
}

func blockedLabel(r selector.StopReason) string {
	switch r {
	case selector.StopSafety:
		return "Blocked by safety policy"
	case selector.StopNoCandidates:
		return "Nothing to run"
	default:
		return "Step blocked"
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
