package engine_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"manity/internal/delta"
	"manity/internal/domain"
	"manity/internal/engine"
	"manity/internal/planner"
	"manity/internal/selector"
	"manity/internal/tools"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	Config engine.RunConfig
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	eng := engine.New(tools.NewDefaultCatalog(), nil)
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) }
	n := 0
	cfg := engine.RunConfig{
		Constraints: selector.DefaultConstraints(),
		IDs: func(kind string) string {
			n++
			return fmt.Sprintf("%s-%d", kind, n)
		},
	}
	return testEnv{Engine: eng, Ctx: context.Background(), Config: cfg}
}

type mailer struct {
	err  error
	sent int
}

func (m *mailer) CreatePerson(_ context.Context, p domain.Person) (domain.Person, error) {
	return p, nil
}

func (m *mailer) SendEmail(context.Context, domain.Email) error {
	if m.err != nil {
		return m.err
	}
	m.sent++
	return nil
}

func (m *mailer) BuildThrustContext(context.Context) ([]domain.PortfolioSummary, error) {
	return nil, nil
}

func seed() planner.AgentContext {
	p := domain.Project{
		ID: "p1", Name: "Apollo", Status: domain.ProjectActive, Priority: domain.PriorityMedium, Progress: 20,
		Plan:           []domain.Task{{ID: "t1", Title: "Design", Status: domain.TaskTodo}},
		RecentActivity: []domain.Activity{{ID: "a1", Date: "2023-12-01T00:00:00Z", Note: "kickoff"}},
		LastUpdate:     "kickoff",
	}
	p.Normalize()
	return planner.AgentContext{
		Projects: []domain.Project{p},
		People:   []domain.Person{{ID: "u1", Name: "Ada", Email: "ada@example.com"}},
		Author:   "Grace",
	}
}

func step(name tools.Name, input map[string]any) planner.Step {
	return planner.Step{Rationale: string(name), ToolCandidates: []planner.ToolCall{{ToolName: name, Input: input}}}
}

func newPlan(steps ...planner.Step) *planner.Plan {
	return &planner.Plan{Steps: steps, Status: planner.StatusPending}
}

func TestLaunchScenario(t *testing.T) {
	env := newTestEnv(t)
	plan := newPlan(
		step(tools.CreateProject, map[string]any{"name": "Launch"}),
		step(tools.AddTask, map[string]any{"projectName": "Launch", "title": "Kickoff"}),
		step(tools.Comment, map[string]any{"projectName": "Launch", "note": "Kickoff scheduled"}),
	)
	res := env.Engine.RunPlan(env.Ctx, plan, planner.AgentContext{Author: "Grace"}, nil, env.Config)

	require.Equal(t, engine.StopSuccess, res.StopReason)
	assert.Equal(t, planner.StatusCompleted, plan.Status)
	assert.Equal(t, planner.StatusCompleted, res.Log.Status)
	assert.NotEmpty(t, res.Log.CompletedAt)
	require.Len(t, res.Projects, 1)
	launch := res.Projects[0]
	assert.Equal(t, "Launch", launch.Name)
	require.Len(t, launch.Plan, 1)
	assert.Equal(t, "Kickoff", launch.Plan[0].Title)
	require.Len(t, launch.RecentActivity, 1)
	assert.Equal(t, "Kickoff scheduled", launch.RecentActivity[0].Note)
	assert.Equal(t, "Kickoff scheduled", launch.LastUpdate)
	assert.Equal(t, "Grace", launch.RecentActivity[0].Author)
	require.Len(t, res.Deltas, 3)
	assert.Empty(t, delta.Rollback(res.Projects, res.Deltas))
}

func TestRollbackRestoresStartingState(t *testing.T) {
	env := newTestEnv(t)
	ac := seed()
	plan := newPlan(
		step(tools.UpdateProject, map[string]any{"projectId": "p1", "status": "on-hold", "progress": 35, "name": "Apollo 2"}),
		step(tools.AddTask, map[string]any{"projectName": "apollo 2", "title": "Build", "assigneeName": "ada"}),
		step(tools.AddSubtask, map[string]any{"projectId": "p1", "taskTitle": "Build", "title": "Scaffold"}),
		step(tools.UpdateTask, map[string]any{"projectId": "p1", "taskTitle": "design", "status": "completed"}),
		step(tools.UpdateSubtask, map[string]any{"projectId": "p1", "taskTitle": "Build", "subtaskTitle": "Scaffold", "status": "in-progress"}),
		step(tools.AddStakeholders, map[string]any{"projectId": "p1", "stakeholders": []any{"Ada"}}),
		step(tools.Comment, map[string]any{"projectId": "p1", "note": "Design done"}),
	)
	res := env.Engine.RunPlan(env.Ctx, plan, ac, nil, env.Config)
	require.Equal(t, engine.StopSuccess, res.StopReason, res.Log.Events)
	require.Len(t, res.Deltas, 7)

	// the caller's state is untouched
	assert.Equal(t, seed(), ac)
	p := res.Projects[0]
	assert.Equal(t, "2024-01-01", p.Plan[0].CompletedDate)
	assert.Equal(t, &domain.Assignee{Name: "Ada"}, p.Plan[1].Assignee)
	assert.Equal(t, "Design done", p.LastUpdate)

	assert.Equal(t, seed().Projects, delta.Rollback(res.Projects, res.Deltas))
}

func TestRollbackRestoresNormalizedStartOfBareProject(t *testing.T) {
	env := newTestEnv(t)
	bare := domain.Project{ID: "p1", Name: "Apollo"}
	ac := planner.AgentContext{Projects: []domain.Project{bare}}
	plan := newPlan(
		step(tools.AddTask, map[string]any{"projectId": "p1", "title": "Build"}),
		step(tools.Comment, map[string]any{"projectId": "p1", "note": "Started"}),
	)
	res := env.Engine.RunPlan(env.Ctx, plan, ac, nil, env.Config)
	require.Equal(t, engine.StopSuccess, res.StopReason, res.Log.Events)
	require.Len(t, res.Deltas, 2)
	assert.Nil(t, ac.Projects[0].Plan)

	want := bare
	want.Normalize()
	assert.Equal(t, []domain.Project{want}, delta.Rollback(res.Projects, res.Deltas))
}

func TestRollbackOfEmptyPortfolioIsEmptyNotNil(t *testing.T) {
	env := newTestEnv(t)
	plan := newPlan(step(tools.CreateProject, map[string]any{"name": "Launch"}))
	res := env.Engine.RunPlan(env.Ctx, plan, planner.AgentContext{}, nil, env.Config)
	require.Equal(t, engine.StopSuccess, res.StopReason)
	require.Len(t, res.Projects, 1)
	assert.Equal(t, []domain.Project{}, delta.Rollback(res.Projects, res.Deltas))
}

func TestSafetyStopAtSecondStep(t *testing.T) {
	env := newTestEnv(t)
	env.Config.Constraints.AllowSideEffects = false
	svc := &mailer{}
	plan := newPlan(
		step(tools.Comment, map[string]any{"projectId": "p1", "note": "before"}),
		step(tools.SendEmail, map[string]any{"recipients": []any{"ada"}, "subject": "s", "body": "b"}),
		step(tools.AddTask, map[string]any{"projectId": "p1", "title": "never"}),
	)
	res := env.Engine.RunPlan(env.Ctx, plan, seed(), svc, env.Config)

	assert.Equal(t, engine.StopSafety, res.StopReason)
	assert.Equal(t, planner.StatusFailed, plan.Status)
	require.Len(t, res.Log.Events, 2)
	assert.Equal(t, engine.EventSuccess, res.Log.Events[0].Status)
	assert.Equal(t, engine.EventBlocked, res.Log.Events[1].Status)
	assert.Equal(t, 1, res.Log.Events[1].StepIndex)
	assert.Len(t, res.Deltas, 1)
	assert.Len(t, res.Actions, 1)
	assert.Len(t, res.Projects[0].Plan, 1)
	assert.Zero(t, svc.sent)
}

func TestStepBudget(t *testing.T) {
	env := newTestEnv(t)
	env.Config.Constraints.MaxSteps = 3
	var steps []planner.Step
	for i := 0; i < 5; i++ {
		steps = append(steps, step(tools.Comment, map[string]any{"projectId": "p1", "note": fmt.Sprintf("note %d", i)}))
	}
	res := env.Engine.RunPlan(env.Ctx, newPlan(steps...), seed(), nil, env.Config)

	assert.Equal(t, engine.StopMaxSteps, res.StopReason)
	assert.Len(t, res.Actions, 3)
	assert.Len(t, res.Deltas, 3)
	assert.Equal(t, planner.StatusFailed, res.Log.Status)
}

func TestBudgetEqualToPlanLengthSucceeds(t *testing.T) {
	env := newTestEnv(t)
	env.Config.Constraints.MaxSteps = 1
	res := env.Engine.RunPlan(env.Ctx, newPlan(step(tools.Comment, map[string]any{"projectId": "p1", "note": "x"})), seed(), nil, env.Config)
	assert.Equal(t, engine.StopSuccess, res.StopReason)
}

func TestToolErrorStopsRunAndKeepsDeltas(t *testing.T) {
	env := newTestEnv(t)
	svc := &mailer{err: errors.New("mailbox full")}
	plan := newPlan(
		step(tools.Comment, map[string]any{"projectId": "p1", "note": "before"}),
		step(tools.SendEmail, map[string]any{"recipients": []any{"ada"}, "subject": "s", "body": "b"}),
		step(tools.Comment, map[string]any{"projectId": "p1", "note": "after"}),
	)
	res := env.Engine.RunPlan(env.Ctx, plan, seed(), svc, env.Config)

	assert.Equal(t, engine.StopError, res.StopReason)
	require.Len(t, res.Log.Events, 2)
	failed := res.Log.Events[1]
	assert.Equal(t, engine.EventFailure, failed.Status)
	assert.Contains(t, failed.Error, "mailbox full")
	assert.Len(t, res.Deltas, 1)
	assert.Equal(t, "before", res.Projects[0].LastUpdate)
}

func TestSkippedStepsContinue(t *testing.T) {
	env := newTestEnv(t)
	plan := newPlan(
		step(tools.Comment, map[string]any{"projectName": "Gemini", "note": "lost"}),
		step(tools.Comment, map[string]any{"projectName": "Apollo", "note": "found"}),
		step(tools.UpdateProject, map[string]any{"projectName": "Apollo", "progress": 50}),
	)
	res := env.Engine.RunPlan(env.Ctx, plan, seed(), nil, env.Config)

	assert.Equal(t, engine.StopSuccess, res.StopReason)
	require.Len(t, res.Actions, 3)
	assert.Equal(t, tools.StatusSkipped, res.Actions[0].Status)
	assert.Equal(t, engine.EventSkipped, res.Log.Events[0].Status)
	assert.Equal(t, tools.StatusSuccess, res.Actions[1].Status)
	assert.Equal(t, []string{"p1", "activity-1"}, res.UpdatedEntityIDs)
}

func TestToolPanicBecomesError(t *testing.T) {
	env := newTestEnv(t)
	catalog := tools.NewDefaultCatalog()
	def, _ := catalog.Get(tools.Comment)
	def.Execute = func(context.Context, *tools.Context, tools.Input) tools.Result { panic("boom") }
	catalog.Register(def)
	env.Engine.Catalog = catalog

	res := env.Engine.RunPlan(env.Ctx, newPlan(step(tools.Comment, map[string]any{"projectId": "p1", "note": "x"})), seed(), nil, env.Config)
	assert.Equal(t, engine.StopError, res.StopReason)
	require.Len(t, res.Actions, 1)
	assert.Equal(t, tools.StatusError, res.Actions[0].Status)
	assert.Contains(t, res.Log.Events[0].Error, "boom")
	assert.NotEmpty(t, res.Actions[0].Label)
}

func TestCancelledContext(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(env.Ctx)
	cancel()
	res := env.Engine.RunPlan(ctx, newPlan(step(tools.Comment, map[string]any{"projectId": "p1", "note": "x"})), seed(), nil, env.Config)
	assert.Equal(t, engine.StopCancelled, res.StopReason)
	assert.Empty(t, res.Actions)
	assert.Equal(t, seed().Projects, res.Projects)
}

func TestNoOpPlanStopsImmediately(t *testing.T) {
	env := newTestEnv(t)
	plan := planner.NoOpPlan("step 1: unknown tool")
	res := env.Engine.RunPlan(env.Ctx, plan, seed(), nil, env.Config)
	assert.Equal(t, engine.StopNoCandidates, res.StopReason)
	require.Len(t, res.Log.Events, 1)
	assert.Contains(t, res.Log.Events[0].Detail, "unknown tool")
	assert.Equal(t, planner.StatusFailed, plan.Status)
}

func TestCallbacks(t *testing.T) {
	env := newTestEnv(t)
	var statuses []planner.Status
	var events []engine.ExecutionEvent
	env.Config.OnPlanUpdate = func(p *planner.Plan) { statuses = append(statuses, p.Status) }
	env.Config.OnEvent = func(ev engine.ExecutionEvent) { events = append(events, ev) }
	env.Engine.RunPlan(env.Ctx, newPlan(step(tools.Comment, map[string]any{"projectId": "p1", "note": "x"})), seed(), nil, env.Config)

	assert.Equal(t, []planner.Status{planner.StatusExecuting, planner.StatusCompleted}, statuses)
	require.Len(t, events, 1)
	assert.Equal(t, tools.Comment, events[0].ToolName)
}

func TestExecuteActionsConfirmationGate(t *testing.T) {
	env := newTestEnv(t)
	env.Config.Constraints.RequireConfirmation = true
	actions := []planner.Action{
		{"type": "comment", "projectId": "p1", "note": "hi"},
		{"type": "send_email", "recipients": []any{"ada"}, "subject": "s", "body": "b"},
	}
	res := env.Engine.ExecuteActions(env.Ctx, actions, seed(), &mailer{}, env.Config)
	assert.Equal(t, engine.StopBlocked, res.StopReason)
	assert.Len(t, res.Actions, 1)
	require.Len(t, res.Plan.Steps, 2)
	assert.True(t, res.Plan.Steps[1].RequiresConfirmation)

	single := env.Engine.ExecuteAction(env.Ctx, actions[0], seed(), nil, env.Config)
	assert.Equal(t, engine.StopSuccess, single.StopReason)
}

type recorder struct {
	steps []string
	runs  []string
}

func (r *recorder) ObserveStep(tool, status string, _ time.Duration) {
	r.steps = append(r.steps, tool+":"+status)
}

func (r *recorder) ObserveRun(reason string, _ int, _ time.Duration) {
	r.runs = append(r.runs, reason)
}

func TestMetricsHook(t *testing.T) {
	env := newTestEnv(t)
	rec := &recorder{}
	env.Engine.Metrics = rec
	env.Engine.RunPlan(env.Ctx, newPlan(
		step(tools.Comment, map[string]any{"projectId": "p1", "note": "x"}),
		step(tools.Comment, map[string]any{"projectId": "zz", "note": "x"}),
	), seed(), nil, env.Config)
	assert.Equal(t, []string{"comment:success", "comment:skipped"}, rec.steps)
	assert.Equal(t, []string{"success"}, rec.runs)
}
