package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"manity/internal/config"
	"manity/internal/delta"
	"manity/internal/domain"
	"manity/internal/engine"
	"manity/internal/events"
	"manity/internal/planner"
	"manity/internal/repo"
	"manity/internal/selector"
	"manity/internal/tools"
	"manity/internal/undo"
)

// UndoObserver receives undo outcomes, e.g. for metrics.
type UndoObserver interface {
	ObserveUndo(tool string, undone bool)
}

// Assistant runs agent turns against the workspace portfolio. Turns, undos
// and portfolio replacement are serialized so a run never works from a
// stale copy.
type Assistant struct {
	Repo    repo.Repo
	Events  events.Writer
	Engine  engine.Engine
	Planner *planner.Planner
	Undoer  undo.Manager
	Config  *config.Config
	Mailer  *Mailer
	Metrics UndoObserver
	Logger  *slog.Logger
	Now     func() time.Time
	// IDs overrides identifier generation for entities and runs.
	IDs func(kind string) string

	mu sync.Mutex
}

// TurnOptions are per-call overrides. Zero values fall back to config.
type TurnOptions struct {
	ActorID     string
	Author      string
	Constraints *selector.AgentConstraints
	OnEvent     func(engine.ExecutionEvent)
}

// Outcome is a persisted run.
type Outcome struct {
	RunID  string
	Result engine.AgentResult
}

type UndoOutcome struct {
	RunID    string
	Index    int
	Undone   bool
	Action   domain.RunAction
	Projects []domain.Project
}

func NewAssistant(r repo.Repo, cfg *config.Config, logger *slog.Logger) *Assistant {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = config.Default("default")
	}
	catalog := tools.NewDefaultCatalog()
	return &Assistant{
		Repo:    r,
		Events:  events.Writer{Now: r.Now},
		Engine:  engine.New(catalog, logger),
		Planner: planner.New(catalog),
		Undoer:  undo.Manager{Logger: logger.With("component", "undo")},
		Config:  cfg,
		Logger:  logger.With("component", "assistant"),
	}
}

func (a *Assistant) now() time.Time {
	if a.Now != nil {
		return a.Now().UTC()
	}
	return time.Now().UTC()
}

func (a *Assistant) newID(kind string) string {
	if a.IDs != nil {
		return a.IDs(kind)
	}
	return kind + "-" + uuid.NewString()
}

func (a *Assistant) services(actorID string) Services {
	s := Services{Repo: a.Repo, Events: a.Events, ActorID: actorID, Now: a.Now}
	if a.Mailer != nil {
		s.Notify = a.Mailer.Notify
	}
	return s
}

// AgentContext loads the stored portfolio and people.
func (a *Assistant) AgentContext(ctx context.Context, author string) (planner.AgentContext, error) {
	projects, err := a.Repo.ListProjects(ctx)
	if err != nil {
		return planner.AgentContext{}, fmt.Errorf("load projects: %w", err)
	}
	people, err := a.Repo.ListPeople(ctx)
	if err != nil {
		return planner.AgentContext{}, fmt.Errorf("load people: %w", err)
	}
	if author == "" {
		author = a.Config.Agent.Author
	}
	return planner.AgentContext{Projects: projects, People: people, Author: author, Now: a.now()}, nil
}

// SystemPrompt renders the planner prompt for the current workspace.
func (a *Assistant) SystemPrompt(ctx context.Context, author string) (string, error) {
	ac, err := a.AgentContext(ctx, author)
	if err != nil {
		return "", err
	}
	return a.Planner.BuildSystemPrompt(ac), nil
}

// Turn parses model output, runs the plan and stores the result.
func (a *Assistant) Turn(ctx context.Context, content string, opts TurnOptions) (Outcome, error) {
	parsed := a.Planner.Parse(content)
	return a.run(ctx, domain.RunKindTurn, opts, func(ac planner.AgentContext, s Services, cfg engine.RunConfig) engine.AgentResult {
		return a.Engine.RunPlan(ctx, parsed.Plan, ac, s, cfg)
	}, parsed.Response)
}

// Act runs explicit actions, one step each.
func (a *Assistant) Act(ctx context.Context, actions []planner.Action, opts TurnOptions) (Outcome, error) {
	if len(actions) == 0 {
		return Outcome{}, errors.New("at least one action required")
	}
	return a.run(ctx, domain.RunKindActions, opts, func(ac planner.AgentContext, s Services, cfg engine.RunConfig) engine.AgentResult {
		return a.Engine.ExecuteActions(ctx, actions, ac, s, cfg)
	}, "")
}

type runner func(planner.AgentContext, Services, engine.RunConfig) engine.AgentResult

func (a *Assistant) run(ctx context.Context, kind string, opts TurnOptions, exec runner, response string) (Outcome, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ac, err := a.AgentContext(ctx, opts.Author)
	if err != nil {
		return Outcome{}, err
	}
	constraints := a.Config.Constraints()
	if opts.Constraints != nil {
		constraints = *opts.Constraints
	}
	actor := actorOrDefault(opts.ActorID)
	cfg := engine.RunConfig{Constraints: constraints, OnEvent: opts.OnEvent, IDs: a.IDs}
	result := exec(ac, a.services(actor), cfg)
	result.Response = response

	run, err := a.record(kind, actor, result)
	if err != nil {
		return Outcome{}, err
	}
	tx, err := a.Repo.DB.BeginTx(ctx, nil)
	if err != nil {
		return Outcome{}, err
	}
	defer tx.Rollback()
	if len(result.Deltas) > 0 {
		if err := a.Repo.ReplaceProjectsTx(ctx, tx, result.Projects); err != nil {
			return Outcome{}, fmt.Errorf("save projects: %w", err)
		}
	}
	if err := a.Repo.InsertRunTx(ctx, tx, run); err != nil {
		return Outcome{}, err
	}
	if err := a.Events.Append(ctx, tx, runEvents(run, actor, result.Projects)...); err != nil {
		return Outcome{}, err
	}
	if err := tx.Commit(); err != nil {
		return Outcome{}, err
	}
	a.Logger.Info("run recorded", "run_id", run.ID, "kind", kind, "stop_reason", result.StopReason, "actions", len(result.Actions))
	return Outcome{RunID: run.ID, Result: result}, nil
}

func (a *Assistant) record(kind, actor string, result engine.AgentResult) (domain.Run, error) {
	plan, err := json.Marshal(result.Plan)
	if err != nil {
		return domain.Run{}, fmt.Errorf("encode plan: %w", err)
	}
	log, err := json.Marshal(result.Log)
	if err != nil {
		return domain.Run{}, fmt.Errorf("encode log: %w", err)
	}
	run := domain.Run{
		ID:               a.newID("run"),
		Kind:             kind,
		ActorID:          actor,
		Response:         result.Response,
		StopReason:       string(result.StopReason),
		Status:           string(result.Log.Status),
		Plan:             plan,
		Log:              log,
		UpdatedEntityIDs: result.UpdatedEntityIDs,
		CreatedAt:        a.now().Format(time.RFC3339Nano),
	}
	for i, act := range result.Actions {
		deltas, err := delta.MarshalList(act.Deltas)
		if err != nil {
			return domain.Run{}, fmt.Errorf("encode action %d: %w", i, err)
		}
		run.Actions = append(run.Actions, domain.RunAction{
			Index:     i,
			Type:      string(act.Type),
			Label:     act.Label,
			Detail:    act.Detail,
			Status:    string(act.Status),
			StepIndex: act.StepIndex,
			Deltas:    deltas,
		})
	}
	return run, nil
}

func runEvents(run domain.Run, actor string, projects []domain.Project) []events.Entry {
	entries := []events.Entry{{
		Type:       events.RunRecorded,
		EntityKind: "run",
		EntityID:   run.ID,
		ActorID:    actor,
		Payload: events.Payload{
			"kind":        run.Kind,
			"stop_reason": run.StopReason,
			"actions":     len(run.Actions),
		},
	}}
	ids := make(map[string]bool, len(projects))
	for _, p := range projects {
		ids[p.ID] = true
	}
	for _, id := range run.UpdatedEntityIDs {
		if !ids[id] {
			continue
		}
		entries = append(entries, events.Entry{
			Type:       events.ProjectChanged,
			ProjectID:  id,
			EntityKind: "project",
			EntityID:   id,
			ActorID:    actor,
			Payload:    events.Payload{"run_id": run.ID},
		})
	}
	return entries
}

// Undo reverts one action of a stored run against the current portfolio.
// Undoing an action twice changes nothing.
func (a *Assistant) Undo(ctx context.Context, runID string, index int, actorID string) (UndoOutcome, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	run, err := a.Repo.GetRun(ctx, runID)
	if err != nil {
		return UndoOutcome{}, err
	}
	actions := make([]engine.ActionResult, len(run.Actions))
	for i, ra := range run.Actions {
		deltas, err := delta.UnmarshalList(ra.Deltas)
		if err != nil {
			return UndoOutcome{}, fmt.Errorf("decode action %d: %w", i, err)
		}
		actions[i] = engine.ActionResult{
			Type:      tools.Name(ra.Type),
			Label:     ra.Label,
			Detail:    ra.Detail,
			Deltas:    deltas,
			Status:    tools.Status(ra.Status),
			StepIndex: ra.StepIndex,
			Undone:    ra.Undone,
		}
	}
	projects, err := a.Repo.ListProjects(ctx)
	if err != nil {
		return UndoOutcome{}, err
	}
	out, undone, err := a.Undoer.UndoAction(projects, actions, index)
	if err != nil {
		return UndoOutcome{}, err
	}
	res := UndoOutcome{RunID: runID, Index: index, Undone: undone, Action: run.Actions[index], Projects: out}
	if a.Metrics != nil {
		a.Metrics.ObserveUndo(run.Actions[index].Type, undone)
	}
	if !undone {
		return res, nil
	}

	actor := actorOrDefault(actorID)
	tx, err := a.Repo.DB.BeginTx(ctx, nil)
	if err != nil {
		return UndoOutcome{}, err
	}
	defer tx.Rollback()
	if err := a.Repo.ReplaceProjectsTx(ctx, tx, out); err != nil {
		return UndoOutcome{}, fmt.Errorf("save projects: %w", err)
	}
	if err := a.Repo.MarkActionUndoneTx(ctx, tx, runID, index); err != nil {
		return UndoOutcome{}, err
	}
	if err := a.Events.Append(ctx, tx, events.Entry{
		Type:       events.ActionUndone,
		EntityKind: "run",
		EntityID:   runID,
		ActorID:    actor,
		Payload:    events.Payload{"index": index, "type": run.Actions[index].Type},
	}); err != nil {
		return UndoOutcome{}, err
	}
	if err := tx.Commit(); err != nil {
		return UndoOutcome{}, err
	}
	res.Action.Undone = true
	a.Logger.Info("action undone", "run_id", runID, "index", index, "type", run.Actions[index].Type)
	return res, nil
}

// ReplaceProjects overwrites the stored portfolio, e.g. on import. Projects
// without an id get one.
func (a *Assistant) ReplaceProjects(ctx context.Context, projects []domain.Project, actorID string) ([]domain.Project, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]domain.Project, 0, len(projects))
	for i, p := range projects {
		if strings.TrimSpace(p.Name) == "" {
			return nil, fmt.Errorf("project %d: name required", i)
		}
		if p.ID == "" {
			p.ID = a.newID("project")
		}
		if p.Status == "" {
			p.Status = domain.ProjectPlanning
		}
		if p.Priority == "" {
			p.Priority = domain.PriorityMedium
		}
		p.Normalize()
		out = append(out, p)
	}
	tx, err := a.Repo.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	if err := a.Repo.ReplaceProjectsTx(ctx, tx, out); err != nil {
		return nil, err
	}
	if err := a.Events.Append(ctx, tx, events.Entry{
		Type:       events.ProjectsReplaced,
		EntityKind: "portfolio",
		ActorID:    actorOrDefault(actorID),
		Payload:    events.Payload{"projects": len(out)},
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

// AddPerson stores a person directly, bypassing the agent.
func (a *Assistant) AddPerson(ctx context.Context, p domain.Person, actorID string) (domain.Person, error) {
	return a.services(actorOrDefault(actorID)).CreatePerson(ctx, p)
}

// IsNotFound reports whether err means a missing run, project or person.
func IsNotFound(err error) bool {
	return errors.Is(err, repo.ErrNotFound) || errors.Is(err, undo.ErrNoSuchAction) || errors.Is(err, sql.ErrNoRows)
}

func actorOrDefault(actorID string) string {
	if strings.TrimSpace(actorID) == "" {
		return "local-user"
	}
	return actorID
}
