package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"manity/internal/app"
	"manity/internal/domain"
	"manity/internal/engine"
	"manity/internal/planner"
)

func (h handlers) registerAgent(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "agent-turn",
		Method:      http.MethodPost,
		Path:        "/agent/turns",
		Summary:     "Run model output as a plan",
		Description: "Parses the model output, executes the plan under the workspace constraints and stores the run.",
	}, func(ctx context.Context, input *struct {
		Body TurnRequest `json:"body"`
	}) (*struct {
		Body TurnResponse `json:"body"`
	}, error) {
		opts, authErr := h.turnOptions(ctx, input.Body.Author, input.Body.Constraints)
		if authErr != nil {
			return nil, authErr
		}
		out, err := h.assistant.Turn(ctx, input.Body.Content, opts)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body TurnResponse `json:"body"`
		}{Body: turnResponse(out)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "agent-actions",
		Method:      http.MethodPost,
		Path:        "/agent/actions",
		Summary:     "Execute actions directly, one step each",
	}, func(ctx context.Context, input *struct {
		Body ActionsRequest `json:"body"`
	}) (*struct {
		Body TurnResponse `json:"body"`
	}, error) {
		opts, authErr := h.turnOptions(ctx, input.Body.Author, input.Body.Constraints)
		if authErr != nil {
			return nil, authErr
		}
		actions := make([]planner.Action, 0, len(input.Body.Actions))
		for _, a := range input.Body.Actions {
			actions = append(actions, planner.Action(a))
		}
		out, err := h.assistant.Act(ctx, actions, opts)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body TurnResponse `json:"body"`
		}{Body: turnResponse(out)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "agent-prompt",
		Method:      http.MethodGet,
		Path:        "/agent/prompt",
		Summary:     "System prompt for the current portfolio",
	}, func(ctx context.Context, input *struct {
		Author string `query:"author"`
	}) (*struct {
		Body PromptResponse `json:"body"`
	}, error) {
		prompt, err := h.assistant.SystemPrompt(ctx, input.Author)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body PromptResponse `json:"body"`
		}{Body: PromptResponse{Prompt: prompt}}, nil
	})
}

func (h handlers) turnOptions(ctx context.Context, author string, c *ConstraintsRequest) (app.TurnOptions, error) {
	actor, authErr := actorIDFromContext(ctx)
	if authErr != nil {
		return app.TurnOptions{}, authErr
	}
	constraints := c.apply(h.assistant.Config.Constraints())
	return app.TurnOptions{ActorID: actor, Author: author, Constraints: &constraints}, nil
}

func turnResponse(out app.Outcome) TurnResponse {
	res := out.Result
	actions := make([]ActionResponse, 0, len(res.Actions))
	for i, a := range res.Actions {
		actions = append(actions, ActionResponse{
			Index:     i,
			Type:      string(a.Type),
			Label:     a.Label,
			Detail:    a.Detail,
			Status:    string(a.Status),
			StepIndex: a.StepIndex,
			Undone:    a.Undone,
		})
	}
	return TurnResponse{
		RunID:            out.RunID,
		Response:         res.Response,
		StopReason:       string(res.StopReason),
		Plan:             res.Plan,
		Log:              res.Log,
		Actions:          actions,
		UpdatedEntityIDs: nonNilSlice(res.UpdatedEntityIDs),
		Projects:         nonNilSlice(res.Projects),
	}
}

func (h handlers) registerRuns(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-runs",
		Method:      http.MethodGet,
		Path:        "/agent/runs",
		Summary:     "List runs, newest first",
	}, func(ctx context.Context, input *struct {
		Limit  int    `query:"limit"`
		Cursor string `query:"cursor"`
	}) (*struct {
		Body paginatedRuns `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		ts, id, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"cursor": input.Cursor})
		}
		items, err := h.repo.ListRuns(ctx, limit+1, ts, id)
		if err != nil {
			return nil, h.handleError(err)
		}
		resp := paginatedRuns{Items: []RunResponse{}}
		if len(items) > limit {
			last := items[limit-1]
			resp.NextCursor = composeCursor(last.CreatedAt, last.ID)
			items = items[:limit]
		}
		for _, run := range items {
			r, err := runResponse(run, false)
			if err != nil {
				return nil, h.handleError(err)
			}
			resp.Items = append(resp.Items, r)
		}
		return &struct {
			Body paginatedRuns `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-run",
		Method:      http.MethodGet,
		Path:        "/agent/runs/{run_id}",
		Summary:     "Get run with plan, log and actions",
	}, func(ctx context.Context, input *struct {
		RunID string `path:"run_id"`
	}) (*struct {
		Body RunResponse `json:"body"`
	}, error) {
		run, err := h.repo.GetRun(ctx, input.RunID)
		if err != nil {
			return nil, h.handleError(fmt.Errorf("run %s: %w", input.RunID, err))
		}
		r, err := runResponse(run, true)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body RunResponse `json:"body"`
		}{Body: r}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "undo-action",
		Method:      http.MethodPost,
		Path:        "/agent/runs/{run_id}/actions/{index}/undo",
		Summary:     "Undo one action of a run",
		Description: "Reverts the action's recorded changes against the current portfolio. Undoing twice is a no-op.",
	}, func(ctx context.Context, input *struct {
		RunID string `path:"run_id"`
		Index int    `path:"index" minimum:"0"`
	}) (*struct {
		Body UndoResponse `json:"body"`
	}, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := h.assistant.Undo(ctx, input.RunID, input.Index, actor)
		if err != nil {
			return nil, h.handleError(fmt.Errorf("run %s: %w", input.RunID, err))
		}
		return &struct {
			Body UndoResponse `json:"body"`
		}{Body: UndoResponse{
			RunID:    res.RunID,
			Undone:   res.Undone,
			Action:   actionResponse(res.Action),
			Projects: nonNilSlice(res.Projects),
		}}, nil
	})
}

func runResponse(run domain.Run, detailed bool) (RunResponse, error) {
	r := RunResponse{
		ID:               run.ID,
		Kind:             run.Kind,
		ActorID:          run.ActorID,
		Response:         run.Response,
		StopReason:       run.StopReason,
		Status:           run.Status,
		CreatedAt:        run.CreatedAt,
		UpdatedEntityIDs: nonNilSlice(run.UpdatedEntityIDs),
	}
	if !detailed {
		return r, nil
	}
	var plan planner.Plan
	if err := json.Unmarshal(run.Plan, &plan); err != nil {
		return r, fmt.Errorf("decode run plan: %w", err)
	}
	var log engine.ExecutionLog
	if err := json.Unmarshal(run.Log, &log); err != nil {
		return r, fmt.Errorf("decode run log: %w", err)
	}
	r.Plan = &plan
	r.Log = &log
	r.Actions = actionResponses(run.Actions)
	return r, nil
}
