package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"manity/internal/domain"
	"manity/internal/repo"
)

func (h handlers) registerProjects(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List the portfolio",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Project `json:"body"`
	}, error) {
		items, err := h.repo.ListProjects(ctx)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body []domain.Project `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project",
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		p, err := h.repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, h.handleError(fmt.Errorf("project %s: %w", input.ProjectID, err))
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "replace-projects",
		Method:      http.MethodPut,
		Path:        "/projects",
		Summary:     "Replace the portfolio",
	}, func(ctx context.Context, input *struct {
		Body ReplaceProjectsRequest `json:"body"`
	}) (*struct {
		Body []domain.Project `json:"body"`
	}, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		projects, err := decodeProjects(input.Body.Projects)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		stored, err := h.assistant.ReplaceProjects(ctx, projects, actor)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body []domain.Project `json:"body"`
		}{Body: stored}, nil
	})
}

// decodeProjects converts loosely shaped JSON objects into projects.
func decodeProjects(items []map[string]any) ([]domain.Project, error) {
	data, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	var out []domain.Project
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("invalid projects: %w", err)
	}
	return out, nil
}

func (h handlers) registerPeople(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-people",
		Method:      http.MethodGet,
		Path:        "/people",
		Summary:     "List the people directory",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Person `json:"body"`
	}, error) {
		items, err := h.repo.ListPeople(ctx)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body []domain.Person `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "add-person",
		Method:      http.MethodPost,
		Path:        "/people",
		Summary:     "Add a person; an existing name returns the stored record",
	}, func(ctx context.Context, input *struct {
		Body PersonRequest `json:"body"`
	}) (*struct {
		Body domain.Person `json:"body"`
	}, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := h.assistant.AddPerson(ctx, domain.Person{Name: input.Body.Name, Team: input.Body.Team, Email: input.Body.Email}, actor)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body domain.Person `json:"body"`
		}{Body: p}, nil
	})
}

func (h handlers) registerEvents(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Audit events, newest first",
	}, func(ctx context.Context, input *struct {
		Limit      int    `query:"limit"`
		Cursor     string `query:"cursor"`
		ProjectID  string `query:"project_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := h.repo.LatestEvents(ctx, limit+1, cursorID, repo.EventFilter{
			ProjectID:  input.ProjectID,
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
		})
		if err != nil {
			return nil, h.handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}
