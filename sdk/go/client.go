package manitysdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal Manity HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	// ActorID is sent as X-Actor-Id when no credentials are set. The server
	// must be started with --allow-actor-header for it to count.
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 30 * time.Second,
	}
}

// Project is the portfolio project model. Tasks and stakeholders are kept
// as raw JSON objects.
type Project struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Status          string           `json:"status"`
	Priority        string           `json:"priority"`
	Progress        int              `json:"progress"`
	Description     string           `json:"description,omitempty"`
	ExecutiveUpdate string           `json:"executiveUpdate,omitempty"`
	TargetDate      string           `json:"targetDate,omitempty"`
	LastUpdate      string           `json:"lastUpdate,omitempty"`
	Stakeholders    []map[string]any `json:"stakeholders,omitempty"`
	Plan            []map[string]any `json:"plan,omitempty"`
	RecentActivity  []map[string]any `json:"recentActivity,omitempty"`
}

type Person struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Team  string `json:"team,omitempty"`
	Email string `json:"email,omitempty"`
}

// Constraints override the workspace agent settings for one call. Nil
// fields keep the workspace value.
type Constraints struct {
	MaxSteps            *int     `json:"max_steps,omitempty"`
	AllowSideEffects    *bool    `json:"allow_side_effects,omitempty"`
	RequireConfirmation *bool    `json:"require_confirmation,omitempty"`
	ExcludeTools        []string `json:"exclude_tools,omitempty"`
}

// Action is one executed step of a run.
type Action struct {
	Index     int    `json:"index"`
	Type      string `json:"type"`
	Label     string `json:"label"`
	Detail    string `json:"detail"`
	Status    string `json:"status"`
	StepIndex int    `json:"step_index"`
	Undone    bool   `json:"undone"`
	UndoneAt  string `json:"undone_at,omitempty"`
}

// TurnResult is returned by Turn and Act. Plan and Log are left raw.
type TurnResult struct {
	RunID            string          `json:"run_id"`
	Response         string          `json:"response"`
	StopReason       string          `json:"stop_reason"`
	Plan             json.RawMessage `json:"plan"`
	Log              json.RawMessage `json:"log"`
	Actions          []Action        `json:"actions"`
	UpdatedEntityIDs []string        `json:"updated_entity_ids"`
	Projects         []Project       `json:"projects"`
}

type Run struct {
	ID               string          `json:"id"`
	Kind             string          `json:"kind"`
	ActorID          string          `json:"actor_id"`
	Response         string          `json:"response"`
	StopReason       string          `json:"stop_reason"`
	Status           string          `json:"status"`
	CreatedAt        string          `json:"created_at"`
	UpdatedEntityIDs []string        `json:"updated_entity_ids"`
	Plan             json.RawMessage `json:"plan,omitempty"`
	Log              json.RawMessage `json:"log,omitempty"`
	Actions          []Action        `json:"actions,omitempty"`
}

type UndoResult struct {
	RunID    string    `json:"run_id"`
	Undone   bool      `json:"undone"`
	Action   Action    `json:"action"`
	Projects []Project `json:"projects"`
}

// Event represents an audit log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id"`
	EntityID   string `json:"entity_id"`
	EntityKind string `json:"entity_kind"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// APIError wraps non-2xx responses. Code and Message come from the error
// envelope when the body has one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

type PaginatedRuns struct {
	Items      []Run  `json:"items"`
	NextCursor string `json:"next_cursor"`
}

// Projects returns the stored portfolio.
func (c *Client) Projects(ctx context.Context) ([]Project, error) {
	var resp []Project
	err := c.do(ctx, http.MethodGet, "projects", nil, &resp)
	return resp, err
}

func (c *Client) Project(ctx context.Context, id string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, "projects/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ReplaceProjects overwrites the portfolio.
func (c *Client) ReplaceProjects(ctx context.Context, projects []Project) ([]Project, error) {
	var resp []Project
	err := c.do(ctx, http.MethodPut, "projects", map[string]any{"projects": projects}, &resp)
	return resp, err
}

func (c *Client) People(ctx context.Context) ([]Person, error) {
	var resp []Person
	err := c.do(ctx, http.MethodGet, "people", nil, &resp)
	return resp, err
}

// AddPerson adds a person; an existing name returns the stored record.
func (c *Client) AddPerson(ctx context.Context, p Person) (Person, error) {
	var resp Person
	err := c.do(ctx, http.MethodPost, "people", p, &resp)
	return resp, err
}

// Turn submits raw model output for execution.
func (c *Client) Turn(ctx context.Context, content, author string, constraints *Constraints) (TurnResult, error) {
	body := map[string]any{"content": content}
	if author != "" {
		body["author"] = author
	}
	if constraints != nil {
		body["constraints"] = constraints
	}
	var resp TurnResult
	err := c.do(ctx, http.MethodPost, "agent/turns", body, &resp)
	return resp, err
}

// Act executes actions directly. Each action names its tool in "type".
func (c *Client) Act(ctx context.Context, actions []map[string]any, constraints *Constraints) (TurnResult, error) {
	body := map[string]any{"actions": actions}
	if constraints != nil {
		body["constraints"] = constraints
	}
	var resp TurnResult
	err := c.do(ctx, http.MethodPost, "agent/actions", body, &resp)
	return resp, err
}

// SystemPrompt returns the prompt to send to the model for author.
func (c *Client) SystemPrompt(ctx context.Context, author string) (string, error) {
	endpoint := "agent/prompt"
	if author != "" {
		endpoint += "?author=" + url.QueryEscape(author)
	}
	var resp struct {
		Prompt string `json:"prompt"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Prompt, err
}

func (c *Client) RunsPage(ctx context.Context, limit int, cursor string) (PaginatedRuns, error) {
	var resp PaginatedRuns
	err := c.do(ctx, http.MethodGet, withPage("agent/runs", limit, cursor), nil, &resp)
	return resp, err
}

// Run returns a run with its plan, log and actions.
func (c *Client) Run(ctx context.Context, id string) (Run, error) {
	var resp Run
	err := c.do(ctx, http.MethodGet, "agent/runs/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// Undo reverts one action of a run. Undone is false when it had already
// been reverted.
func (c *Client) Undo(ctx context.Context, runID string, index int) (UndoResult, error) {
	var resp UndoResult
	endpoint := fmt.Sprintf("agent/runs/%s/actions/%d/undo", url.PathEscape(runID), index)
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, withPage("events", limit, cursor), nil, &resp)
	return resp, err
}

func withPage(endpoint string, limit int, cursor string) string {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/v0/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
