package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"manity/internal/app"
	"manity/internal/config"
	"manity/internal/domain"
	"manity/internal/metrics"
	"manity/internal/repo"
)

type testServer struct {
	URL       string
	client    *http.Client
	workspace *app.Workspace
	close     func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

var actorHeader = map[string]string{"X-Actor-Id": "grace"}

func newTestServer(t *testing.T, auth AuthConfig) *testServer {
	t.Helper()
	cfg := config.Default("manity")
	ws, err := app.OpenWorkspace(context.Background(), t.TempDir(), cfg, nil)
	require.NoError(t, err)
	handler, err := New(Config{Assistant: ws.Assistant, Metrics: metrics.New(), BasePath: "/v0", Auth: auth})
	require.NoError(t, err)
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	s := &testServer{
		URL:       "http://" + ln.Addr().String(),
		client:    &http.Client{},
		workspace: ws,
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			ws.Close()
		},
	}
	t.Cleanup(s.Close)
	return s
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	reader := bytes.NewReader(nil)
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, data
}

const launchTurn = `{"response": "Setting up Launch.", "steps": [
	{"rationale": "create", "toolCandidates": [{"toolName": "create_project", "input": {"name": "Launch"}}]},
	{"rationale": "plan", "toolCandidates": [{"toolName": "add_task", "input": {"projectName": "Launch", "title": "Kickoff"}}]}
]}`

func TestTurnThenUndo(t *testing.T) {
	srv := newTestServer(t, AuthConfig{AllowActorHeader: true})
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/agent/turns", map[string]any{"content": launchTurn}, actorHeader)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var turn TurnResponse
	require.NoError(t, json.Unmarshal(data, &turn))
	assert.Equal(t, "success", turn.StopReason)
	assert.Equal(t, "Setting up Launch.", turn.Response)
	require.Len(t, turn.Actions, 2)
	require.Len(t, turn.Projects, 1)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/agent/runs/"+turn.RunID, nil, actorHeader)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var run RunResponse
	require.NoError(t, json.Unmarshal(data, &run))
	assert.Equal(t, "grace", run.ActorID)
	require.NotNil(t, run.Plan)
	assert.Len(t, run.Plan.Steps, 2)
	require.NotNil(t, run.Log)
	assert.Len(t, run.Log.Events, 2)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/agent/runs/"+turn.RunID+"/actions/1/undo", nil, actorHeader)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var undone UndoResponse
	require.NoError(t, json.Unmarshal(data, &undone))
	assert.True(t, undone.Undone)
	assert.True(t, undone.Action.Undone)
	require.Len(t, undone.Projects, 1)
	assert.Empty(t, undone.Projects[0].Plan)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/agent/runs/"+turn.RunID+"/actions/1/undo", nil, actorHeader)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.NoError(t, json.Unmarshal(data, &undone))
	assert.False(t, undone.Undone)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/agent/runs/"+turn.RunID+"/actions/9/undo", nil, actorHeader)
	assert.Equal(t, http.StatusNotFound, res.StatusCode, string(data))
	assert.Contains(t, string(data), `"code":"not_found"`)
}

func TestActionsRespectRequestConstraints(t *testing.T) {
	srv := newTestServer(t, AuthConfig{AllowActorHeader: true})
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/agent/actions", map[string]any{
		"actions": []map[string]any{
			{"type": "send_email", "recipients": []string{"ada@example.com"}, "subject": "Hi", "body": "Hello"},
		},
		"constraints": map[string]any{"allow_side_effects": false},
	}, actorHeader)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var turn TurnResponse
	require.NoError(t, json.Unmarshal(data, &turn))
	assert.Equal(t, "safety", turn.StopReason)
	assert.Empty(t, turn.Actions)

	emails, err := srv.workspace.Repo.ListEmails(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Empty(t, emails)
}

func TestProjectsAndPeople(t *testing.T) {
	srv := newTestServer(t, AuthConfig{AllowActorHeader: true})
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPut, srv.URL+"/v0/projects", map[string]any{
		"projects": []map[string]any{{"id": "p1", "name": "Apollo", "status": "active"}},
	}, actorHeader)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects/p1", nil, actorHeader)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var p domain.Project
	require.NoError(t, json.Unmarshal(data, &p))
	assert.Equal(t, "Apollo", p.Name)
	assert.Equal(t, domain.PriorityMedium, p.Priority)

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects/nope", nil, actorHeader)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/people", map[string]any{"name": "Ada", "team": "Research"}, actorHeader)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/people", nil, actorHeader)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var people []domain.Person
	require.NoError(t, json.Unmarshal(data, &people))
	require.Len(t, people, 1)
	assert.Equal(t, "Research", people[0].Team)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?limit=1", nil, actorHeader)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var page paginatedEvents
	require.NoError(t, json.Unmarshal(data, &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, "person.added", page.Items[0].Type)
	require.NotEmpty(t, page.NextCursor)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?cursor="+page.NextCursor, nil, actorHeader)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.NoError(t, json.Unmarshal(data, &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, "projects.replaced", page.Items[0].Type)
}

func TestPromptAndRunList(t *testing.T) {
	srv := newTestServer(t, AuthConfig{AllowActorHeader: true})
	client := srv.Client()
	for i := 0; i < 3; i++ {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/agent/turns", map[string]any{"content": `{"response": "Nothing to do.", "steps": []}`}, actorHeader)
		require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	}
	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/agent/runs?limit=2", nil, actorHeader)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var page paginatedRuns
	require.NoError(t, json.Unmarshal(data, &page))
	assert.Len(t, page.Items, 2)
	require.NotEmpty(t, page.NextCursor)
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/agent/runs?cursor="+page.NextCursor, nil, actorHeader)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.NoError(t, json.Unmarshal(data, &page))
	assert.Len(t, page.Items, 1)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/agent/runs?cursor=garbage", nil, actorHeader)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/agent/prompt?author=Grace", nil, actorHeader)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var prompt PromptResponse
	require.NoError(t, json.Unmarshal(data, &prompt))
	assert.Contains(t, prompt.Prompt, "User: Grace")

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/metrics", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(data), `manity_agent_runs_total{reason="success"} 3`)
}

func TestAuth(t *testing.T) {
	srv := newTestServer(t, AuthConfig{JWTSecret: "test-secret", DevLogin: true})
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Contains(t, string(data), `"status":"ok"`)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects", nil, actorHeader)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode, "actor header is ignored unless enabled")
	assert.Contains(t, string(data), `"code":"unauthorized"`)

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects", nil, map[string]string{"Authorization": "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{"actor_id": "grace"}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var login DevLoginResponse
	require.NoError(t, json.Unmarshal(data, &login))
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects", nil, map[string]string{"Authorization": "Bearer " + login.Token})
	assert.Equal(t, http.StatusOK, res.StatusCode, string(data))

	key := "mk_" + strings.Repeat("a", 16)
	require.NoError(t, srv.workspace.Repo.InsertAPIKey(context.Background(), nil, domain.APIKey{ID: "key-1", ActorID: "bot", KeyHash: repo.HashAPIKey(key)}))
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/people", map[string]any{"name": "Ada"}, map[string]string{"X-Api-Key": key})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	evts, err := srv.workspace.Repo.LatestEvents(context.Background(), 1, 0, repo.EventFilter{})
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Equal(t, "bot", evts[0].ActorID)
}

func TestBadRequestEnvelope(t *testing.T) {
	srv := newTestServer(t, AuthConfig{AllowActorHeader: true})
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/agent/actions", map[string]any{"actions": []any{}}, actorHeader)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, "bad_request", env.Error.Code)
}
