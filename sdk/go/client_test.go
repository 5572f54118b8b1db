package manitysdk_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"manity/internal/app"
	"manity/internal/config"
	"manity/internal/server"
	manitysdk "manity/sdk/go"
)

func newClient(t *testing.T) *manitysdk.Client {
	t.Helper()
	ws, err := app.OpenWorkspace(context.Background(), t.TempDir(), config.Default("sdk"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	handler, err := server.New(server.Config{Assistant: ws.Assistant, Auth: server.AuthConfig{AllowActorHeader: true}})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := manitysdk.New(srv.URL)
	c.ActorID = "sdk-user"
	return c
}

func TestClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)

	stored, err := c.ReplaceProjects(ctx, []manitysdk.Project{{Name: "Apollo"}})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.NotEmpty(t, stored[0].ID)
	assert.Equal(t, "planning", stored[0].Status)

	res, err := c.Act(ctx, []map[string]any{
		{"type": "add_task", "projectName": "Apollo", "title": "Design review"},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "success", res.StopReason)
	require.Len(t, res.Actions, 1)

	p, err := c.Project(ctx, stored[0].ID)
	require.NoError(t, err)
	require.Len(t, p.Plan, 1)
	assert.Equal(t, "Design review", p.Plan[0]["title"])

	undo, err := c.Undo(ctx, res.RunID, 0)
	require.NoError(t, err)
	assert.True(t, undo.Undone)

	run, err := c.Run(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, "sdk-user", run.ActorID)
	require.Len(t, run.Actions, 1)
	assert.True(t, run.Actions[0].Undone)

	page, err := c.RunsPage(ctx, 10, "")
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)

	events, err := c.Events(ctx, 10)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, "action.undone", events[0].Type)
}

func TestClientSurfacesErrorEnvelope(t *testing.T) {
	c := newClient(t)
	_, err := c.Run(context.Background(), "missing")
	var apiErr *manitysdk.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 404, apiErr.StatusCode)
	assert.Equal(t, "not_found", apiErr.Code)
}
