package repo_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"manity/internal/db"
	"manity/internal/domain"
	"manity/internal/events"
	"manity/internal/migrate"
	"manity/internal/repo"
)

func newRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(context.Background(), conn))
	return repo.Repo{DB: conn, Now: func() time.Time { return time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC) }}
}

func inTx(t *testing.T, r repo.Repo, fn func(tx *sql.Tx) error) {
	t.Helper()
	tx, err := r.DB.BeginTx(context.Background(), nil)
	require.NoError(t, err)
	if err := fn(tx); err != nil {
		tx.Rollback()
		require.NoError(t, err)
	}
	require.NoError(t, tx.Commit())
}

func TestMigrateIsRepeatable(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	require.NoError(t, migrate.Migrate(ctx, r.DB))
	v, err := migrate.Version(ctx, r.DB)
	require.NoError(t, err)
	latest, err := migrate.Latest()
	require.NoError(t, err)
	assert.Equal(t, latest, v)
}

func TestReplaceProjectsKeepsOrder(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	projects := []domain.Project{
		{ID: "p2", Name: "Zeta", Status: domain.ProjectActive, Priority: domain.PriorityHigh,
			Plan: []domain.Task{{ID: "t1", Title: "Ship", Status: domain.TaskTodo}}},
		{ID: "p1", Name: "Alpha", Status: domain.ProjectPlanning, Priority: domain.PriorityLow},
	}
	inTx(t, r, func(tx *sql.Tx) error { return r.ReplaceProjectsTx(ctx, tx, projects) })

	got, err := r.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Zeta", got[0].Name)
	assert.Equal(t, []domain.Subtask{}, got[0].Plan[0].Subtasks)
	assert.Equal(t, []domain.Activity{}, got[1].RecentActivity)

	inTx(t, r, func(tx *sql.Tx) error { return r.ReplaceProjectsTx(ctx, tx, got[1:]) })
	_, err = r.GetProject(ctx, "p2")
	assert.ErrorIs(t, err, repo.ErrNotFound)
	p, err := r.GetProject(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Alpha", p.Name)
}

func TestReplaceProjectsRejectsDuplicates(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	tx, err := r.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()
	err = r.ReplaceProjectsTx(ctx, tx, []domain.Project{{ID: "p1", Name: "A"}, {ID: "p1", Name: "B"}})
	assert.ErrorContains(t, err, "duplicate project id p1")
	assert.Error(t, r.ReplaceProjectsTx(ctx, nil, nil))
}

func TestPeopleByNameIgnoresCase(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	require.NoError(t, r.InsertPerson(ctx, nil, domain.Person{ID: "person-1", Name: "Ada Lovelace", Team: "R&D"}))
	assert.Error(t, r.InsertPerson(ctx, nil, domain.Person{ID: "person-2", Name: "ada lovelace"}))

	p, err := r.GetPersonByName(ctx, "ADA LOVELACE")
	require.NoError(t, err)
	assert.Equal(t, "person-1", p.ID)
	assert.Equal(t, "", p.Email)

	_, err = r.GetPersonByName(ctx, "Grace")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestRunRoundTripAndUndoMark(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	run := domain.Run{
		ID: "run-1", Kind: domain.RunKindTurn, ActorID: "grace", Response: "Done.",
		StopReason: "success", Status: "completed",
		Plan: json.RawMessage(`{"goal":"x"}`), Log: json.RawMessage(`{"events":[]}`),
		UpdatedEntityIDs: []string{"p1"},
		Actions: []domain.RunAction{
			{Index: 0, Type: "create_project", Label: "Created project", Status: "success", Deltas: json.RawMessage(`[{"type":"remove_project","projectId":"p1"}]`)},
			{Index: 1, Type: "comment", Label: "Commented", Status: "success", StepIndex: 1},
		},
	}
	inTx(t, r, func(tx *sql.Tx) error { return r.InsertRunTx(ctx, tx, run) })

	got, err := r.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01T09:00:00Z", got.CreatedAt)
	assert.JSONEq(t, `{"goal":"x"}`, string(got.Plan))
	require.Len(t, got.Actions, 2)
	assert.JSONEq(t, `[]`, string(got.Actions[1].Deltas))
	assert.False(t, got.Actions[0].Undone)

	inTx(t, r, func(tx *sql.Tx) error { return r.MarkActionUndoneTx(ctx, tx, "run-1", 0) })
	got, err = r.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, got.Actions[0].Undone)
	assert.Equal(t, "2024-05-01T09:00:00Z", got.Actions[0].UndoneAt)

	// second mark finds nothing left to flip
	assert.ErrorIs(t, r.MarkActionUndoneTx(ctx, nil, "run-1", 0), repo.ErrNotFound)

	_, err = r.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestListRunsPages(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	for _, id := range []string{"run-a", "run-b", "run-c"} {
		run := domain.Run{ID: id, Kind: domain.RunKindActions, ActorID: "grace", StopReason: "success", Status: "completed"}
		inTx(t, r, func(tx *sql.Tx) error { return r.InsertRunTx(ctx, tx, run) })
	}
	page, err := r.ListRuns(ctx, 2, "", "")
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "run-c", page[0].ID)
	assert.Equal(t, []string{}, page[0].UpdatedEntityIDs)

	rest, err := r.ListRuns(ctx, 2, page[1].CreatedAt, page[1].ID)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "run-a", rest[0].ID)
}

func TestOutboxLifecycle(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	require.NoError(t, r.EnqueueEmail(ctx, nil, domain.Email{ID: "email-1", Recipients: []string{"ada@example.com"}, Subject: "Hi", Body: "Hello"}))
	require.NoError(t, r.EnqueueEmail(ctx, nil, domain.Email{ID: "email-2", Recipients: []string{"bob@example.com"}, Subject: "Yo"}))
	assert.Error(t, r.EnqueueEmail(ctx, nil, domain.Email{ID: "email-3"}))

	queued, err := r.ListEmails(ctx, domain.EmailQueued, 0)
	require.NoError(t, err)
	require.Len(t, queued, 2)
	assert.Equal(t, []string{"ada@example.com"}, queued[0].Recipients)

	require.NoError(t, r.MarkEmailSent(ctx, "email-1"))
	require.NoError(t, r.MarkEmailAttemptFailed(ctx, "email-2", "503", false))
	queued, err = r.ListEmails(ctx, domain.EmailQueued, 0)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, 1, queued[0].Attempts)
	assert.Equal(t, "503", queued[0].LastError)

	require.NoError(t, r.MarkEmailAttemptFailed(ctx, "email-2", "503", true))
	failed, err := r.ListEmails(ctx, domain.EmailFailed, 0)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, 2, failed[0].Attempts)

	assert.ErrorIs(t, r.MarkEmailSent(ctx, "nope"), repo.ErrNotFound)
}

func TestEventsQueries(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	w := events.Writer{}
	inTx(t, r, func(tx *sql.Tx) error {
		return w.Append(ctx, tx,
			events.Entry{Type: events.RunRecorded, EntityKind: "run", EntityID: "run-1", ActorID: "grace"},
			events.Entry{Type: events.ProjectChanged, ProjectID: "p1", EntityKind: "project", EntityID: "p1", ActorID: "grace", Payload: events.Payload{"run_id": "run-1"}},
			events.Entry{Type: events.ActionUndone, ProjectID: "p1", EntityKind: "run", EntityID: "run-1", ActorID: "grace"},
		)
	})

	latest, err := r.LatestEvents(ctx, 10, 0, repo.EventFilter{})
	require.NoError(t, err)
	require.Len(t, latest, 3)
	assert.Equal(t, events.ActionUndone, latest[0].Type)
	assert.Equal(t, "{}", latest[2].Payload)
	assert.Equal(t, "", latest[2].ProjectID)

	older, err := r.LatestEvents(ctx, 10, latest[0].ID, repo.EventFilter{ProjectID: "p1"})
	require.NoError(t, err)
	require.Len(t, older, 1)
	assert.JSONEq(t, `{"run_id":"run-1"}`, older[0].Payload)

	after, err := r.EventsAfter(ctx, 10, latest[2].ID, repo.EventFilter{})
	require.NoError(t, err)
	require.Len(t, after, 2)
	assert.Equal(t, events.ProjectChanged, after[0].Type)

	id, err := r.LatestEventID(ctx)
	require.NoError(t, err)
	assert.Equal(t, latest[0].ID, id)

	assert.Error(t, w.Append(ctx, nil, events.Entry{Type: "x"}))
}

func TestAPIKeys(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	hash := repo.HashAPIKey(" secret ")
	assert.Equal(t, repo.HashAPIKey("secret"), hash)
	require.NoError(t, r.InsertAPIKey(ctx, nil, domain.APIKey{ID: "key-1", ActorID: "grace", KeyHash: hash}))
	assert.Error(t, r.InsertAPIKey(ctx, nil, domain.APIKey{ID: "key-2", ActorID: "grace"}))

	key, err := r.GetAPIKeyByHash(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, "grace", key.ActorID)

	keys, err := r.ListAPIKeys(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, 1)

	require.NoError(t, r.DeleteAPIKey(ctx, "key-1"))
	assert.ErrorIs(t, r.DeleteAPIKey(ctx, "key-1"), repo.ErrNotFound)
	_, err = r.GetAPIKeyByHash(ctx, hash)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}
