package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Event types written by the host.
const (
	RunRecorded      = "run.recorded"
	ActionUndone     = "action.undone"
	ProjectChanged   = "project.changed"
	ProjectsReplaced = "projects.replaced"
	PersonAdded      = "person.added"
	EmailQueued      = "email.queued"
)

type Payload map[string]any

// Entry is one audit event before it is stored.
type Entry struct {
	Type       string
	ProjectID  string
	EntityKind string
	EntityID   string
	ActorID    string
	Payload    Payload
}

type Writer struct {
	Now func() time.Time
}

// Append writes entries inside tx in order.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, entries ...Entry) error {
	if tx == nil {
		return errors.New("events: transaction required")
	}
	now := w.Now
	if now == nil {
		now = time.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	for _, e := range entries {
		payload := e.Payload
		if payload == nil {
			payload = Payload{}
		}
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal event payload: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO events(ts,type,project_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
			ts, e.Type, nullable(e.ProjectID), e.EntityKind, nullable(e.EntityID), e.ActorID, string(data)); err != nil {
			return fmt.Errorf("append %s event: %w", e.Type, err)
		}
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
