// Package undo reverts the effects recorded by agent runs.
package undo

import (
	"errors"
	"fmt"
	"log/slog"

	"manity/internal/delta"
	"manity/internal/domain"
	"manity/internal/engine"
	"manity/internal/resolve"
)

var ErrNoSuchAction = errors.New("no such action")

// Manager applies inverse deltas. Every method returns a new portfolio and
// leaves its input untouched.
type Manager struct {
	Logger *slog.Logger
}

func (m Manager) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

// UndoEvent reverts a single execution event.
func (m Manager) UndoEvent(projects []domain.Project, ev engine.ExecutionEvent) []domain.Project {
	return delta.Rollback(projects, ev.Deltas)
}

// UndoLog reverts every event at or after step upToStep, latest first.
func (m Manager) UndoLog(projects []domain.Project, log engine.ExecutionLog, upToStep int) []domain.Project {
	var deltas []delta.Delta
	for _, ev := range log.Events {
		if ev.StepIndex >= upToStep {
			deltas = append(deltas, ev.Deltas...)
		}
	}
	m.logger().Debug("undo log", "from_step", upToStep, "deltas", len(deltas))
	return delta.Rollback(projects, deltas)
}

// UndoAction reverts actions[index] and marks it undone. An action that is
// already undone is left alone and undone reports false.
func (m Manager) UndoAction(projects []domain.Project, actions []engine.ActionResult, index int) (out []domain.Project, undone bool, err error) {
	if index < 0 || index >= len(actions) {
		return nil, false, fmt.Errorf("%w: index %d of %d", ErrNoSuchAction, index, len(actions))
	}
	a := &actions[index]
	if a.Undone {
		return resolve.CloneProjects(projects), false, nil
	}
	out = delta.Rollback(projects, a.Deltas)
	a.Undone = true
	m.logger().Info("action undone", "index", index, "type", a.Type, "deltas", len(a.Deltas))
	return out, true, nil
}
