package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"manity/internal/domain"
)

const runColumns = `id,kind,actor_id,COALESCE(response,''),stop_reason,status,plan_json,log_json,updated_ids_json,created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (domain.Run, error) {
	var (
		run              domain.Run
		plan, log, idsJS string
	)
	if err := row.Scan(&run.ID, &run.Kind, &run.ActorID, &run.Response, &run.StopReason, &run.Status, &plan, &log, &idsJS, &run.CreatedAt); err != nil {
		return run, err
	}
	run.Plan = json.RawMessage(plan)
	run.Log = json.RawMessage(log)
	if err := json.Unmarshal([]byte(idsJS), &run.UpdatedEntityIDs); err != nil {
		return run, fmt.Errorf("decode run %s ids: %w", run.ID, err)
	}
	return run, nil
}

func rawOrNull(v json.RawMessage) string {
	if len(v) == 0 {
		return "null"
	}
	return string(v)
}

// InsertRunTx stores a run together with its actions.
func (r Repo) InsertRunTx(ctx context.Context, tx *sql.Tx, run domain.Run) error {
	if run.ID == "" {
		return errors.New("run id required")
	}
	if run.CreatedAt == "" {
		run.CreatedAt = r.stamp()
	}
	ids := run.UpdatedEntityIDs
	if ids == nil {
		ids = []string{}
	}
	idsJS, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	q := r.on(tx)
	if _, err := q.ExecContext(ctx, `INSERT INTO runs(`+runColumnsInsert+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		run.ID, run.Kind, run.ActorID, nullable(run.Response), run.StopReason, run.Status,
		rawOrNull(run.Plan), rawOrNull(run.Log), string(idsJS), run.CreatedAt); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	for _, a := range run.Actions {
		deltas := a.Deltas
		if len(deltas) == 0 {
			deltas = json.RawMessage("[]")
		}
		if _, err := q.ExecContext(ctx, `INSERT INTO run_actions(run_id,idx,type,label,detail,status,step_index,undone,undone_at,deltas_json) VALUES (?,?,?,?,?,?,?,?,?,?)`,
			run.ID, a.Index, a.Type, a.Label, a.Detail, a.Status, a.StepIndex, a.Undone, nullable(a.UndoneAt), string(deltas)); err != nil {
			return fmt.Errorf("insert run action %d: %w", a.Index, err)
		}
	}
	return nil
}

const runColumnsInsert = `id,kind,actor_id,response,stop_reason,status,plan_json,log_json,updated_ids_json,created_at`

// GetRun loads a run with its actions ordered by index.
func (r Repo) GetRun(ctx context.Context, id string) (domain.Run, error) {
	return r.GetRunTx(ctx, nil, id)
}

func (r Repo) GetRunTx(ctx context.Context, tx *sql.Tx, id string) (domain.Run, error) {
	q := r.on(tx)
	run, err := scanRun(q.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Run{}, ErrNotFound
	}
	if err != nil {
		return domain.Run{}, err
	}
	rows, err := q.QueryContext(ctx, `SELECT idx,type,label,detail,status,step_index,undone,COALESCE(undone_at,''),deltas_json FROM run_actions WHERE run_id=? ORDER BY idx`, id)
	if err != nil {
		return domain.Run{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			a      domain.RunAction
			deltas string
		)
		if err := rows.Scan(&a.Index, &a.Type, &a.Label, &a.Detail, &a.Status, &a.StepIndex, &a.Undone, &a.UndoneAt, &deltas); err != nil {
			return domain.Run{}, err
		}
		a.Deltas = json.RawMessage(deltas)
		run.Actions = append(run.Actions, a)
	}
	return run, rows.Err()
}

// ListRuns returns runs newest first without their actions. A non-empty
// cursor (created_at, id of the last row seen) continues a previous page.
func (r Repo) ListRuns(ctx context.Context, limit int, cursorCreatedAt, cursorID string) ([]domain.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + runColumns + ` FROM runs`
	var args []any
	if cursorCreatedAt != "" {
		query += ` WHERE (created_at < ?) OR (created_at = ? AND id < ?)`
		args = append(args, cursorCreatedAt, cursorCreatedAt, cursorID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, run)
	}
	return res, rows.Err()
}

func (r Repo) MarkActionUndoneTx(ctx context.Context, tx *sql.Tx, runID string, index int) error {
	return requireAffected(r.on(tx).ExecContext(ctx, `UPDATE run_actions SET undone=1, undone_at=? WHERE run_id=? AND idx=? AND undone=0`,
		r.stamp(), runID, index))
}
