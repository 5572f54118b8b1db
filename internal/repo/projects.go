package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"manity/internal/domain"
)

func decodeProject(data string) (domain.Project, error) {
	var p domain.Project
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return p, fmt.Errorf("decode project: %w", err)
	}
	p.Normalize()
	return p, nil
}

// ListProjects returns the stored portfolio in its saved order.
func (r Repo) ListProjects(ctx context.Context) ([]domain.Project, error) {
	return r.ListProjectsTx(ctx, nil)
}

func (r Repo) ListProjectsTx(ctx context.Context, tx *sql.Tx) ([]domain.Project, error) {
	rows, err := r.on(tx).QueryContext(ctx, `SELECT data_json FROM projects ORDER BY position, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Project{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		p, err := decodeProject(data)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	var data string
	err := r.DB.QueryRowContext(ctx, `SELECT data_json FROM projects WHERE id=?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Project{}, ErrNotFound
	}
	if err != nil {
		return domain.Project{}, err
	}
	return decodeProject(data)
}

// ReplaceProjectsTx stores projects as the whole portfolio. Rows for
// projects missing from the slice are removed.
func (r Repo) ReplaceProjectsTx(ctx context.Context, tx *sql.Tx, projects []domain.Project) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM projects`); err != nil {
		return err
	}
	now := r.stamp()
	seen := make(map[string]bool, len(projects))
	for i, p := range projects {
		if p.ID == "" {
			return fmt.Errorf("project %q has no id", p.Name)
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate project id %s", p.ID)
		}
		seen[p.ID] = true
		p.Normalize()
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode project %s: %w", p.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO projects(id,name,position,data_json,updated_at) VALUES (?,?,?,?,?)`,
			p.ID, p.Name, i, string(data), now); err != nil {
			return err
		}
	}
	return nil
}
