package repo

import (
	"context"
	"database/sql"
	"errors"

	"manity/internal/domain"
)

const personColumns = `id,name,COALESCE(team,''),COALESCE(email,'')`

func (r Repo) ListPeople(ctx context.Context) ([]domain.Person, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+personColumns+` FROM people ORDER BY name COLLATE NOCASE`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Person{}
	for rows.Next() {
		var p domain.Person
		if err := rows.Scan(&p.ID, &p.Name, &p.Team, &p.Email); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// GetPersonByName matches case-insensitively.
func (r Repo) GetPersonByName(ctx context.Context, name string) (domain.Person, error) {
	var p domain.Person
	err := r.DB.QueryRowContext(ctx, `SELECT `+personColumns+` FROM people WHERE name=? COLLATE NOCASE`, name).
		Scan(&p.ID, &p.Name, &p.Team, &p.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	return p, err
}

func (r Repo) InsertPerson(ctx context.Context, tx *sql.Tx, p domain.Person) error {
	if p.ID == "" || p.Name == "" {
		return errors.New("id and name required")
	}
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO people(id,name,team,email,created_at) VALUES (?,?,?,?,?)`,
		p.ID, p.Name, nullable(p.Team), nullable(p.Email), r.stamp())
	return err
}
