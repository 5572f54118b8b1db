package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"manity/internal/domain"
)

const emailColumns = `id,recipients_json,subject,body,status,attempts,COALESCE(last_error,''),created_at,COALESCE(sent_at,'')`

func (r Repo) EnqueueEmail(ctx context.Context, tx *sql.Tx, e domain.Email) error {
	if e.ID == "" {
		return errors.New("email id required")
	}
	if len(e.Recipients) == 0 {
		return errors.New("email has no recipients")
	}
	recipients, err := json.Marshal(e.Recipients)
	if err != nil {
		return err
	}
	if e.CreatedAt == "" {
		e.CreatedAt = r.stamp()
	}
	_, err = r.on(tx).ExecContext(ctx, `INSERT INTO email_outbox(id,recipients_json,subject,body,status,attempts,created_at) VALUES (?,?,?,?,?,0,?)`,
		e.ID, string(recipients), e.Subject, e.Body, domain.EmailQueued, e.CreatedAt)
	return err
}

// ListEmails returns outbox entries oldest first, optionally by status.
func (r Repo) ListEmails(ctx context.Context, status string, limit int) ([]domain.Email, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + emailColumns + ` FROM email_outbox`
	var args []any
	if status != "" {
		query += ` WHERE status=?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at, id LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Email{}
	for rows.Next() {
		var (
			e          domain.Email
			recipients string
		)
		if err := rows.Scan(&e.ID, &recipients, &e.Subject, &e.Body, &e.Status, &e.Attempts, &e.LastError, &e.CreatedAt, &e.SentAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(recipients), &e.Recipients); err != nil {
			return nil, fmt.Errorf("decode recipients of %s: %w", e.ID, err)
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) MarkEmailSent(ctx context.Context, id string) error {
	return requireAffected(r.DB.ExecContext(ctx, `UPDATE email_outbox SET status=?, attempts=attempts+1, last_error=NULL, sent_at=? WHERE id=?`,
		domain.EmailSent, r.stamp(), id))
}

// MarkEmailAttemptFailed records a delivery error. The entry stays queued
// until final is set.
func (r Repo) MarkEmailAttemptFailed(ctx context.Context, id, message string, final bool) error {
	status := domain.EmailQueued
	if final {
		status = domain.EmailFailed
	}
	return requireAffected(r.DB.ExecContext(ctx, `UPDATE email_outbox SET status=?, attempts=attempts+1, last_error=? WHERE id=?`,
		status, nullable(message), id))
}
