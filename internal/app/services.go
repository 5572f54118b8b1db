package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"manity/internal/domain"
	"manity/internal/events"
	"manity/internal/repo"
)

// Services backs the tools' host calls with the workspace database. ActorID
// is recorded on the audit events it writes.
type Services struct {
	Repo    repo.Repo
	Events  events.Writer
	ActorID string
	Now     func() time.Time
	// Notify is called after mail is queued.
	Notify func()
}

func (s Services) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s Services) actor() string {
	if s.ActorID == "" {
		return "local-user"
	}
	return s.ActorID
}

func (s Services) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.Repo.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// CreatePerson stores p unless someone with the same name exists, in which
// case the stored record is returned.
func (s Services) CreatePerson(ctx context.Context, p domain.Person) (domain.Person, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return domain.Person{}, errors.New("person name required")
	}
	existing, err := s.Repo.GetPersonByName(ctx, p.Name)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.Person{}, err
	}
	if p.ID == "" {
		p.ID = "person-" + uuid.NewString()
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.Repo.InsertPerson(ctx, tx, p); err != nil {
			return fmt.Errorf("insert person: %w", err)
		}
		return s.Events.Append(ctx, tx, events.Entry{
			Type:       events.PersonAdded,
			EntityKind: "person",
			EntityID:   p.ID,
			ActorID:    s.actor(),
			Payload:    events.Payload{"name": p.Name, "team": p.Team},
		})
	})
	if err != nil {
		return domain.Person{}, err
	}
	return p, nil
}

// SendEmail queues the message in the outbox. Delivery happens in the
// mailer.
func (s Services) SendEmail(ctx context.Context, e domain.Email) error {
	if len(e.Recipients) == 0 {
		return errors.New("email has no recipients")
	}
	if e.ID == "" {
		e.ID = "email-" + uuid.NewString()
	}
	e.CreatedAt = s.now().Format(time.RFC3339)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.Repo.EnqueueEmail(ctx, tx, e); err != nil {
			return fmt.Errorf("enqueue email: %w", err)
		}
		return s.Events.Append(ctx, tx, events.Entry{
			Type:       events.EmailQueued,
			EntityKind: "email",
			EntityID:   e.ID,
			ActorID:    s.actor(),
			Payload:    events.Payload{"recipients": e.Recipients, "subject": e.Subject},
		})
	})
	if err != nil {
		return err
	}
	if s.Notify != nil {
		s.Notify()
	}
	return nil
}

// BuildThrustContext summarizes the stored portfolio.
func (s Services) BuildThrustContext(ctx context.Context) ([]domain.PortfolioSummary, error) {
	projects, err := s.Repo.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	asOf := s.now()
	out := make([]domain.PortfolioSummary, 0, len(projects))
	for _, p := range projects {
		out = append(out, domain.Summarize(p, asOf))
	}
	return out, nil
}
