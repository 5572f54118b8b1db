package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"manity/internal/config"
	"manity/internal/db"
	"manity/internal/migrate"
	"manity/internal/repo"
)

// Workspace bundles an opened, migrated workspace database with the
// services built on top of it.
type Workspace struct {
	Dir       string
	Config    *config.Config
	DB        *sql.DB
	Repo      repo.Repo
	Assistant *Assistant
	Mailer    *Mailer
}

// OpenWorkspace opens dir's database and applies pending migrations. A nil
// cfg is read from dir's manity.yml, falling back to defaults.
func OpenWorkspace(ctx context.Context, dir string, cfg *config.Config, logger *slog.Logger) (*Workspace, error) {
	if cfg == nil {
		loaded, err := config.LoadOptional(dir)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	r := repo.Repo{DB: conn}
	mailer := NewMailer(r, cfg.Email, logger)
	assistant := NewAssistant(r, cfg, logger)
	assistant.Mailer = mailer
	return &Workspace{
		Dir:       dir,
		Config:    cfg,
		DB:        conn,
		Repo:      r,
		Assistant: assistant,
		Mailer:    mailer,
	}, nil
}

func (w *Workspace) Close() error {
	return w.DB.Close()
}
