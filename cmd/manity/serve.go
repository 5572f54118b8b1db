package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"manity/internal/app"
	"manity/internal/domain"
	"manity/internal/metrics"
	"manity/internal/repo"
	"manity/internal/server"
)

func serveCmd() *cobra.Command {
	var basePath string
	var allowActorHeader, devLogin bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the outbox mailer",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ws, err := app.OpenWorkspace(cmd.Context(), viper.GetString("workspace"), nil, logger)
			if err != nil {
				return err
			}
			defer ws.Close()

			addr := viper.GetString("addr")
			if addr == "" {
				addr = ws.Config.Server.Addr
			}
			authCfg := server.AuthConfig{
				JWTSecret:        firstNonEmpty(viper.GetString("jwt-secret"), ws.Config.Server.JWTSecret),
				AllowActorHeader: allowActorHeader,
				DevLogin:         devLogin,
				Logger:           logger,
			}
			if authCfg.JWTSecret == "" && !authCfg.AllowActorHeader {
				logger.Warn("no jwt secret configured; only API keys will authenticate")
			}
			if authCfg.DevLogin && authCfg.JWTSecret == "" {
				return fmt.Errorf("--dev-login needs a jwt secret (MANITY_JWT_SECRET or server.jwt_secret)")
			}
			var recorder *metrics.Recorder
			if ws.Config.Server.Metrics {
				recorder = metrics.New()
			}
			handler, err := server.New(server.Config{
				Assistant: ws.Assistant,
				Metrics:   recorder,
				BasePath:  basePath,
				Auth:      authCfg,
				Logger:    logger,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				fmt.Printf("Serving Manity API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				return ws.Mailer.Run(ctx)
			})
			g.Go(func() error {
				<-ctx.Done()
				shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdown)
			})
			return g.Wait()
		},
	}
	cmd.Flags().String("addr", "", "listen address (defaults to server.addr)")
	cmd.Flags().String("jwt-secret", "", "HS256 secret for bearer tokens")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowActorHeader, "allow-actor-header", false, "trust X-Actor-Id from unauthenticated requests")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "enable POST /auth/dev/login")
	_ = viper.BindPFlag("addr", cmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("jwt-secret", cmd.Flags().Lookup("jwt-secret"))
	return cmd
}

func outboxCmd() *cobra.Command {
	out := &cobra.Command{Use: "outbox", Short: "Queued assistant email"}
	var status string
	list := &cobra.Command{
		Use:   "list",
		Short: "List outbox entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				items, err := ws.Repo.ListEmails(ctx, status, 0)
				if err != nil {
					return err
				}
				return printJSONOrTable(items, table.Row{"ID", "Created", "Status", "Attempts", "To", "Subject"}, func(tw table.Writer) {
					for _, e := range items {
						tw.AppendRow(table.Row{e.ID, e.CreatedAt, e.Status, e.Attempts, truncate(fmt.Sprint(e.Recipients), 40), truncate(e.Subject, 40)})
					}
				})
			})
		},
	}
	list.Flags().StringVar(&status, "status", "", "queued, sent or failed")
	out.AddCommand(list)
	out.AddCommand(&cobra.Command{
		Use:   "flush",
		Short: "Deliver queued email through the configured webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				if !ws.Mailer.Enabled() {
					return fmt.Errorf("email.webhook_url is not configured")
				}
				sent, err := ws.Mailer.DeliverPending(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("delivered %d messages\n", sent)
				return nil
			})
		},
	})
	return out
}

func apiKeyCmd() *cobra.Command {
	keys := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	var actor, name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key; the key is printed once",
		RunE: func(cmd *cobra.Command, args []string) error {
			if actor == "" {
				actor = actorID()
			}
			buf := make([]byte, 24)
			if _, err := rand.Read(buf); err != nil {
				return err
			}
			secret := "mk_" + hex.EncodeToString(buf)
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				key := domain.APIKey{ID: uuid.NewString(), ActorID: actor, Name: name, KeyHash: repo.HashAPIKey(secret)}
				if err := ws.Repo.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				fmt.Printf("id:  %s\nkey: %s\n", key.ID, secret)
				return nil
			})
		},
	}
	create.Flags().StringVar(&actor, "actor", "", "actor the key authenticates as (defaults to --actor-id)")
	create.Flags().StringVar(&name, "name", "", "label")
	keys.AddCommand(create)
	keys.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				items, err := ws.Repo.ListAPIKeys(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items, table.Row{"ID", "Actor", "Name", "Created"}, func(tw table.Writer) {
					for _, k := range items {
						tw.AppendRow(table.Row{k.ID, k.ActorID, k.Name, k.CreatedAt})
					}
				})
			})
		},
	})
	keys.AddCommand(&cobra.Command{
		Use:   "revoke <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				return ws.Repo.DeleteAPIKey(ctx, args[0])
			})
		},
	})
	return keys
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
