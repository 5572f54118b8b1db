package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"manity/internal/app"
	"manity/internal/domain"
	"manity/internal/repo"
)

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Inspect and import the portfolio"}
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectImportCmd())
	return prj
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				items, err := ws.Repo.ListProjects(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items, table.Row{"ID", "Name", "Status", "Priority", "Progress", "Tasks"}, func(tw table.Writer) {
					for _, p := range items {
						tw.AppendRow(table.Row{p.ID, p.Name, p.Status, p.Priority, fmt.Sprintf("%d%%", p.Progress), len(p.Plan)})
					}
				})
			})
		},
	}
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show a project with its plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				p, err := ws.Repo.GetProject(ctx, args[0])
				if err != nil {
					return fmt.Errorf("project %s: %w", args[0], err)
				}
				return printJSONOrTable(p, table.Row{"Task", "Status", "Due", "Assignee", "Subtasks"}, func(tw table.Writer) {
					tw.SetTitle(fmt.Sprintf("%s [%s, %s]", p.Name, p.Status, p.Priority))
					for _, t := range p.Plan {
						assignee := ""
						if t.Assignee != nil {
							assignee = t.Assignee.Name
						}
						done := 0
						for _, s := range t.Subtasks {
							if s.Status == domain.TaskCompleted {
								done++
							}
						}
						tw.AppendRow(table.Row{t.Title, t.Status, t.DueDate, assignee, fmt.Sprintf("%d/%d", done, len(t.Subtasks))})
					}
				})
			})
		},
	}
}

func projectImportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Replace the portfolio with projects from a JSON file",
		Long:  "Accepts a JSON array of projects or an object with a projects array. The stored portfolio is replaced as a whole.",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(file)
			if err != nil {
				return err
			}
			projects, err := decodeProjectsFile(data)
			if err != nil {
				return err
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				stored, err := ws.Assistant.ReplaceProjects(ctx, projects, actorID())
				if err != nil {
					return err
				}
				fmt.Printf("Imported %d projects\n", len(stored))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "projects JSON file, - for stdin")
	return cmd
}

func decodeProjectsFile(data []byte) ([]domain.Project, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var out []domain.Project
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("invalid projects file: %w", err)
		}
		return out, nil
	}
	var wrapped struct {
		Projects []domain.Project `json:"projects"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("invalid projects file: %w", err)
	}
	return wrapped.Projects, nil
}

func personCmd() *cobra.Command {
	per := &cobra.Command{Use: "person", Short: "Manage the people directory"}
	per.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List people",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				items, err := ws.Repo.ListPeople(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items, table.Row{"ID", "Name", "Team", "Email"}, func(tw table.Writer) {
					for _, p := range items {
						tw.AppendRow(table.Row{p.ID, p.Name, p.Team, p.Email})
					}
				})
			})
		},
	})
	per.AddCommand(personAddCmd())
	return per
}

func personAddCmd() *cobra.Command {
	var team, email string
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a person; an existing name is left as is",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				p, err := ws.Assistant.AddPerson(ctx, domain.Person{Name: args[0], Team: team, Email: email}, actorID())
				if err != nil {
					return err
				}
				return printJSON(p)
			})
		},
	}
	cmd.Flags().StringVar(&team, "team", "", "team")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Audit trail of portfolio changes: runs, undos, imports, people and queued email.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var f repo.EventFilter
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				items, err := ws.Repo.LatestEvents(ctx, n, 0, f)
				if err != nil {
					return err
				}
				return printJSONOrTable(items, table.Row{"ID", "Time", "Type", "Entity", "Actor", "Payload"}, func(tw table.Writer) {
					for _, e := range items {
						entity := e.EntityKind
						if e.EntityID != "" {
							entity += ":" + e.EntityID
						}
						tw.AppendRow(table.Row{e.ID, e.TS, e.Type, entity, e.ActorID, truncate(e.Payload, 60)})
					}
				})
			})
		},
	}
	cmd.Flags().IntVarP(&n, "n", "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.ProjectID, "project", "", "project id filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	return cmd
}
