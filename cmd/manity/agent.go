package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"manity/internal/app"
	"manity/internal/engine"
	"manity/internal/planner"
	"manity/internal/tools"
)

// constraintFlags override the workspace agent constraints for one run.
type constraintFlags struct {
	maxSteps      int
	noSideEffects bool
	confirm       bool
	exclude       []string
	author        string
	quiet         bool
}

func (f *constraintFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.maxSteps, "max-steps", 0, "step budget (0 uses the workspace setting)")
	cmd.Flags().BoolVar(&f.noSideEffects, "no-side-effects", false, "block tools with external side effects")
	cmd.Flags().BoolVar(&f.confirm, "require-confirmation", false, "block tools that need confirmation")
	cmd.Flags().StringSliceVar(&f.exclude, "exclude", nil, "tools to exclude")
	cmd.Flags().StringVar(&f.author, "author", "", "author recorded on activity")
	cmd.Flags().BoolVarP(&f.quiet, "quiet", "q", false, "do not stream step events")
}

func (f *constraintFlags) options(cmd *cobra.Command, ws *app.Workspace) (app.TurnOptions, error) {
	c := ws.Config.Constraints()
	if cmd.Flags().Changed("max-steps") {
		c.MaxSteps = f.maxSteps
	}
	if f.noSideEffects {
		c.AllowSideEffects = false
	}
	if f.confirm {
		c.RequireConfirmation = true
	}
	for _, name := range f.exclude {
		if !tools.Known(name) {
			return app.TurnOptions{}, fmt.Errorf("unknown tool %s", name)
		}
		c.ExcludeTools = append(c.ExcludeTools, tools.Name(name))
	}
	opts := app.TurnOptions{ActorID: actorID(), Author: f.author, Constraints: &c}
	if !f.quiet {
		opts.OnEvent = func(ev engine.ExecutionEvent) {
			fmt.Fprintf(os.Stderr, "  [%d] %-8s %s: %s\n", ev.StepIndex, ev.Status, ev.Label, ev.Detail)
		}
	}
	return opts, nil
}

func turnCmd() *cobra.Command {
	var file string
	var flags constraintFlags
	cmd := &cobra.Command{
		Use:   "turn",
		Short: "Run model output against the portfolio",
		Long:  "Reads raw model output (a JSON plan with response and steps, optionally in a code fence), executes it and stores the run.",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(file)
			if err != nil {
				return err
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				opts, err := flags.options(cmd, ws)
				if err != nil {
					return err
				}
				out, err := ws.Assistant.Turn(ctx, string(data), opts)
				if err != nil {
					return err
				}
				return printOutcome(out)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "model output file, - for stdin")
	flags.register(cmd)
	return cmd
}

func actCmd() *cobra.Command {
	var file string
	var flags constraintFlags
	cmd := &cobra.Command{
		Use:   "act",
		Short: "Execute actions directly",
		Long:  `Reads a JSON array of actions, or an object with an actions array. Each action names its tool in "type".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(file)
			if err != nil {
				return err
			}
			actions, err := decodeActions(data)
			if err != nil {
				return err
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				opts, err := flags.options(cmd, ws)
				if err != nil {
					return err
				}
				out, err := ws.Assistant.Act(ctx, actions, opts)
				if err != nil {
					return err
				}
				return printOutcome(out)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "actions JSON file, - for stdin")
	flags.register(cmd)
	return cmd
}

func decodeActions(data []byte) ([]planner.Action, error) {
	if strings.HasPrefix(strings.TrimSpace(string(data)), "[") {
		var out []planner.Action
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("invalid actions file: %w", err)
		}
		return out, nil
	}
	var wrapped struct {
		Actions []planner.Action `json:"actions"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("invalid actions file: %w", err)
	}
	return wrapped.Actions, nil
}

func printOutcome(out app.Outcome) error {
	res := out.Result
	type view struct {
		RunID string `json:"run_id"`
		engine.AgentResult
	}
	return printJSONOrTable(view{RunID: out.RunID, AgentResult: res}, table.Row{"#", "Step", "Tool", "Status", "Action"}, func(tw table.Writer) {
		tw.SetTitle(fmt.Sprintf("run %s: %s", out.RunID, res.StopReason))
		for i, a := range res.Actions {
			tw.AppendRow(table.Row{i, a.StepIndex, a.Type, a.Status, truncate(a.Detail, 70)})
		}
		if res.Response != "" {
			tw.AppendFooter(table.Row{"", "", "", "", truncate(res.Response, 70)})
		}
	})
}

func promptCmd() *cobra.Command {
	var author string
	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Print the system prompt for the current portfolio",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				prompt, err := ws.Assistant.SystemPrompt(ctx, author)
				if err != nil {
					return err
				}
				fmt.Println(prompt)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&author, "author", "", "user name shown to the model")
	return cmd
}

func runCmd() *cobra.Command {
	run := &cobra.Command{Use: "run", Short: "Inspect and undo stored runs"}
	run.AddCommand(runListCmd())
	run.AddCommand(runShowCmd())
	run.AddCommand(runUndoCmd())
	return run
}

func runListCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				items, err := ws.Repo.ListRuns(ctx, n, "", "")
				if err != nil {
					return err
				}
				return printJSONOrTable(items, table.Row{"ID", "Created", "Kind", "Actor", "Stop", "Response"}, func(tw table.Writer) {
					for _, r := range items {
						tw.AppendRow(table.Row{r.ID, r.CreatedAt, r.Kind, r.ActorID, r.StopReason, truncate(r.Response, 50)})
					}
				})
			})
		},
	}
	cmd.Flags().IntVarP(&n, "n", "n", 20, "number of runs")
	return cmd
}

func runShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a run with its actions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				run, err := ws.Repo.GetRun(ctx, args[0])
				if err != nil {
					return fmt.Errorf("run %s: %w", args[0], err)
				}
				return printJSONOrTable(run, table.Row{"#", "Step", "Tool", "Status", "Undone", "Action"}, func(tw table.Writer) {
					tw.SetTitle(fmt.Sprintf("run %s (%s, %s) by %s", run.ID, run.Kind, run.StopReason, run.ActorID))
					for _, a := range run.Actions {
						tw.AppendRow(table.Row{a.Index, a.StepIndex, a.Type, a.Status, a.Undone, truncate(a.Detail, 60)})
					}
				})
			})
		},
	}
}

func runUndoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "undo <run-id> <action-index>",
		Short: "Revert one action of a run",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("action index must be a number: %w", err)
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				out, err := ws.Assistant.Undo(ctx, args[0], index, actorID())
				if err != nil {
					return err
				}
				if !out.Undone {
					fmt.Printf("action %d of run %s was already undone\n", index, out.RunID)
					return nil
				}
				fmt.Printf("undid action %d of run %s: %s\n", index, out.RunID, out.Action.Label)
				return nil
			})
		},
	}
}
