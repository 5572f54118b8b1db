package planner

import (
	"fmt"
	"strings"
	"time"

	"manity/internal/domain"
)

// AgentContext is the portfolio state a turn starts from. It is read only;
// runs work on a copy.
type AgentContext struct {
	Projects []domain.Project
	People   []domain.Person
	Author   string
	Now      time.Time
}

const outputContract = `Reply with a single JSON object and nothing else:
{"response": "<message for the user>", "goal": "<short goal>", "steps": [
  {"rationale": "<why>", "toolCandidates": [{"toolName": "<tool>", "input": {...}}],
   "requiresConfirmation": false, "stopIf": []}
]}
Each step lists one or more alternative tool calls; the first acceptable one runs.
Use an empty steps list when no change is needed.
Refer to projects by projectId or projectName and to tasks by taskId or taskTitle.
Later steps may refer to projects and tasks created by earlier steps by name.`

// BuildSystemPrompt renders the instructions, tool list and portfolio
// snapshot handed to the model.
func (pl *Planner) BuildSystemPrompt(ac AgentContext) string {
	now := ac.Now
	if now.IsZero() {
		now = time.Now()
	}
	var b strings.Builder
	b.WriteString("You are the project assistant for a portfolio of projects. ")
	b.WriteString("You turn requests into tool calls that update projects, tasks, people and activity.\n\n")

	b.WriteString("## Context\n")
	fmt.Fprintf(&b, "- Today: %s\n", now.UTC().Format("2006-01-02"))
	if ac.Author != "" {
		fmt.Fprintf(&b, "- User: %s\n", ac.Author)
	}
	b.WriteString("\n## Tools\n")
	b.WriteString(pl.Catalog.DescriptionsForPrompt())

	b.WriteString("\n## Portfolio\n")
	if len(ac.Projects) == 0 {
		b.WriteString("(no projects yet)\n")
	}
	for _, p := range ac.Projects {
		s := domain.Summarize(p, now)
		fmt.Fprintf(&b, "- %s [id %s] status %s, priority %s, %d%%", s.Name, s.ID, s.Status, s.Priority, s.Progress)
		if s.TargetDate != "" {
			fmt.Fprintf(&b, ", target %s", s.TargetDate)
		}
		fmt.Fprintf(&b, ", tasks %d open / %d done", s.OpenTasks, s.CompletedTasks)
		if s.OverdueTasks > 0 {
			fmt.Fprintf(&b, " (%d overdue)", s.OverdueTasks)
		}
		b.WriteString("\n")
		for _, t := range p.Plan {
			fmt.Fprintf(&b, "  - task %q [%s] %s", t.Title, t.ID, t.Status)
			if t.Assignee != nil {
				fmt.Fprintf(&b, ", assigned to %s", t.Assignee.Name)
			}
			b.WriteString("\n")
		}
	}

	if len(ac.People) > 0 {
		b.WriteString("\n## People\n")
		for _, p := range ac.People {
			fmt.Fprintf(&b, "- %s", p.Name)
			if p.Team != "" {
				fmt.Fprintf(&b, " (%s)", p.Team)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("\n## Output\n")
	b.WriteString(outputContract)
	b.WriteString("\n")
	return b.String()
}
