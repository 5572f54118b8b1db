package tools

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"manity/internal/delta"
	"manity/internal/domain"
	"manity/internal/resolve"
)

func notFound(kind, target string) string {
	return fmt.Sprintf("%s %q not found", kind, target)
}

func commentTool() Definition {
	return define(Comment,
		"Add a note to a project's activity log.",
		Metadata{MutatesState: true, ReadsState: true, Tags: []string{TagProjectScoped}},
		func(_ context.Context, tc *Context, in *CommentInput) Result {
			const label = "Add comment"
			p, ok := tc.ResolveProject(in.ProjectTarget())
			if !ok {
				return skipped(label, notFound("project", in.ProjectTarget()))
			}
			author := strings.TrimSpace(in.Author)
			if author == "" {
				author = tc.author()
			}
			act := domain.Activity{
				ID:     tc.NewID("activity"),
				Date:   tc.Now().Format(time.RFC3339Nano),
				Author: author,
				Note:   strings.TrimSpace(in.Note),
			}
			resolve.SyncProjectActivity(p, act)
			res := success(label, fmt.Sprintf("Logged on %s: %s", p.Name, act.Note), p.ID, act.ID)
			res.Deltas = []delta.Delta{delta.RemoveActivity{ProjectID: p.ID, ActivityID: act.ID}}
			return res
		})
}

func createProjectTool() Definition {
	return define(CreateProject,
		"Create a new project in the portfolio.",
		Metadata{MutatesState: true, ReadsState: true, Tags: []string{TagPortfolio}},
		func(_ context.Context, tc *Context, in *CreateProjectInput) Result {
			const label = "Create project"
			name := strings.TrimSpace(in.Name)
			for _, existing := range tc.Projects {
				if strings.EqualFold(existing.Name, name) {
					return skipped(label, fmt.Sprintf("project %q already exists", existing.Name))
				}
			}
			p := domain.Project{
				ID:              tc.NewID("project"),
				Name:            name,
				Status:          domain.ProjectPlanning,
				Priority:        domain.PriorityMedium,
				Description:     in.Description,
				ExecutiveUpdate: in.ExecutiveUpdate,
				StartDate:       in.StartDate,
				TargetDate:      in.TargetDate,
			}
			if in.Status != "" {
				p.Status = domain.ProjectStatus(in.Status)
			}
			if in.Priority != "" {
				p.Priority = domain.Priority(in.Priority)
			}
			if in.Progress != nil {
				p.Progress = *in.Progress
			}
			for _, s := range in.Stakeholders {
				p.Stakeholders = append(p.Stakeholders, toStakeholder(s))
			}
			created := tc.AddProject(p)
			res := success(label, fmt.Sprintf("Created %s (%s)", created.Name, created.Status), created.ID)
			res.Deltas = []delta.Delta{delta.RemoveProject{ProjectID: created.ID}}
			return res
		})
}

func updateProjectTool() Definition {
	return define(UpdateProject,
		"Change project fields such as status, priority, progress, dates or the executive update.",
		Metadata{MutatesState: true, ReadsState: true, Tags: []string{TagProjectScoped}},
		func(_ context.Context, tc *Context, in *UpdateProjectInput) Result {
			const label = "Update project"
			p, ok := tc.ResolveProject(in.ProjectTarget())
			if !ok {
				return skipped(label, notFound("project", in.ProjectTarget()))
			}
			var prev delta.ProjectFields
			var changed []string
			patchString(&p.Name, in.Name, &prev.Name, "name", &changed)
			patchString(&p.Description, in.Description, &prev.Description, "description", &changed)
			patchString(&p.ExecutiveUpdate, in.ExecutiveUpdate, &prev.ExecutiveUpdate, "executive update", &changed)
			patchString(&p.TargetDate, in.TargetDate, &prev.TargetDate, "target date", &changed)
			patchString(&p.StartDate, in.StartDate, &prev.StartDate, "start date", &changed)
			if in.Status != nil && domain.ProjectStatus(*in.Status) != p.Status {
				prev.Status = delta.Ptr(p.Status)
				p.Status = domain.ProjectStatus(*in.Status)
				changed = append(changed, "status")
			}
			if in.Priority != nil && domain.Priority(*in.Priority) != p.Priority {
				prev.Priority = delta.Ptr(p.Priority)
				p.Priority = domain.Priority(*in.Priority)
				changed = append(changed, "priority")
			}
			if in.Progress != nil && *in.Progress != p.Progress {
				prev.Progress = delta.Ptr(p.Progress)
				p.Progress = *in.Progress
				changed = append(changed, "progress")
			}
			if prev.IsEmpty() {
				return skipped(label, fmt.Sprintf("%s already up to date", p.Name))
			}
			if prev.Name != nil {
				tc.RefreshIndex()
			}
			res := success(label, fmt.Sprintf("Updated %s: %s", p.Name, strings.Join(changed, ", ")), p.ID)
			res.Deltas = []delta.Delta{delta.RestoreProject{ProjectID: p.ID, Previous: prev}}
			return res
		})
}

func addStakeholdersTool() Definition {
	return define(AddStakeholders,
		"Add stakeholders to a project. Names already listed are ignored.",
		Metadata{MutatesState: true, ReadsState: true, Tags: []string{TagProjectScoped, TagPeople}},
		func(_ context.Context, tc *Context, in *AddStakeholdersInput) Result {
			const label = "Add stakeholders"
			p, ok := tc.ResolveProject(in.ProjectTarget())
			if !ok {
				return skipped(label, notFound("project", in.ProjectTarget()))
			}
			prev := slices.Clone(p.Stakeholders)
			var added []string
			for _, s := range in.Stakeholders {
				sh := toStakeholder(s)
				if sh.Team == "" || sh.Email == "" {
					if person, ok := tc.FindPerson(sh.Name); ok {
						sh.Team = firstNonEmpty(sh.Team, person.Team)
						sh.Email = firstNonEmpty(sh.Email, person.Email)
					}
				}
				if hasStakeholder(p.Stakeholders, sh.Name) {
					continue
				}
				p.Stakeholders = append(p.Stakeholders, sh)
				added = append(added, sh.Name)
			}
			if len(added) == 0 {
				return skipped(label, fmt.Sprintf("all stakeholders already on %s", p.Name))
			}
			res := success(label, fmt.Sprintf("Added %s to %s", strings.Join(added, ", "), p.Name), p.ID)
			res.Deltas = []delta.Delta{delta.RestoreProject{ProjectID: p.ID, Previous: delta.ProjectFields{Stakeholders: &prev}}}
			return res
		})
}

func queryPortfolioTool() Definition {
	return define(QueryPortfolio,
		"Look up project status, progress and task counts across the portfolio.",
		Metadata{ReadsState: true, Tags: []string{TagPortfolio}},
		func(ctx context.Context, tc *Context, in *QueryPortfolioInput) Result {
			const label = "Query portfolio"
			summaries, err := tc.summaries(ctx)
			if err != nil {
				return Failure(label, err)
			}
			var want string
			if target := in.ProjectTarget(); target != "" {
				p, ok := tc.ResolveProject(target)
				if !ok {
					return skipped(label, notFound("project", target))
				}
				want = p.ID
				if !hasSummary(summaries, want) {
					// created earlier in this run, so the host snapshot lacks it
					summaries = append(summaries, domain.Summarize(*p, tc.Now()))
				}
			}
			query := strings.ToLower(strings.TrimSpace(in.Query))
			var lines []string
			for _, s := range summaries {
				if want != "" && s.ID != want {
					continue
				}
				if in.Status != "" && string(s.Status) != in.Status {
					continue
				}
				if query != "" && !strings.Contains(strings.ToLower(s.Name), query) {
					continue
				}
				lines = append(lines, formatSummary(s))
			}
			res := success(label, fmt.Sprintf("Found %d matching project(s)", len(lines)))
			res.Observations = strings.Join(lines, "\n")
			return res
		})
}

func hasSummary(summaries []domain.PortfolioSummary, id string) bool {
	for _, s := range summaries {
		if s.ID == id {
			return true
		}
	}
	return false
}

// summaries prefers the host's snapshot and falls back to the working copy.
func (tc *Context) summaries(ctx context.Context) ([]domain.PortfolioSummary, error) {
	if tc.Services != nil {
		return tc.Services.BuildThrustContext(ctx)
	}
	out := make([]domain.PortfolioSummary, 0, len(tc.Projects))
	for _, p := range tc.Projects {
		out = append(out, domain.Summarize(p, tc.Now()))
	}
	return out, nil
}

func formatSummary(s domain.PortfolioSummary) string {
	line := fmt.Sprintf("%s [%s] %s, %s priority, %d%% complete, %d open / %d done / %d overdue tasks",
		s.Name, s.ID, s.Status, s.Priority, s.Progress, s.OpenTasks, s.CompletedTasks, s.OverdueTasks)
	if s.TargetDate != "" {
		line += ", target " + s.TargetDate
	}
	if s.LastUpdate != "" {
		line += ", last update: " + s.LastUpdate
	}
	return line
}

func patchString(field *string, next *string, prev **string, what string, changed *[]string) {
	if next == nil || *next == *field {
		return
	}
	*prev = delta.Ptr(*field)
	*field = *next
	*changed = append(*changed, what)
}

func toStakeholder(s StakeholderInput) domain.Stakeholder {
	return domain.Stakeholder{Name: strings.TrimSpace(s.Name), Team: s.Team, Email: s.Email}
}

func hasStakeholder(list []domain.Stakeholder, name string) bool {
	for _, s := range list {
		if strings.EqualFold(s.Name, name) {
			return true
		}
	}
	return false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
