package domain

import "time"

// Summarize projects a portfolio entry into its read model. Tasks whose due
// date is before asOf and are not completed count as overdue.
func Summarize(p Project, asOf time.Time) PortfolioSummary {
	s := PortfolioSummary{
		ID:         p.ID,
		Name:       p.Name,
		Status:     p.Status,
		Priority:   p.Priority,
		Progress:   p.Progress,
		TargetDate: p.TargetDate,
		LastUpdate: p.LastUpdate,
	}
	day := asOf.UTC().Format("2006-01-02")
	for _, t := range p.Plan {
		if t.Status == TaskCompleted {
			s.CompletedTasks++
			continue
		}
		s.OpenTasks++
		if t.DueDate != "" && len(t.DueDate) >= 10 && t.DueDate[:10] < day {
			s.OverdueTasks++
		}
	}
	for _, sh := range p.Stakeholders {
		s.Stakeholders = append(s.Stakeholders, sh.Name)
	}
	return s
}
