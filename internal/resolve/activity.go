package resolve

import (
	"sort"
	"time"

	"manity/internal/domain"
)

var activityLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

// SyncProjectActivity adds newActivities, re-sorts RecentActivity newest
// first and recomputes LastUpdate from the newest note. A project with no
// activity gets an empty LastUpdate.
func SyncProjectActivity(p *domain.Project, newActivities ...domain.Activity) {
	if p == nil {
		return
	}
	// new entries go in front so they win ties against older entries with
	// the same timestamp
	for _, a := range newActivities {
		p.RecentActivity = append([]domain.Activity{a}, p.RecentActivity...)
	}
	sort.SliceStable(p.RecentActivity, func(i, j int) bool {
		return activityAfter(p.RecentActivity[i].Date, p.RecentActivity[j].Date)
	})
	if len(p.RecentActivity) == 0 {
		p.LastUpdate = ""
		return
	}
	p.LastUpdate = p.RecentActivity[0].Note
}

func activityAfter(a, b string) bool {
	ta, okA := parseActivityDate(a)
	tb, okB := parseActivityDate(b)
	switch {
	case okA && okB:
		return ta.After(tb)
	case okA != okB:
		// dated entries sort before undated ones
		return okA
	default:
		return a > b
	}
}

func parseActivityDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range activityLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
