// Package resolve maps loose references (ids, names, partial titles) onto
// entities inside a portfolio snapshot.
//
// Every lookup walks an explicit, ordered list of match strategies and stops
// at the first hit, so the ambiguity policy can be read and tested on its own.
package resolve

import (
	"strings"
	"unicode"

	"manity/internal/domain"
)

// Strategy reports whether a candidate (id, label) matches target.
type Strategy struct {
	Name  string
	Match func(id, label, target string) bool
}

// ProjectStrategies is the match order for projects. There is no substring
// fallback for projects.
var ProjectStrategies = []Strategy{
	{Name: "exact-id", Match: func(id, _, target string) bool { return id == target }},
	{Name: "id-fold", Match: func(id, _, target string) bool { return strings.EqualFold(id, target) }},
	{Name: "name-fold", Match: func(_, label, target string) bool { return strings.EqualFold(label, target) }},
	{Name: "name-normalized", Match: func(_, label, target string) bool {
		n := Normalize(target)
		return n != "" && Normalize(label) == n
	}},
}

// TitleStrategies is the match order for tasks and subtasks. Containment is
// tried only after every exact strategy missed across the whole list.
var TitleStrategies = []Strategy{
	{Name: "exact-id", Match: func(id, _, target string) bool { return id == target }},
	{Name: "id-fold", Match: func(id, _, target string) bool { return strings.EqualFold(id, target) }},
	{Name: "title-fold", Match: func(_, label, target string) bool { return strings.EqualFold(label, target) }},
	{Name: "title-contains", Match: func(_, label, target string) bool {
		return strings.Contains(strings.ToLower(label), strings.ToLower(target))
	}},
}

// Normalize lowercases s and strips every non-alphanumeric rune, so
// "API Gateway" and "api-gateway" both become "apigateway".
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// Find runs strategies in order over n candidates and returns the index of
// the first candidate matched by the earliest strategy, or -1.
func Find(strategies []Strategy, n int, get func(i int) (id, label string), target string) int {
	target = strings.TrimSpace(target)
	if target == "" {
		return -1
	}
	for _, s := range strategies {
		for i := 0; i < n; i++ {
			id, label := get(i)
			if s.Match(id, label, target) {
				return i
			}
		}
	}
	return -1
}

// ResolveTask returns the index of the task in project p matching target.
func ResolveTask(p *domain.Project, target string) (int, bool) {
	if p == nil {
		return -1, false
	}
	i := Find(TitleStrategies, len(p.Plan), func(i int) (string, string) {
		return p.Plan[i].ID, p.Plan[i].Title
	}, target)
	return i, i >= 0
}

// ResolveSubtask returns the index of the subtask of t matching target.
func ResolveSubtask(t *domain.Task, target string) (int, bool) {
	if t == nil {
		return -1, false
	}
	i := Find(TitleStrategies, len(t.Subtasks), func(i int) (string, string) {
		return t.Subtasks[i].ID, t.Subtasks[i].Title
	}, target)
	return i, i >= 0
}

// FindPersonByName matches names case-insensitively and exactly; there is
// no fuzzy fallback.
func FindPersonByName(name string, people []domain.Person) (domain.Person, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Person{}, false
	}
	for _, p := range people {
		if strings.EqualFold(strings.TrimSpace(p.Name), name) {
			return p, true
		}
	}
	return domain.Person{}, false
}
