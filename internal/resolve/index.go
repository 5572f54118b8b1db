package resolve

import (
	"strings"

	"manity/internal/domain"
)

// ProjectIndex precomputes the project match strategies for O(1) lookups.
// It must be rebuilt whenever a project is added, removed or renamed.
type ProjectIndex struct {
	size       int
	byID       map[string]int
	byIDFold   map[string]int
	byNameFold map[string]int
	byNorm     map[string]int
}

// BuildProjectIndex indexes projects; on duplicate keys the first project wins,
// matching the linear strategy walk.
func BuildProjectIndex(projects []domain.Project) *ProjectIndex {
	idx := &ProjectIndex{
		size:       len(projects),
		byID:       make(map[string]int, len(projects)),
		byIDFold:   make(map[string]int, len(projects)),
		byNameFold: make(map[string]int, len(projects)),
		byNorm:     make(map[string]int, len(projects)),
	}
	for i, p := range projects {
		putFirst(idx.byID, p.ID, i)
		putFirst(idx.byIDFold, strings.ToLower(p.ID), i)
		putFirst(idx.byNameFold, strings.ToLower(p.Name), i)
		if n := Normalize(p.Name); n != "" {
			putFirst(idx.byNorm, n, i)
		}
	}
	return idx
}

func putFirst(m map[string]int, key string, i int) {
	if key == "" {
		return
	}
	if _, ok := m[key]; !ok {
		m[key] = i
	}
}

// Len reports how many projects the index was built from.
func (idx *ProjectIndex) Len() int {
	if idx == nil {
		return 0
	}
	return idx.size
}

// ResolveProject returns the position of the project matching target. A nil
// or stale index (built for a different number of projects) is rebuilt.
func ResolveProject(target string, projects []domain.Project, idx *ProjectIndex) (int, bool) {
	target = strings.TrimSpace(target)
	if target == "" {
		return -1, false
	}
	if idx == nil || idx.size != len(projects) {
		idx = BuildProjectIndex(projects)
	}
	if i, ok := idx.byID[target]; ok {
		return i, true
	}
	if i, ok := idx.byIDFold[strings.ToLower(target)]; ok {
		return i, true
	}
	if i, ok := idx.byNameFold[strings.ToLower(target)]; ok {
		return i, true
	}
	if n := Normalize(target); n != "" {
		if i, ok := idx.byNorm[n]; ok {
			return i, true
		}
	}
	return -1, false
}
