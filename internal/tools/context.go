package tools

import (
	"context"
	"time"

	"github.com/google/uuid"

	"manity/internal/domain"
	"manity/internal/resolve"
)

// Services are the host capabilities tools may call. Implementations must be
// safe for concurrent use by unrelated runs.
type Services interface {
	// CreatePerson stores p, returning the existing record when a person
	// with the same name is already known.
	CreatePerson(ctx context.Context, p domain.Person) (domain.Person, error)
	SendEmail(ctx context.Context, e domain.Email) error
	BuildThrustContext(ctx context.Context) ([]domain.PortfolioSummary, error)
}

// Context is the working state of one run. It is owned by a single run and
// must not be shared.
type Context struct {
	Projects []domain.Project
	People   []domain.Person
	Services Services
	Author   string
	Clock    func() time.Time
	IDs      func(kind string) string

	index *resolve.ProjectIndex
}

// NewContext wraps an already cloned working copy.
func NewContext(projects []domain.Project, people []domain.Person, services Services) *Context {
	if projects == nil {
		projects = []domain.Project{}
	}
	tc := &Context{Projects: projects, People: people, Services: services}
	tc.RefreshIndex()
	return tc
}

// RefreshIndex rebuilds the project lookup index from the current working copy.
func (tc *Context) RefreshIndex() {
	tc.index = resolve.BuildProjectIndex(tc.Projects)
}

// ResolveProject returns the working project matching target. The pointer is
// valid until the next AddProject.
func (tc *Context) ResolveProject(target string) (*domain.Project, bool) {
	i, ok := resolve.ResolveProject(target, tc.Projects, tc.index)
	if !ok {
		return nil, false
	}
	return &tc.Projects[i], true
}

// AddProject appends p and refreshes the index so later steps can find it by
// name.
func (tc *Context) AddProject(p domain.Project) *domain.Project {
	p.Normalize()
	tc.Projects = append(tc.Projects, p)
	tc.RefreshIndex()
	return &tc.Projects[len(tc.Projects)-1]
}

func (tc *Context) FindPerson(name string) (domain.Person, bool) {
	return resolve.FindPersonByName(name, tc.People)
}

func (tc *Context) AddPerson(p domain.Person) {
	if _, ok := tc.FindPerson(p.Name); ok {
		return
	}
	tc.People = append(tc.People, p)
}

func (tc *Context) Now() time.Time {
	if tc.Clock != nil {
		return tc.Clock().UTC()
	}
	return time.Now().UTC()
}

// Today is the current date as YYYY-MM-DD.
func (tc *Context) Today() string {
	return tc.Now().Format("2006-01-02")
}

// NewID returns a fresh identifier prefixed by kind.
func (tc *Context) NewID(kind string) string {
	if tc.IDs != nil {
		return tc.IDs(kind)
	}
	return kind + "-" + uuid.NewString()
}

func (tc *Context) author() string {
	if tc.Author != "" {
		return tc.Author
	}
	return "assistant"
}

// assigneeFor resolves a name against the people directory, keeping the
// free-text name when nobody matches.
func (tc *Context) assigneeFor(name string) *domain.Assignee {
	if name == "" {
		return nil
	}
	if p, ok := tc.FindPerson(name); ok {
		return &domain.Assignee{Name: p.Name, Team: p.Team}
	}
	return &domain.Assignee{Name: name}
}
